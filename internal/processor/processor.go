// Package processor turns a raw transport message into a flat record.
package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Koteika1156/PSU-DB-LAB/internal/envelope"
	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"github.com/Koteika1156/PSU-DB-LAB/internal/record"
)

// Decoder opens envelopes. *envelope.Codec implements it.
type Decoder interface {
	Decode(env envelope.Envelope) ([]byte, error)
}

// Processor validates inbound messages.
type Processor struct {
	codec Decoder
}

// New returns a processor decoding with codec.
func New(codec Decoder) *Processor {
	return &Processor{codec: codec}
}

// Message is a validated inbound message.
type Message struct {
	Scheme envelope.Scheme
	Meta   envelope.Meta
	Record record.FlatRecord
}

// Validate parses the outer envelope, decodes its payload and parses the
// inner record. Any JSON object is accepted as a record; field presence is
// checked later by normalization.
//
// On failure the returned Message carries whatever was learned before the
// failing step (scheme and meta once the envelope parsed), for logging.
func (p *Processor) Validate(_ context.Context, raw []byte) (Message, error) {
	env, err := envelope.Unmarshal(raw)
	if err != nil {
		return Message{}, err
	}
	msg := Message{Scheme: env.Scheme(), Meta: env.Metadata()}

	plaintext, err := p.codec.Decode(env)
	if err != nil {
		return msg, err
	}

	if err := json.Unmarshal(plaintext, &msg.Record); err != nil {
		return msg, errs.Protocol("processor.Validate", fmt.Errorf("inner record: %w", err))
	}
	return msg, nil
}
