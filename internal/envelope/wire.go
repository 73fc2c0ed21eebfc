package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
)

// wireEnvelope is the JSON form:
//
//	{"scheme":"custom","payload":{...},"meta":{"source_table":"hospital_records"}}
type wireEnvelope struct {
	Scheme  string          `json:"scheme"`
	Payload json.RawMessage `json:"payload"`
	Meta    Meta            `json:"meta"`
}

type customPayload struct {
	EncryptedKey *string `json:"encrypted_key_b64"`
	IV           *string `json:"iv_b64"`
	Ciphertext   *string `json:"ciphertext_b64"`
}

type plainPayload struct {
	Plaintext *string `json:"plaintext_b64"`
}

var b64 = base64.StdEncoding

// Marshal serializes env to its wire form.
func Marshal(env Envelope) ([]byte, error) {
	var payload any
	switch e := env.(type) {
	case PlainEnvelope:
		payload = plainPayload{Plaintext: encode(e.Plaintext)}
	case TLSEnvelope:
		payload = plainPayload{Plaintext: encode(e.Plaintext)}
	case CustomEnvelope:
		payload = customPayload{
			EncryptedKey: encode(e.EncryptedKey),
			IV:           encode(e.IV),
			Ciphertext:   encode(e.Ciphertext),
		}
	default:
		return nil, errs.Protocolf("envelope.Marshal", "unsupported envelope %T", env)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Protocol("envelope.Marshal", err)
	}
	out, err := json.Marshal(wireEnvelope{
		Scheme:  string(env.Scheme()),
		Payload: raw,
		Meta:    env.Metadata(),
	})
	if err != nil {
		return nil, errs.Protocol("envelope.Marshal", err)
	}
	return out, nil
}

// Unmarshal parses a wire envelope. Malformed JSON, missing payload fields
// and bad base64 are protocol errors; an unknown scheme additionally wraps
// an *InvalidSchemeError.
func Unmarshal(data []byte) (Envelope, error) {
	const op = "envelope.Unmarshal"

	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errs.Protocol(op, fmt.Errorf("outer json: %w", err))
	}

	scheme, err := ParseScheme(w.Scheme)
	if err != nil {
		return nil, err
	}
	if len(w.Payload) == 0 || string(w.Payload) == "null" {
		return nil, errs.Protocolf(op, "missing payload")
	}

	switch scheme {
	case SchemeCustom:
		var p customPayload
		if err := json.Unmarshal(w.Payload, &p); err != nil {
			return nil, errs.Protocol(op, fmt.Errorf("payload: %w", err))
		}
		key, err := decode("encrypted_key_b64", p.EncryptedKey)
		if err != nil {
			return nil, errs.Protocol(op, err)
		}
		iv, err := decode("iv_b64", p.IV)
		if err != nil {
			return nil, errs.Protocol(op, err)
		}
		ct, err := decode("ciphertext_b64", p.Ciphertext)
		if err != nil {
			return nil, errs.Protocol(op, err)
		}
		return CustomEnvelope{Meta: w.Meta, EncryptedKey: key, IV: iv, Ciphertext: ct}, nil

	default:
		var p plainPayload
		if err := json.Unmarshal(w.Payload, &p); err != nil {
			return nil, errs.Protocol(op, fmt.Errorf("payload: %w", err))
		}
		pt, err := decode("plaintext_b64", p.Plaintext)
		if err != nil {
			return nil, errs.Protocol(op, err)
		}
		if scheme == SchemeTLS {
			return TLSEnvelope{Meta: w.Meta, Plaintext: pt}, nil
		}
		return PlainEnvelope{Meta: w.Meta, Plaintext: pt}, nil
	}
}

func encode(b []byte) *string {
	s := b64.EncodeToString(b)
	return &s
}

func decode(field string, s *string) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("payload field %s is missing", field)
	}
	b, err := b64.DecodeString(*s)
	if err != nil {
		return nil, fmt.Errorf("payload field %s: %w", field, err)
	}
	return b, nil
}
