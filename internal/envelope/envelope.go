// Package envelope encodes record bodies into wire envelopes and back.
//
// An envelope is one of three closed variants, selected by [Scheme]:
//
//   - [PlainEnvelope]: body carried as-is.
//   - [TLSEnvelope]: body carried as-is, confidentiality comes from the
//     TLS-wrapped socket underneath.
//   - [CustomEnvelope]: body sealed with a fresh AES-256-GCM key per message;
//     the key is wrapped with the recipient's RSA public key (OAEP, SHA-256).
//
// The variants are sealed: only this package can implement [Envelope], so a
// type switch over the three of them is exhaustive.
package envelope

import (
	"fmt"

	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
)

// Scheme is the confidentiality strategy of a message.
type Scheme string

const (
	SchemePlain  Scheme = "plain"
	SchemeTLS    Scheme = "tls"
	SchemeCustom Scheme = "custom"
)

// ParseScheme validates a wire scheme tag.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case SchemePlain, SchemeTLS, SchemeCustom:
		return Scheme(s), nil
	default:
		return "", errs.Protocol("envelope.ParseScheme", &InvalidSchemeError{Scheme: s})
	}
}

// Meta is envelope metadata. MessageID is optional on the wire.
type Meta struct {
	SourceTable string `json:"source_table"`
	MessageID   string `json:"message_id,omitempty"`
}

// Envelope is implemented by PlainEnvelope, TLSEnvelope and CustomEnvelope.
type Envelope interface {
	Scheme() Scheme
	Metadata() Meta
	sealed()
}

// PlainEnvelope carries an unencrypted body.
type PlainEnvelope struct {
	Meta      Meta
	Plaintext []byte
}

// TLSEnvelope carries a body that relies on transport encryption.
type TLSEnvelope struct {
	Meta      Meta
	Plaintext []byte
}

// CustomEnvelope carries a hybrid-encrypted body.
type CustomEnvelope struct {
	Meta         Meta
	EncryptedKey []byte
	IV           []byte
	Ciphertext   []byte // includes the GCM tag
}

func (PlainEnvelope) Scheme() Scheme  { return SchemePlain }
func (TLSEnvelope) Scheme() Scheme    { return SchemeTLS }
func (CustomEnvelope) Scheme() Scheme { return SchemeCustom }

func (e PlainEnvelope) Metadata() Meta  { return e.Meta }
func (e TLSEnvelope) Metadata() Meta    { return e.Meta }
func (e CustomEnvelope) Metadata() Meta { return e.Meta }

func (PlainEnvelope) sealed()  {}
func (TLSEnvelope) sealed()    {}
func (CustomEnvelope) sealed() {}

// InvalidSchemeError reports an unknown scheme tag.
type InvalidSchemeError struct {
	Scheme string
}

func (e *InvalidSchemeError) Error() string {
	return fmt.Sprintf("invalid scheme %q", e.Scheme)
}

// DecryptionError reports that a custom envelope could not be opened,
// either because the key could not be unwrapped or the tag did not verify.
type DecryptionError struct {
	Stage string // "unwrap_key" or "open"
	Err   error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed at %s: %v", e.Stage, e.Err)
}

func (e *DecryptionError) Unwrap() error { return e.Err }
