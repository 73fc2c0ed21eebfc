package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 12 // GCM standard nonce
)

// Codec encodes and decodes envelopes with the configured key material.
// The exporter needs only the public key, the importer only the private one.
type Codec struct {
	public  *rsa.PublicKey
	private *rsa.PrivateKey
}

// NewCodec returns a codec. Either key may be nil.
func NewCodec(public *rsa.PublicKey, private *rsa.PrivateKey) *Codec {
	if public == nil && private != nil {
		public = &private.PublicKey
	}
	return &Codec{public: public, private: private}
}

// Encode builds an envelope of the given scheme around plaintext.
// Every custom envelope gets its own key and nonce.
func (c *Codec) Encode(scheme Scheme, plaintext []byte, meta Meta) (Envelope, error) {
	switch scheme {
	case SchemePlain:
		return PlainEnvelope{Meta: meta, Plaintext: plaintext}, nil
	case SchemeTLS:
		return TLSEnvelope{Meta: meta, Plaintext: plaintext}, nil
	case SchemeCustom:
		return c.seal(plaintext, meta)
	default:
		return nil, errs.Protocol("envelope.Encode", &InvalidSchemeError{Scheme: string(scheme)})
	}
}

func (c *Codec) seal(plaintext []byte, meta Meta) (Envelope, error) {
	const op = "envelope.Encode"
	if c.public == nil {
		return nil, errs.Crypto(op, errors.New("custom scheme requires the importer public key"))
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errs.Crypto(op, fmt.Errorf("generate key: %w", err))
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errs.Crypto(op, fmt.Errorf("generate nonce: %w", err))
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, errs.Crypto(op, err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, c.public, key, nil)
	if err != nil {
		return nil, errs.Crypto(op, fmt.Errorf("wrap key: %w", err))
	}

	return CustomEnvelope{
		Meta:         meta,
		EncryptedKey: wrapped,
		IV:           nonce,
		Ciphertext:   ciphertext,
	}, nil
}

// Decode recovers the plaintext carried by env.
func (c *Codec) Decode(env Envelope) ([]byte, error) {
	switch e := env.(type) {
	case PlainEnvelope:
		return e.Plaintext, nil
	case TLSEnvelope:
		return e.Plaintext, nil
	case CustomEnvelope:
		return c.open(e)
	default:
		return nil, errs.Protocolf("envelope.Decode", "unsupported envelope %T", env)
	}
}

func (c *Codec) open(e CustomEnvelope) ([]byte, error) {
	const op = "envelope.Decode"
	if c.private == nil {
		return nil, errs.Crypto(op, errors.New("custom scheme requires the importer private key"))
	}

	key, err := rsa.DecryptOAEP(sha256.New(), nil, c.private, e.EncryptedKey, nil)
	if err != nil {
		return nil, errs.Crypto(op, &DecryptionError{Stage: "unwrap_key", Err: err})
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, errs.Crypto(op, &DecryptionError{Stage: "unwrap_key", Err: err})
	}
	if len(e.IV) != gcm.NonceSize() {
		return nil, errs.Crypto(op, &DecryptionError{
			Stage: "open",
			Err:   fmt.Errorf("nonce is %d bytes, want %d", len(e.IV), gcm.NonceSize()),
		})
	}

	plaintext, err := gcm.Open(nil, e.IV, e.Ciphertext, nil)
	if err != nil {
		return nil, errs.Crypto(op, &DecryptionError{Stage: "open", Err: err})
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return gcm, nil
}
