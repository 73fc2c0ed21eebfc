package envelope

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
)

// DefaultKeyBits is the RSA modulus size used by GenerateKeyPair callers.
const DefaultKeyBits = 2048

// LoadPublicKey reads a PEM encoded RSA public key (PKIX or PKCS#1).
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	const op = "envelope.LoadPublicKey"

	block, err := readPEM(path)
	if err != nil {
		return nil, errs.Config(op, err)
	}

	if pub, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, errs.Configf(op, "%s: not an RSA public key", path)
		}
		return rsaPub, nil
	}
	if pub, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return pub, nil
	}
	return nil, errs.Configf(op, "%s: unsupported public key encoding %q", path, block.Type)
}

// LoadPrivateKey reads a PEM encoded RSA private key (PKCS#8 or PKCS#1).
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	const op = "envelope.LoadPrivateKey"

	block, err := readPEM(path)
	if err != nil {
		return nil, errs.Config(op, err)
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errs.Configf(op, "%s: not an RSA private key", path)
		}
		return rsaKey, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, errs.Configf(op, "%s: unsupported private key encoding %q", path, block.Type)
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block found", path)
	}
	return block, nil
}

// GenerateKeyPair creates a fresh RSA key pair.
func GenerateKeyPair(bits int) (*rsa.PrivateKey, error) {
	if bits <= 0 {
		bits = DefaultKeyBits
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errs.Crypto("envelope.GenerateKeyPair", err)
	}
	return key, nil
}

// WriteKeyPair stores key as PKCS#8 at privPath and its public half as PKIX
// at pubPath. Existing files are not overwritten.
func WriteKeyPair(key *rsa.PrivateKey, privPath, pubPath string) error {
	const op = "envelope.WriteKeyPair"
	if key == nil {
		return errs.Configf(op, "nil private key")
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return errs.Crypto(op, err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return errs.Crypto(op, err)
	}

	if err := writePEM(privPath, "PRIVATE KEY", privDER, 0o600); err != nil {
		return errs.Config(op, err)
	}
	if err := writePEM(pubPath, "PUBLIC KEY", pubDER, 0o644); err != nil {
		return errs.Config(op, err)
	}
	return nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s already exists", path)
		}
		return err
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
