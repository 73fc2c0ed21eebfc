// Package errs defines the error taxonomy shared by the exporter and importer.
//
// Every failure that crosses a package boundary is wrapped in an [*Error]
// carrying a [Kind]. The kind decides the propagation policy:
//
//   - KindConfig: missing or invalid setting. Fatal at startup.
//   - KindTransport: bind, connect or TLS handshake failure. Fatal for a
//     server startup, local to a single connection otherwise.
//   - KindCrypto: key unwrap or authentication tag failure. Per message.
//   - KindProtocol: malformed JSON, unknown scheme, malformed inner record.
//     Per message.
//   - KindPersistence: store unreachable or a constraint that cannot be
//     resolved by fetching. Per message, the transaction is rolled back.
//
// Per-message errors are logged at the boundary where they occur and the
// message is dropped; processing continues with the next message.
package errs

import (
	"errors"
	"fmt"
	"log/slog"
)

// Kind classifies an error for handling purposes.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindTransport
	KindCrypto
	KindProtocol
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransport:
		return "transport"
	case KindCrypto:
		return "crypto"
	case KindProtocol:
		return "protocol"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with its kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string // e.g. "envelope.Decode"
	Code string // optional support code, see codes.go
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so errors.Is(err, &Error{Kind: KindCrypto}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

func newError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Config wraps err as a configuration error.
func Config(op string, err error) error { return newError(KindConfig, op, err) }

// Transport wraps err as a transport error.
func Transport(op string, err error) error { return newError(KindTransport, op, err) }

// Crypto wraps err as a crypto error.
func Crypto(op string, err error) error { return newError(KindCrypto, op, err) }

// Protocol wraps err as a protocol error.
func Protocol(op string, err error) error { return newError(KindProtocol, op, err) }

// Persistence wraps err as a persistence error and attaches a support code.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindPersistence, Op: op, Code: CodeFor(err), Err: err}
}

// Configf builds a configuration error from a format string.
func Configf(op, format string, args ...any) error {
	return Config(op, fmt.Errorf(format, args...))
}

// Protocolf builds a protocol error from a format string.
func Protocolf(op, format string, args ...any) error {
	return Protocol(op, fmt.Errorf(format, args...))
}

// KindOf returns the kind of the outermost *Error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// IsFatal reports whether err must abort startup.
func IsFatal(err error) bool {
	return Is(err, KindConfig) || Is(err, KindTransport)
}

// Wrap adds context and preserves the error chain.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf adds formatted context and preserves the error chain.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	args = append(args, err)
	return fmt.Errorf(format+": %w", args...)
}

type loggable struct{ err error }

// Loggable makes slog encode the error as structured fields.
// Usage: slog.Any("err", errs.Loggable(err))
func Loggable(err error) slog.LogValuer { return loggable{err: err} }

func (l loggable) LogValue() slog.Value {
	if l.err == nil {
		return slog.GroupValue()
	}
	attrs := []slog.Attr{
		slog.String("message", l.err.Error()),
		slog.String("kind", KindOf(l.err).String()),
	}
	var e *Error
	if errors.As(l.err, &e) && e.Code != "" {
		attrs = append(attrs, slog.String("code", e.Code))
	}
	return slog.GroupValue(attrs...)
}
