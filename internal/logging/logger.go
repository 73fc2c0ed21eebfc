// Package logging provides structured logging configuration using log/slog.
//
// Besides the global handler setup it carries per-message attributes
// (message_id, source_table, transport) through a context so that every log
// line emitted while a message is processed can be correlated. HTTP requests
// on the ops endpoint get chi's request_id the same way.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type ctxAttrsKey struct{}

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithAttrs returns a context carrying additional log attributes.
// Later attributes with the same key replace earlier ones.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	current := Attrs(ctx)
	next := make([]slog.Attr, 0, len(current)+len(attrs))
	for _, a := range current {
		if !hasKey(attrs, a.Key) {
			next = append(next, a)
		}
	}
	next = append(next, attrs...)
	return context.WithValue(ctx, ctxAttrsKey{}, next)
}

// WithMessage tags ctx with the correlation fields of one inbound message.
// Empty values are omitted.
func WithMessage(ctx context.Context, transport, messageID, sourceTable string) context.Context {
	attrs := make([]slog.Attr, 0, 3)
	if transport != "" {
		attrs = append(attrs, slog.String("transport", transport))
	}
	if messageID != "" {
		attrs = append(attrs, slog.String("message_id", messageID))
	}
	if sourceTable != "" {
		attrs = append(attrs, slog.String("source_table", sourceTable))
	}
	return WithAttrs(ctx, attrs...)
}

// Attrs returns the attributes stored in ctx.
func Attrs(ctx context.Context) []slog.Attr {
	attrs, _ := ctx.Value(ctxAttrsKey{}).([]slog.Attr)
	return attrs
}

func hasKey(attrs []slog.Attr, key string) bool {
	for _, a := range attrs {
		if a.Key == key {
			return true
		}
	}
	return false
}

// FromContext returns a logger enriched with the context's attributes and,
// for ops HTTP requests, the chi request ID.
//
// Usage:
//
//	logger := logging.FromContext(ctx)
//	logger.Warn("message dropped", "reason", "invalid_json")
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	if attrs := Attrs(ctx); len(attrs) > 0 {
		args := make([]any, len(attrs))
		for i, a := range attrs {
			args[i] = a
		}
		logger = logger.With(args...)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
// Usage:
//
//	exportLogger := logging.WithFields(ctx, "table", table, "scheme", scheme)
//	exportLogger.Info("export started")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
