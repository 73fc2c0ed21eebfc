// Package exporter reads source rows, seals each one in an envelope and
// sends it over the configured transport.
package exporter

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Koteika1156/PSU-DB-LAB/internal/config"
	"github.com/Koteika1156/PSU-DB-LAB/internal/envelope"
	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"github.com/Koteika1156/PSU-DB-LAB/internal/logging"
	"github.com/Koteika1156/PSU-DB-LAB/internal/metrics"
	"github.com/Koteika1156/PSU-DB-LAB/internal/record"
	"github.com/Koteika1156/PSU-DB-LAB/internal/transport"
)

// Stages reported on failed rows.
const (
	StageEncode = "encode"
	StageSend   = "send"
)

// Rows streams source rows. *source.Reader implements it.
type Rows interface {
	Each(ctx context.Context, table string, fn func(row map[string]any) error) error
}

// Encoder seals plaintext. *envelope.Codec implements it.
type Encoder interface {
	Encode(scheme envelope.Scheme, plaintext []byte, meta envelope.Meta) (envelope.Envelope, error)
}

// Options controls one export run.
type Options struct {
	Table     string
	Scheme    envelope.Scheme
	Interval  time.Duration
	Transport string
}

// Stats summarizes a run.
type Stats struct {
	Read   int
	Sent   int
	Failed int
}

// Exporter sends every row of a source table once.
type Exporter struct {
	rows    Rows
	codec   Encoder
	sender  transport.Sender
	opts    Options
	metrics *metrics.Metrics
}

// New returns an exporter. m may be nil.
func New(rows Rows, codec Encoder, sender transport.Sender, opts Options, m *metrics.Metrics) *Exporter {
	return &Exporter{rows: rows, codec: codec, sender: sender, opts: opts, metrics: m}
}

// SchemeFor derives the envelope scheme from cfg.
func SchemeFor(cfg *config.Config) envelope.Scheme {
	switch {
	case cfg.UseCustomCrypto:
		return envelope.SchemeCustom
	case cfg.UseTLS:
		return envelope.SchemeTLS
	default:
		return envelope.SchemePlain
	}
}

// Run sends each source row, pausing Interval between consecutive rows. A row that
// fails to encode or send is logged and counted; the next row is still
// attempted. Run stops early only when ctx is cancelled or the source
// cannot be read.
func (e *Exporter) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	logger := logging.WithFields(ctx, "table", e.opts.Table, "scheme", e.opts.Scheme, "transport", e.opts.Transport)
	logger.Info("export started", "interval", e.opts.Interval)

	err := e.rows.Each(ctx, e.opts.Table, func(row map[string]any) error {
		if stats.Read > 0 {
			if err := sleep(ctx, e.opts.Interval); err != nil {
				return err
			}
		}
		stats.Read++

		if stage, err := e.exportRow(ctx, row); err != nil {
			stats.Failed++
			if e.metrics != nil {
				e.metrics.ExportFailed.WithLabelValues(e.opts.Transport, stage).Inc()
			}
		} else {
			stats.Sent++
			if e.metrics != nil {
				e.metrics.ExportSent.WithLabelValues(e.opts.Transport, string(e.opts.Scheme)).Inc()
			}
		}
		return nil
	})

	logger.Info("export finished", "read", stats.Read, "sent", stats.Sent, "failed", stats.Failed)
	return stats, err
}

func (e *Exporter) exportRow(ctx context.Context, row map[string]any) (string, error) {
	meta := envelope.Meta{SourceTable: e.opts.Table, MessageID: uuid.NewString()}
	logger := logging.FromContext(logging.WithMessage(ctx, e.opts.Transport, meta.MessageID, meta.SourceTable))

	body, err := json.Marshal(record.FromRow(row))
	if err != nil {
		logger.Error("failed to marshal row", "error", err)
		return StageEncode, err
	}

	env, err := e.codec.Encode(e.opts.Scheme, body, meta)
	if err != nil {
		logger.Error("failed to encode envelope", slog.Any("error", errs.Loggable(err)))
		return StageEncode, err
	}
	msg, err := envelope.Marshal(env)
	if err != nil {
		logger.Error("failed to marshal envelope", slog.Any("error", errs.Loggable(err)))
		return StageEncode, err
	}

	if err := e.sender.Send(ctx, msg); err != nil {
		logger.Warn("send failed", slog.Any("error", errs.Loggable(err)))
		return StageSend, err
	}
	logger.Debug("message sent", "bytes", len(msg))
	return "", nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NewCodec returns the exporter's codec, loading the importer's public key
// when custom crypto is enabled.
func NewCodec(cfg *config.Config) (*envelope.Codec, error) {
	if !cfg.UseCustomCrypto {
		return envelope.NewCodec(nil, nil), nil
	}
	pub, err := envelope.LoadPublicKey(cfg.Crypto.ImporterPubkeyPath)
	if err != nil {
		return nil, err
	}
	return envelope.NewCodec(pub, nil), nil
}
