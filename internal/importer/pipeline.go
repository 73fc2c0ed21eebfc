// Package importer wires a transport receiver to the processor and the
// normalization engine.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Koteika1156/PSU-DB-LAB/internal/envelope"
	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"github.com/Koteika1156/PSU-DB-LAB/internal/logging"
	"github.com/Koteika1156/PSU-DB-LAB/internal/metrics"
	"github.com/Koteika1156/PSU-DB-LAB/internal/normalize"
	"github.com/Koteika1156/PSU-DB-LAB/internal/processor"
	"github.com/Koteika1156/PSU-DB-LAB/internal/transport"
)

// Pipeline stages reported on dropped messages.
const (
	StageDecode    = "decode"
	StageNormalize = "normalize"
)

// Outcome reports what happened to one message.
type Outcome struct {
	Normalized bool
	Stage      string // stage that dropped the message, empty when normalized
	Kind       errs.Kind
	Err        error
	Scheme     envelope.Scheme
	Meta       envelope.Meta
	Result     normalize.Result
}

// Pipeline validates and normalizes inbound messages.
type Pipeline struct {
	processor *processor.Processor
	engine    *normalize.Engine
	metrics   *metrics.Metrics
}

// NewPipeline returns a pipeline. m may be nil.
func NewPipeline(p *processor.Processor, e *normalize.Engine, m *metrics.Metrics) *Pipeline {
	return &Pipeline{processor: p, engine: e, metrics: m}
}

// Handler adapts the pipeline to a receiver named transportName.
func (p *Pipeline) Handler(transportName string) transport.Handler {
	return func(ctx context.Context, msg []byte) {
		p.Handle(ctx, transportName, msg)
	}
}

// Handle runs one message through validation and normalization. Every
// failure is logged and reported in the Outcome; none escapes to the
// transport.
func (p *Pipeline) Handle(ctx context.Context, transportName string, raw []byte) (out Outcome) {
	if p.metrics != nil {
		p.metrics.MessagesReceived.WithLabelValues(transportName).Inc()
	}

	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Stage: StageNormalize, Kind: errs.KindUnknown, Err: fmt.Errorf("panic: %v", r),
				Scheme: out.Scheme, Meta: out.Meta}
			p.drop(ctx, transportName, out)
		}
	}()

	msg, err := p.processor.Validate(ctx, raw)
	out.Scheme, out.Meta = msg.Scheme, msg.Meta
	ctx = logging.WithMessage(ctx, transportName, msg.Meta.MessageID, msg.Meta.SourceTable)
	if err != nil {
		out.Stage, out.Kind, out.Err = StageDecode, errs.KindOf(err), err
		p.drop(ctx, transportName, out)
		return out
	}

	start := time.Now()
	res, err := p.engine.Apply(ctx, msg.Record)
	if p.metrics != nil {
		p.metrics.ObserveNormalize(start)
	}
	if err != nil {
		out.Stage, out.Kind, out.Err = StageNormalize, errs.KindOf(err), err
		p.drop(ctx, transportName, out)
		return out
	}

	out.Normalized, out.Result = true, res
	if p.metrics != nil {
		p.metrics.RecordsNormalized.WithLabelValues(transportName, string(msg.Scheme)).Inc()
	}
	logging.FromContext(ctx).Debug("record normalized",
		"scheme", msg.Scheme,
		"appointment_id", res.AppointmentID,
		"patient_id", res.PatientID,
	)
	return out
}

func (p *Pipeline) drop(ctx context.Context, transportName string, out Outcome) {
	if p.metrics != nil {
		p.metrics.MessagesDropped.WithLabelValues(transportName, out.Stage, out.Kind.String()).Inc()
	}
	logging.FromContext(ctx).Warn("message dropped",
		"stage", out.Stage,
		"scheme", out.Scheme,
		"kind", out.Kind.String(),
		slog.Any("error", errs.Loggable(out.Err)),
	)
}
