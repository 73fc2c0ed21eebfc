// Package jetstream implements the durable queue transport on NATS JetStream.
//
// Semantics match the RabbitMQ backend: a file-backed stream retains every
// published envelope, the publisher waits for the stream's PubAck, and the
// importer runs one durable consumer with MaxAckPending 1. Every message is
// acked after the handler returns, regardless of outcome.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Koteika1156/PSU-DB-LAB/internal/config"
	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"github.com/Koteika1156/PSU-DB-LAB/internal/logging"
	"github.com/Koteika1156/PSU-DB-LAB/internal/transport"
)

func connect(ctx context.Context, cfg config.NATSConfig) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("medsync"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect %s: %w", cfg.URL, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create stream %s: %w", cfg.Stream, err)
	}
	return nc, js, nil
}

// Publisher publishes envelopes to the stream subject.
type Publisher struct {
	subject string
	nc      *nats.Conn
	js      jetstream.JetStream
	mu      sync.Mutex
}

var _ transport.Sender = (*Publisher)(nil)

// Dial connects and ensures the stream exists.
func Dial(ctx context.Context, cfg config.NATSConfig) (*Publisher, error) {
	nc, js, err := connect(ctx, cfg)
	if err != nil {
		return nil, errs.Transport("jetstream.Dial", err)
	}
	return &Publisher{subject: cfg.Subject, nc: nc, js: js}, nil
}

// Send publishes msg and waits for the stream to store it.
func (p *Publisher) Send(ctx context.Context, msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.js.Publish(ctx, p.subject, msg); err != nil {
		return errs.Transport("jetstream.Send", err)
	}
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}

// Consumer pulls messages one at a time from a durable consumer.
type Consumer struct {
	cfg config.NATSConfig
}

var _ transport.Receiver = (*Consumer)(nil)

// NewConsumer returns a consumer that connects on Serve.
func NewConsumer(cfg config.NATSConfig) *Consumer {
	return &Consumer{cfg: cfg}
}

// Name implements transport.Receiver.
func (c *Consumer) Name() string { return transport.NameJetStream }

// Serve consumes until ctx is cancelled.
func (c *Consumer) Serve(ctx context.Context, h transport.Handler) error {
	const op = "jetstream.Serve"

	nc, js, err := connect(ctx, c.cfg)
	if err != nil {
		return errs.Transport(op, err)
	}
	defer nc.Close()

	cons, err := js.CreateOrUpdateConsumer(ctx, c.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       c.cfg.Consumer,
		FilterSubject: c.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxAckPending: 1,
	})
	if err != nil {
		return errs.Transport(op, fmt.Errorf("create consumer %s: %w", c.cfg.Consumer, err))
	}

	it, err := cons.Messages(jetstream.PullMaxMessages(1))
	if err != nil {
		return errs.Transport(op, fmt.Errorf("subscribe: %w", err))
	}
	stop := context.AfterFunc(ctx, it.Stop)
	defer stop()

	ctx = logging.WithAttrs(ctx, slog.String("transport", transport.NameJetStream))
	logger := logging.FromContext(ctx)
	logger.Info("stream consumer started", "stream", c.cfg.Stream, "consumer", c.cfg.Consumer)

	hctx := context.WithoutCancel(ctx)
	for {
		msg, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, jetstream.ErrMsgIteratorClosed) {
				logger.Info("stream consumer stopped")
				return nil
			}
			return errs.Transport(op, fmt.Errorf("next message: %w", err))
		}

		h(hctx, msg.Data())

		if err := msg.Ack(); err != nil {
			logger.Warn("ack failed", "error", errs.Loggable(errs.Transport("jetstream.Ack", err)))
		}
	}
}
