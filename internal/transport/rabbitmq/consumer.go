package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Koteika1156/PSU-DB-LAB/internal/config"
	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"github.com/Koteika1156/PSU-DB-LAB/internal/logging"
	"github.com/Koteika1156/PSU-DB-LAB/internal/transport"
)

// ConsumerTag identifies the importer's single consumer.
const ConsumerTag = "medsync-importer"

// Consumer delivers queue messages to a handler one at a time.
type Consumer struct {
	queue string
	open  func() (Channel, io.Closer, error)
}

var _ transport.Receiver = (*Consumer)(nil)

// NewConsumer returns a consumer that connects on Serve.
func NewConsumer(cfg config.RabbitMQConfig) *Consumer {
	return &Consumer{
		queue: cfg.Queue,
		open: func() (Channel, io.Closer, error) {
			conn, ch, err := dial(cfg.URL)
			if err != nil {
				return nil, nil, err
			}
			return ch, conn, nil
		},
	}
}

// NewConsumerWithChannel serves from an already open channel.
func NewConsumerWithChannel(ch Channel, queue string) *Consumer {
	return &Consumer{
		queue: queue,
		open:  func() (Channel, io.Closer, error) { return ch, nil, nil },
	}
}

// Name implements transport.Receiver.
func (c *Consumer) Name() string { return transport.NameRabbitMQ }

// Serve consumes until ctx is cancelled. Losing the broker connection is
// reported as a transport error.
func (c *Consumer) Serve(ctx context.Context, h transport.Handler) error {
	const op = "rabbitmq.Serve"

	ch, conn, err := c.open()
	if err != nil {
		return errs.Transport(op, fmt.Errorf("connect: %w", err))
	}
	defer func() {
		ch.Close()
		if conn != nil {
			conn.Close()
		}
	}()

	if err := declare(ch, c.queue); err != nil {
		return errs.Transport(op, fmt.Errorf("declare queue %s: %w", c.queue, err))
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return errs.Transport(op, fmt.Errorf("set prefetch: %w", err))
	}

	deliveries, err := ch.ConsumeWithContext(ctx, c.queue, ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return errs.Transport(op, fmt.Errorf("consume %s: %w", c.queue, err))
	}

	ctx = logging.WithAttrs(ctx, slog.String("transport", transport.NameRabbitMQ))
	logger := logging.FromContext(ctx)
	logger.Info("queue consumer started", "queue", c.queue, "prefetch", 1)

	// The current delivery is finished and acked even when shutdown starts.
	hctx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("queue consumer stopped")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errs.Transport(op, errors.New("delivery channel closed by broker"))
			}
			c.handle(hctx, d, h)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, h transport.Handler) {
	h(ctx, d.Body)

	if err := d.Ack(false); err != nil {
		logging.FromContext(ctx).Warn("ack failed",
			"delivery_tag", d.DeliveryTag,
			"error", errs.Loggable(errs.Transport("rabbitmq.Ack", err)))
	}
}
