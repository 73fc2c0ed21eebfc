package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Koteika1156/PSU-DB-LAB/internal/config"
	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
	"github.com/Koteika1156/PSU-DB-LAB/internal/transport"
)

// Publisher sends messages to the durable queue.
type Publisher struct {
	queue    string
	ch       Channel
	conn     io.Closer
	confirms chan amqp.Confirmation

	mu  sync.Mutex
	seq uint64 // delivery tag of the last publish
}

var _ transport.Sender = (*Publisher)(nil)

// Dial connects to the broker and prepares a confirming publisher.
func Dial(cfg config.RabbitMQConfig) (*Publisher, error) {
	conn, ch, err := dial(cfg.URL)
	if err != nil {
		return nil, errs.Transport("rabbitmq.Dial", fmt.Errorf("connect: %w", err))
	}
	p, err := NewPublisher(ch, cfg.Queue)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisher declares the queue on ch and switches it to confirm mode.
func NewPublisher(ch Channel, queue string) (*Publisher, error) {
	const op = "rabbitmq.NewPublisher"
	if err := declare(ch, queue); err != nil {
		return nil, errs.Transport(op, fmt.Errorf("declare queue %s: %w", queue, err))
	}
	if err := ch.Confirm(false); err != nil {
		return nil, errs.Transport(op, fmt.Errorf("enable confirms: %w", err))
	}
	return &Publisher{
		queue:    queue,
		ch:       ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

// Send publishes msg as a persistent message and waits for the broker to
// confirm it.
func (p *Publisher) Send(ctx context.Context, msg []byte) error {
	const op = "rabbitmq.Send"

	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         msg,
	})
	if err != nil {
		return errs.Transport(op, fmt.Errorf("publish: %w", err))
	}
	p.seq++
	want := p.seq

	// Confirms arrive in tag order. Tags below want belong to sends that
	// gave up waiting and are discarded.
	for {
		select {
		case c, ok := <-p.confirms:
			if !ok {
				return errs.Transport(op, errors.New("channel closed before confirm"))
			}
			if c.DeliveryTag < want {
				continue
			}
			if !c.Ack {
				return errs.Transport(op, fmt.Errorf("broker nacked delivery %d", c.DeliveryTag))
			}
			return nil
		case <-ctx.Done():
			return errs.Transport(op, ctx.Err())
		}
	}
}

// Close closes the channel and, when owned, the connection.
func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
