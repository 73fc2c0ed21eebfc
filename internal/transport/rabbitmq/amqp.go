// Package rabbitmq implements the durable queue transport on RabbitMQ.
//
// The exporter publishes every envelope as a persistent message on a durable
// queue through the default exchange and waits for the broker's publisher
// confirm. The importer runs exactly one consumer with prefetch 1, so
// deliveries are processed strictly one at a time.
//
// Acknowledgement policy: every delivery is acked once the handler returns,
// whether normalization succeeded or the message was dropped. A poison
// message can never block the queue; the price is that a message whose
// processing failed is not redelivered. There is no dead-letter queue.
package rabbitmq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel used here.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

var _ Channel = (*amqp.Channel)(nil)

// declare creates the durable queue if it does not exist yet.
func declare(ch Channel, queue string) error {
	_, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	return err
}

// dial opens a connection and one channel on it.
func dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}
