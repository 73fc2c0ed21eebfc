// Package transport defines the contract shared by the socket, RabbitMQ and
// NATS JetStream backends.
//
// A Sender delivers one opaque message per call. A Receiver delivers the
// unbounded inbound sequence by invoking a Handler once per message and
// returns only when its context is cancelled or startup fails.
package transport

import "context"

// Backend names used in logs and metrics.
const (
	NameSocket    = "socket"
	NameRabbitMQ  = "rabbitmq"
	NameJetStream = "nats"
)

// Sender delivers messages to the importer.
type Sender interface {
	// Send delivers one message. It returns once the message is written to
	// the socket or retained by the broker.
	Send(ctx context.Context, msg []byte) error
	Close() error
}

// Handler processes one inbound message. It must not retain msg after it
// returns. Handlers report failures through logs; they have no return value
// because every delivery is considered handled once the handler returns.
type Handler func(ctx context.Context, msg []byte)

// Receiver produces inbound messages.
type Receiver interface {
	// Serve blocks until ctx is cancelled (returning nil) or a fatal failure
	// prevents serving (returning a transport error).
	Serve(ctx context.Context, h Handler) error
	Name() string
}
