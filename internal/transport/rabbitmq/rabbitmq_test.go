package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Koteika1156/PSU-DB-LAB/internal/config"
	"github.com/Koteika1156/PSU-DB-LAB/internal/errs"
)

// fakeChannel records calls and feeds deliveries from a Go channel.
type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	durable    bool
	prefetch   int
	confirming bool
	published  []amqp.Publishing
	nack       bool
	publishErr error
	hold       bool // publish without confirming
	confirms   chan amqp.Confirmation
	deliveries chan amqp.Delivery
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 10)}
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declared = append(f.declared, name)
	f.durable = durable
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeChannel) Confirm(bool) error {
	f.confirming = true
	return nil
}

func (f *fakeChannel) NotifyPublish(c chan amqp.Confirmation) chan amqp.Confirmation {
	f.confirms = c
	return c
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	if !f.hold {
		c := amqp.Confirmation{DeliveryTag: uint64(len(f.published)), Ack: !f.nack}
		go func() { f.confirms <- c }()
	}
	return nil
}

func (f *fakeChannel) ConsumeWithContext(context.Context, string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

// fakeAcker counts acknowledgements.
type fakeAcker struct {
	mu    sync.Mutex
	acked []uint64
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcker) Nack(uint64, bool, bool) error { return errors.New("nack not expected") }
func (a *fakeAcker) Reject(uint64, bool) error     { return errors.New("reject not expected") }

func (a *fakeAcker) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acked)
}

func TestPublisherSendsPersistentMessages(t *testing.T) {
	ch := newFakeChannel()
	p, err := NewPublisher(ch, "psu_lab_queue")
	require.NoError(t, err)

	require.NoError(t, p.Send(context.Background(), []byte(`{"scheme":"plain"}`)))

	assert.Equal(t, []string{"psu_lab_queue"}, ch.declared)
	assert.True(t, ch.durable)
	assert.True(t, ch.confirming)
	require.Len(t, ch.published, 1)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	assert.Equal(t, `{"scheme":"plain"}`, string(ch.published[0].Body))

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestPublisherReportsNack(t *testing.T) {
	ch := newFakeChannel()
	ch.nack = true
	p, err := NewPublisher(ch, "q")
	require.NoError(t, err)

	err = p.Send(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Equal(t, errs.KindTransport, errs.KindOf(err))
}

func TestPublisherIgnoresConfirmOfAbandonedSend(t *testing.T) {
	ch := newFakeChannel()
	p, err := NewPublisher(ch, "q")
	require.NoError(t, err)

	ch.hold = true
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = p.Send(ctx, []byte("first"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The first message's ack shows up late; the second one is nacked.
	ch.confirms <- amqp.Confirmation{DeliveryTag: 1, Ack: true}
	ch.hold = false
	ch.nack = true

	err = p.Send(context.Background(), []byte("second"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nacked delivery 2")
}

func TestPublisherReportsPublishError(t *testing.T) {
	ch := newFakeChannel()
	ch.publishErr = amqp.ErrClosed
	p, err := NewPublisher(ch, "q")
	require.NoError(t, err)

	err = p.Send(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, amqp.ErrClosed)
}

func TestConsumerAcksEveryDeliverySequentially(t *testing.T) {
	ch := newFakeChannel()
	acker := &fakeAcker{}
	for i, body := range []string{"valid", "bogus", "valid-again"} {
		ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: uint64(i + 1), Body: []byte(body)}
	}

	var (
		mu       sync.Mutex
		bodies   []string
		inFlight int
		maxSeen  int
	)
	handler := func(_ context.Context, msg []byte) {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		bodies = append(bodies, string(msg))
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	c := NewConsumerWithChannel(ch, "psu_lab_queue")
	go func() { done <- c.Serve(ctx, handler) }()

	require.Eventually(t, func() bool { return acker.count() == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 1, ch.prefetch)
	assert.Equal(t, []string{"valid", "bogus", "valid-again"}, bodies)
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, []uint64{1, 2, 3}, acker.acked)
	assert.True(t, ch.closed)
}

func TestConsumerClosedDeliveriesIsTransportError(t *testing.T) {
	ch := newFakeChannel()
	close(ch.deliveries)

	err := NewConsumerWithChannel(ch, "q").Serve(context.Background(), func(context.Context, []byte) {})
	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
}

func TestConsumerConnectFailure(t *testing.T) {
	c := NewConsumer(configFor("amqp://127.0.0.1:1/"))

	err := c.Serve(context.Background(), func(context.Context, []byte) {})
	require.Error(t, err)
	assert.Equal(t, errs.KindTransport, errs.KindOf(err))
}

func configFor(url string) config.RabbitMQConfig {
	return config.RabbitMQConfig{URL: url, Queue: "q"}
}
