// Package memory is an in-process event broker for local mode and tests.
package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/events"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("memory broker closed")

const defaultBuffer = 1024

type queue struct {
	name     string
	messages chan events.Message
}

// Broker routes each topic to one queue per consumer group. Subscribers of the same group
// share the queue. A failed delivery is retried in place so per-queue order holds.
type Broker struct {
	mu      sync.Mutex
	queues  map[string]map[string]*queue // topic -> group -> queue
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
	buffer  int
	redelay time.Duration
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Option configures the broker.
type Option func(*Broker)

// WithBuffer sets the per-queue capacity.
func WithBuffer(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithRedeliveryDelay sets the pause before a nacked message is delivered again.
func WithRedeliveryDelay(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.redelay = d
		}
	}
}

// WithLogger sets the broker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBroker creates an empty broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		queues:  make(map[string]map[string]*queue),
		done:    make(chan struct{}),
		buffer:  defaultBuffer,
		redelay: 10 * time.Millisecond,
		logger:  slog.Default(),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var (
	_ events.Publisher  = (*Broker)(nil)
	_ events.Subscriber = (*Broker)(nil)
)

// Publish enqueues msg on every group queue bound to topic. With no subscribers the message is
// dropped, as with an exchange that has no bound queues.
func (b *Broker) Publish(ctx context.Context, topic string, msg events.Message) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	targets := make([]*queue, 0, len(b.queues[topic]))
	for _, q := range b.queues[topic] {
		targets = append(targets, q)
	}
	b.mu.Unlock()

	msg.Topic = topic
	if msg.PublishedAt.IsZero() {
		msg.PublishedAt = b.nowFunc().UTC()
	}
	for _, q := range targets {
		select {
		case q.messages <- msg:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return ErrClosed
		}
	}
	return nil
}

// Subscribe binds handler to the group's queue for topic and starts delivering in the background.
func (b *Broker) Subscribe(ctx context.Context, topic, group string, handler events.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	groups, ok := b.queues[topic]
	if !ok {
		groups = make(map[string]*queue)
		b.queues[topic] = groups
	}
	q, ok := groups[group]
	if !ok {
		q = &queue{name: group + "." + topic, messages: make(chan events.Message, b.buffer)}
		groups[group] = q
	}

	b.wg.Add(1)
	go b.deliver(ctx, q, handler)
	return nil
}

func (b *Broker) deliver(ctx context.Context, q *queue, handler events.Handler) {
	defer b.wg.Done()
	logger := b.logger.With(slog.String("queue", q.name))

	for {
		var msg events.Message
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case msg = <-q.messages:
		}

		for {
			err := handler(ctx, msg)
			if err == nil {
				break
			}
			logger.Warn("Delivery failed, redelivering", slog.String("event_id", msg.ID), slog.String("error", err.Error()))
			msg.Redelivered = true
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case <-time.After(b.redelay):
			}
		}
	}
}

// Close stops delivery and waits for in-flight handlers to return.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
