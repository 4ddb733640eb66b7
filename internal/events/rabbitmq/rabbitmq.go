// Package rabbitmq implements the event channel on a RabbitMQ topic exchange.
// Topics are routing keys; each consumer group gets a durable queue named <group>.<topic>.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/events"
	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

const partitionKeyHeader = "x-partition-key"

var (
	// ErrNacked is returned when the broker refuses a published message.
	ErrNacked = errors.New("message nacked by broker")
	// ErrConsumerLost is reported when the connection or a consumer dies while still in use.
	ErrConsumerLost = errors.New("rabbitmq consumer lost")
)

// Dial connects to the broker, retrying with backoff until ctx is done.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	operation := func() error {
		var err error
		conn, err = amqp.Dial(url)
		if err != nil {
			logger.Warn("RabbitMQ not reachable yet", slog.String("error", err.Error()))
		}
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
}

// QueueName is the durable queue a group consumes a topic from.
func QueueName(group, topic string) string {
	return group + "." + topic
}

// Publisher publishes persistent messages and waits for publisher confirms.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *slog.Logger
}

var _ events.Publisher = (*Publisher)(nil)

// NewPublisher opens a confirm-mode channel on conn and declares exchange.
func NewPublisher(conn *amqp.Connection, exchange string, logger *slog.Logger) (*Publisher, error) {
	p := &Publisher{conn: conn, exchange: exchange, logger: logger.With(slog.String("exchange", exchange))}
	if err := p.openChannel(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) openChannel() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := declareExchange(ch, p.exchange); err != nil {
		ch.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	p.ch = ch
	return nil
}

// Publish sends msg with topic as routing key and blocks until the broker confirms it.
func (p *Publisher) Publish(ctx context.Context, topic string, msg events.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		p.logger.Warn("Publisher channel closed, reopening")
		if err := p.openChannel(); err != nil {
			return err
		}
	}

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, topic, false, false, toPublishing(msg))
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.ID, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("confirm %s: %w", msg.ID, err)
	}
	if !acked {
		return fmt.Errorf("%w: %s", ErrNacked, msg.ID)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	return p.ch.Close()
}

// Subscriber consumes with manual acknowledgement. Consumers are not re-established after a
// broker failure; Failed reports it so the process can restart.
type Subscriber struct {
	conn     *amqp.Connection
	exchange string
	prefetch int
	logger   *slog.Logger
	wg       sync.WaitGroup
	failed   chan error
}

var _ events.Subscriber = (*Subscriber)(nil)

// NewSubscriber creates a subscriber; prefetch bounds unacknowledged deliveries per queue.
func NewSubscriber(conn *amqp.Connection, exchange string, prefetch int, logger *slog.Logger) *Subscriber {
	if prefetch <= 0 {
		prefetch = 1
	}
	s := &Subscriber{
		conn:     conn,
		exchange: exchange,
		prefetch: prefetch,
		logger:   logger.With(slog.String("exchange", exchange)),
		failed:   make(chan error, 1),
	}

	// a graceful Close closes the notification channel without an error
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if amqpErr, ok := <-closed; ok && amqpErr != nil {
			s.logger.Error("RabbitMQ connection lost", slog.String("error", amqpErr.Error()))
			s.fail(fmt.Errorf("%w: connection closed: %v", ErrConsumerLost, amqpErr))
		}
	}()
	return s
}

// Failed yields the first unexpected loss of the connection or of a consumer.
func (s *Subscriber) Failed() <-chan error {
	return s.failed
}

func (s *Subscriber) fail(err error) {
	select {
	case s.failed <- err:
	default:
	}
}

// Subscribe declares and binds the group queue, then delivers to handler until ctx is cancelled.
// A handler error nacks with requeue.
func (s *Subscriber) Subscribe(ctx context.Context, topic, group string, handler events.Handler) error {
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	deliveries, err := s.setup(ch, topic, group)
	if err != nil {
		ch.Close()
		return err
	}

	logger := s.logger.With(slog.String("queue", QueueName(group, topic)))
	logger.Info("RabbitMQ consumer started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				logger.Info("Context cancelled, stopping RabbitMQ consumer")
				return
			case d, ok := <-deliveries:
				if !ok {
					if ctx.Err() == nil {
						logger.Error("Delivery channel closed")
						s.fail(fmt.Errorf("%w: %s stopped delivering", ErrConsumerLost, QueueName(group, topic)))
					}
					return
				}
				if err := handler(ctx, fromDelivery(d)); err != nil {
					logger.Warn("Handler failed, requeueing", slog.String("event_id", d.MessageId), slog.String("error", err.Error()))
					if nackErr := d.Nack(false, true); nackErr != nil {
						logger.Error("Nack failed", slog.String("error", nackErr.Error()))
					}
					continue
				}
				if ackErr := d.Ack(false); ackErr != nil {
					logger.Error("Ack failed", slog.String("error", ackErr.Error()))
				}
			}
		}
	}()
	return nil
}

func (s *Subscriber) setup(ch *amqp.Channel, topic, group string) (<-chan amqp.Delivery, error) {
	if err := declareExchange(ch, s.exchange); err != nil {
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	queue, err := ch.QueueDeclare(
		QueueName(group, topic), // name
		true,                    // durable
		false,                   // delete when unused
		false,                   // exclusive
		false,                   // no-wait
		nil,                     // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, topic, s.exchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}
	if err := ch.Qos(s.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}
	deliveries, err := ch.Consume(
		queue.Name, // queue
		"",         // consumer tag (auto-generated)
		false,      // auto-ack (we'll ack manually)
		false,      // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}
	return deliveries, nil
}

// Wait blocks until every consumer goroutine has stopped.
func (s *Subscriber) Wait() {
	s.wg.Wait()
}

func toPublishing(msg events.Message) amqp.Publishing {
	published := msg.PublishedAt
	if published.IsZero() {
		published = time.Now().UTC()
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    published,
		Headers:      amqp.Table{partitionKeyHeader: msg.PartitionKey},
		Body:         msg.Body,
	}
}

func fromDelivery(d amqp.Delivery) events.Message {
	key, _ := d.Headers[partitionKeyHeader].(string)
	return events.Message{
		ID:           d.MessageId,
		Topic:        d.RoutingKey,
		PartitionKey: key,
		Body:         d.Body,
		Redelivered:  d.Redelivered,
		PublishedAt:  d.Timestamp,
	}
}
