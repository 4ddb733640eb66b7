package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Consumer wraps handlers with bounded retries and dead-lettering.
type Consumer struct {
	group       string
	sink        DeadLetterSink
	logger      *slog.Logger
	maxAttempts int
	initial     time.Duration
	maxInterval time.Duration
	now         func() time.Time
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithMaxAttempts sets how many times a handler runs before the message is dead-lettered.
func WithMaxAttempts(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryInterval sets the initial and maximum backoff between handler attempts.
func WithRetryInterval(initial, maxInterval time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if initial > 0 {
			c.initial = initial
		}
		if maxInterval >= c.initial {
			c.maxInterval = maxInterval
		}
	}
}

// WithConsumerLogger sets the logger used for retry and dead-letter reports.
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConsumer creates a consumer for group that dead-letters into sink.
func NewConsumer(group string, sink DeadLetterSink, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		group:       group,
		sink:        sink,
		logger:      slog.Default(),
		maxAttempts: 5,
		initial:     100 * time.Millisecond,
		maxInterval: 5 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("consumer_group", group))
	return c
}

// Wrap returns a handler that retries h and dead-letters the message once attempts run out.
// Validation errors are not retried. If the sink fails the error is returned so the broker
// redelivers the message instead of dropping it.
func (c *Consumer) Wrap(h Handler) Handler {
	return func(ctx context.Context, msg Message) error {
		attempts := 0
		operation := func() error {
			attempts++
			err := h(ctx, msg)
			if err == nil {
				return nil
			}
			if errors.Is(err, apperrors.ErrValidation) {
				return backoff.Permanent(err)
			}
			c.logger.Warn("Handler failed, will retry",
				slog.String("topic", msg.Topic),
				slog.String("event_id", msg.ID),
				slog.Int("attempt", attempts),
				slog.String("error", err.Error()))
			return err
		}

		err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxAttempts-1)), ctx))
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		letter := domain.DeadLetter{
			ID:            uuid.NewString(),
			Topic:         msg.Topic,
			ConsumerGroup: c.group,
			EventID:       msg.ID,
			Payload:       msg.Body,
			Error:         err.Error(),
			Attempts:      attempts,
			CreatedAt:     c.now().UTC(),
		}
		if sinkErr := c.sink.SaveDeadLetter(ctx, letter); sinkErr != nil {
			c.logger.Error("Dead letter sink failed, message will be redelivered",
				slog.String("topic", msg.Topic),
				slog.String("event_id", msg.ID),
				slog.String("error", sinkErr.Error()))
			return fmt.Errorf("dead letter %s: %w", msg.ID, sinkErr)
		}

		c.logger.Error("Message dead-lettered",
			slog.String("topic", msg.Topic),
			slog.String("event_id", msg.ID),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()))
		return nil
	}
}

func (c *Consumer) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	b.MaxInterval = c.maxInterval
	b.MaxElapsedTime = 0
	return b
}

// EventHandler handles a decoded envelope.
type EventHandler func(ctx context.Context, evt domain.Event) error

// DecodeEvents adapts an EventHandler to a Handler. Undecodable bodies fail validation and are
// dead-lettered without retries.
func DecodeEvents(fn EventHandler) Handler {
	return func(ctx context.Context, msg Message) error {
		evt, err := domain.ParseEvent(msg.Body)
		if err != nil {
			return err
		}
		return fn(ctx, evt)
	}
}
