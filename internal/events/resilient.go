package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// BreakerSettings tunes the circuit breaker in front of a publisher.
type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

// ResilientPublisher retries transport failures with backoff behind a circuit breaker.
// While the breaker is open Publish fails fast with apperrors.ErrPublishUnavailable.
type ResilientPublisher struct {
	inner      Publisher
	breaker    *gobreaker.CircuitBreaker
	maxRetries uint64
	initial    time.Duration
	logger     *slog.Logger
}

// NewResilientPublisher wraps inner.
func NewResilientPublisher(inner Publisher, settings BreakerSettings, maxRetries int, initial time.Duration, logger *slog.Logger) *ResilientPublisher {
	if settings.Name == "" {
		settings.Name = "event-publisher"
	}
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	if settings.HalfOpenRequests == 0 {
		settings.HalfOpenRequests = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	if initial <= 0 {
		initial = 50 * time.Millisecond
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	p := &ResilientPublisher{
		inner:      inner,
		maxRetries: uint64(maxRetries),
		initial:    initial,
		logger:     logger,
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.HalfOpenRequests,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// a caller giving up is not a broker failure
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return p
}

// Publish sends msg, retrying transport errors until ctx is done or retries run out.
func (p *ResilientPublisher) Publish(ctx context.Context, topic string, msg Message) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxElapsedTime = 0

	operation := func() error {
		_, err := p.breaker.Execute(func() (interface{}, error) {
			return nil, p.inner.Publish(ctx, topic, msg)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(fmt.Errorf("%w: %v", apperrors.ErrPublishUnavailable, err))
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, p.maxRetries), ctx))
	if err != nil {
		if errors.Is(err, apperrors.ErrPublishUnavailable) {
			return err
		}
		return fmt.Errorf("%w: publish %s to %s: %v", apperrors.ErrPublishUnavailable, msg.ID, topic, err)
	}
	return nil
}

// State reports the breaker state.
func (p *ResilientPublisher) State() gobreaker.State {
	return p.breaker.State()
}

func (p *ResilientPublisher) Close() error {
	return p.inner.Close()
}
