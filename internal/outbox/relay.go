// Package outbox relays committed outbox rows to the event channel.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	portsrepo "github.com/SscSPs/money_transfer_saga/internal/core/ports/repositories"
	"github.com/SscSPs/money_transfer_saga/internal/events"
	"github.com/cenkalti/backoff/v4"
)

// Relay publishes due outbox rows and marks them published only after the broker acknowledged
// them. Failed rows are retried forever with growing delays. Rows sharing a partition key are
// published in insertion order: a failure holds back every later row of that key.
type Relay struct {
	store          portsrepo.OutboxRelayStore
	publisher      events.Publisher
	logger         *slog.Logger
	batchSize      int
	pollInterval   time.Duration
	publishTimeout time.Duration
	lease          time.Duration
	retryBase      time.Duration
	retryMax       time.Duration
	now            func() time.Time
}

// Option configures a Relay.
type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithPublishTimeout bounds the wait for a broker acknowledgement.
func WithPublishTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.publishTimeout = d
		}
	}
}

// WithRetryBackoff sets the delay after the first failed attempt and its cap.
func WithRetryBackoff(base, maxDelay time.Duration) Option {
	return func(r *Relay) {
		if base > 0 {
			r.retryBase = base
		}
		if maxDelay >= r.retryBase {
			r.retryMax = maxDelay
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRelay creates a relay over store and publisher.
func NewRelay(store portsrepo.OutboxRelayStore, publisher events.Publisher, opts ...Option) *Relay {
	r := &Relay{
		store:          store,
		publisher:      publisher,
		logger:         slog.Default(),
		batchSize:      100,
		pollInterval:   500 * time.Millisecond,
		publishTimeout: 5 * time.Second,
		retryBase:      time.Second,
		retryMax:       5 * time.Minute,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	// the lease must outlive every publish of a batch
	r.lease = time.Duration(r.batchSize)*r.publishTimeout + r.pollInterval
	r.logger = r.logger.With(slog.String("component", "outbox-relay"))
	return r
}

// RelayOnce claims one batch and publishes it. It returns how many rows were published.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	records, err := r.store.ClaimDue(ctx, r.now().UTC(), r.lease, r.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	blocked := make(map[string]bool)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		if blocked[rec.PartitionKey] {
			r.release(ctx, rec)
			continue
		}

		if err := r.publish(ctx, rec); err != nil {
			blocked[rec.PartitionKey] = true
			r.markFailed(ctx, rec, err)
			continue
		}

		if err := r.store.MarkPublished(ctx, rec.EventID, r.now().UTC()); err != nil {
			// the row stays unpublished and is sent again after the lease; consumers dedup
			r.logger.Error("Failed to mark outbox row published", slog.String("event_id", rec.EventID), slog.String("error", err.Error()))
			blocked[rec.PartitionKey] = true
			continue
		}
		published++
	}
	return published, nil
}

func (r *Relay) publish(ctx context.Context, rec domain.OutboxRecord) error {
	pctx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()

	msg := events.Message{
		ID:           rec.EventID,
		Topic:        rec.Topic,
		PartitionKey: rec.PartitionKey,
		Body:         rec.Payload,
		PublishedAt:  rec.CreatedAt,
	}
	return r.publisher.Publish(pctx, rec.Topic, msg)
}

func (r *Relay) markFailed(ctx context.Context, rec domain.OutboxRecord, cause error) {
	attempts := rec.Attempts + 1
	next := r.now().UTC().Add(r.retryDelay(attempts))
	r.logger.Warn("Outbox publish failed",
		slog.String("event_id", rec.EventID),
		slog.String("topic", rec.Topic),
		slog.Int("attempts", attempts),
		slog.Time("next_attempt_at", next),
		slog.String("error", cause.Error()))

	if err := r.store.MarkFailed(ctx, rec.EventID, attempts, cause.Error(), next); err != nil {
		r.logger.Error("Failed to record outbox failure", slog.String("event_id", rec.EventID), slog.String("error", err.Error()))
	}
}

// release hands a claimed row back without counting an attempt. ClaimDue keeps holding it back
// until the earlier row of its partition is published.
func (r *Relay) release(ctx context.Context, rec domain.OutboxRecord) {
	if err := r.store.MarkFailed(ctx, rec.EventID, rec.Attempts, rec.LastError, r.now().UTC()); err != nil {
		r.logger.Error("Failed to release outbox row", slog.String("event_id", rec.EventID), slog.String("error", err.Error()))
	}
}

// retryDelay is the exponential delay before attempt number attempts+1.
func (r *Relay) retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.retryBase
	b.MaxInterval = r.retryMax
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()

	delay := r.retryBase
	for i := 0; i < attempts && i < 64 && delay < r.retryMax; i++ {
		delay = b.NextBackOff()
	}
	if delay > r.retryMax {
		delay = r.retryMax
	}
	return delay
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("Outbox relay started", slog.Duration("poll_interval", r.pollInterval), slog.Int("batch_size", r.batchSize))
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Outbox relay stopped")
			return nil
		case <-ticker.C:
			for {
				n, err := r.RelayOnce(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					r.logger.Error("Outbox relay pass failed", slog.String("error", err.Error()))
					break
				}
				// keep draining while full batches come back
				if n < r.batchSize {
					break
				}
			}
		}
	}
}
