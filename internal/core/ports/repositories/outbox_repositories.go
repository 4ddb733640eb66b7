package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
)

// OutboxWriter is used inside the unit of work that produces an event.
type OutboxWriter interface {
	SaveOutboxRecord(ctx context.Context, record domain.OutboxRecord) error
}

// OutboxRelayStore is used by the relay.
type OutboxRelayStore interface {
	// ClaimDue returns up to limit unpublished records due at now, ordered by creation, and pushes
	// their next attempt to now+lease so concurrent relays skip them.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.OutboxRecord, error)

	MarkPublished(ctx context.Context, eventID string, at time.Time) error

	MarkFailed(ctx context.Context, eventID string, attempts int, lastError string, nextAttemptAt time.Time) error
}

// OutboxRepositoryFacade combines the outbox interfaces
type OutboxRepositoryFacade interface {
	OutboxWriter
	OutboxRelayStore
}
