package pgsql

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	portsrepo "github.com/SscSPs/money_transfer_saga/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgxOutboxRepository struct {
	BaseRepository
}

func newPgxOutboxRepository(pool *pgxpool.Pool) *PgxOutboxRepository {
	return &PgxOutboxRepository{BaseRepository{Pool: pool}}
}

var _ portsrepo.OutboxRepositoryFacade = (*PgxOutboxRepository)(nil)

// SaveOutboxRecord must run in the unit of work of the change the record describes.
func (r *PgxOutboxRepository) SaveOutboxRecord(ctx context.Context, record domain.OutboxRecord) error {
	query := `
		INSERT INTO outbox_events (event_id, topic, partition_key, event_type, payload, published, attempts, last_error, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, 0, '', $6, $7);
	`
	_, err := r.db(ctx).Exec(ctx, query,
		record.EventID,
		record.Topic,
		record.PartitionKey,
		record.EventType,
		record.Payload,
		record.NextAttemptAt,
		record.CreatedAt,
	)
	if err != nil {
		return wrapWrite(err, apperrors.ErrDuplicate, "save outbox event %s", record.EventID)
	}
	return nil
}

// ClaimDue leases due records in insertion order. A record is skipped while an earlier
// unpublished record with the same partition key is not due, which includes records leased
// by another relay. SKIP LOCKED lets several relays claim disjoint batches.
func (r *PgxOutboxRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.OutboxRecord, error) {
	query := `
		WITH due AS (
			SELECT o.seq
			FROM outbox_events o
			WHERE o.published = FALSE
			  AND o.next_attempt_at <= $1
			  AND NOT EXISTS (
				SELECT 1 FROM outbox_events earlier
				WHERE earlier.partition_key = o.partition_key
				  AND earlier.published = FALSE
				  AND earlier.seq < o.seq
				  AND earlier.next_attempt_at > $1
			  )
			ORDER BY o.seq
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox_events SET next_attempt_at = $2
		FROM due
		WHERE outbox_events.seq = due.seq
		RETURNING outbox_events.seq, outbox_events.event_id, outbox_events.topic, outbox_events.partition_key, outbox_events.event_type, outbox_events.payload,
			outbox_events.attempts, outbox_events.last_error, outbox_events.next_attempt_at, outbox_events.created_at;
	`
	rows, err := r.db(ctx).Query(ctx, query, now, now.Add(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox records: %w", err)
	}
	defer rows.Close()

	type claimed struct {
		seq    int64
		record domain.OutboxRecord
	}
	batch := make([]claimed, 0, limit)
	for rows.Next() {
		var c claimed
		if err := rows.Scan(
			&c.seq,
			&c.record.EventID,
			&c.record.Topic,
			&c.record.PartitionKey,
			&c.record.EventType,
			&c.record.Payload,
			&c.record.Attempts,
			&c.record.LastError,
			&c.record.NextAttemptAt,
			&c.record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		batch = append(batch, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox rows: %w", err)
	}

	// RETURNING does not preserve the CTE order
	sort.Slice(batch, func(i, j int) bool { return batch[i].seq < batch[j].seq })
	records := make([]domain.OutboxRecord, len(batch))
	for i, c := range batch {
		records[i] = c.record
	}
	return records, nil
}

func (r *PgxOutboxRepository) MarkPublished(ctx context.Context, eventID string, at time.Time) error {
	tag, err := r.db(ctx).Exec(ctx, `UPDATE outbox_events SET published = TRUE, published_at = $2 WHERE event_id = $1;`, eventID, at)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event %s published: %w", eventID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event %s: %w", eventID, apperrors.ErrNotFound)
	}
	return nil
}

func (r *PgxOutboxRepository) MarkFailed(ctx context.Context, eventID string, attempts int, lastError string, nextAttemptAt time.Time) error {
	query := `UPDATE outbox_events SET attempts = $2, last_error = $3, next_attempt_at = $4 WHERE event_id = $1;`
	tag, err := r.db(ctx).Exec(ctx, query, eventID, attempts, lastError, nextAttemptAt)
	if err != nil {
		return fmt.Errorf("failed to record outbox failure for %s: %w", eventID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event %s: %w", eventID, apperrors.ErrNotFound)
	}
	return nil
}
