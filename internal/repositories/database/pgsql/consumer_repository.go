package pgsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	portsrepo "github.com/SscSPs/money_transfer_saga/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxConsumerRepository stores consumer-side state: dedup marks, the audit chain and dead letters.
type PgxConsumerRepository struct {
	BaseRepository
}

func newPgxConsumerRepository(pool *pgxpool.Pool) *PgxConsumerRepository {
	return &PgxConsumerRepository{BaseRepository{Pool: pool}}
}

var (
	_ portsrepo.ProcessedEventRepository = (*PgxConsumerRepository)(nil)
	_ portsrepo.BalanceAuditRepository   = (*PgxConsumerRepository)(nil)
	_ portsrepo.DeadLetterRepository     = (*PgxConsumerRepository)(nil)
)

func (r *PgxConsumerRepository) MarkProcessed(ctx context.Context, processed domain.ProcessedEvent) (bool, error) {
	query := `
		INSERT INTO processed_events (consumer_group, event_id, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (consumer_group, event_id) DO NOTHING;
	`
	tag, err := r.db(ctx).Exec(ctx, query, processed.ConsumerGroup, processed.EventID, processed.ProcessedAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark event %s processed: %w", processed.EventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgxConsumerRepository) LastAudit(ctx context.Context, accountNumber string) (*domain.BalanceAudit, error) {
	query := `
		SELECT event_id, account_number, transaction_id, previous_balance, new_balance, amount, operation_type, version, chain_broken, recorded_at
		FROM balance_audit
		WHERE account_number = $1
		ORDER BY seq DESC
		LIMIT 1;
	`
	var a domain.BalanceAudit
	err := r.db(ctx).QueryRow(ctx, query, accountNumber).Scan(
		&a.EventID,
		&a.AccountNumber,
		&a.TransactionID,
		&a.PreviousBalance,
		&a.NewBalance,
		&a.Amount,
		&a.OperationType,
		&a.Version,
		&a.ChainBroken,
		&a.RecordedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find last audit for %s: %w", accountNumber, err)
	}
	return &a, nil
}

func (r *PgxConsumerRepository) SaveAudit(ctx context.Context, audit domain.BalanceAudit) error {
	query := `
		INSERT INTO balance_audit (event_id, account_number, transaction_id, previous_balance, new_balance, amount, operation_type, version, chain_broken, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	_, err := r.db(ctx).Exec(ctx, query,
		audit.EventID,
		audit.AccountNumber,
		audit.TransactionID,
		audit.PreviousBalance,
		audit.NewBalance,
		audit.Amount,
		audit.OperationType,
		audit.Version,
		audit.ChainBroken,
		audit.RecordedAt,
	)
	if err != nil {
		return wrapWrite(err, apperrors.ErrDuplicate, "save audit for event %s", audit.EventID)
	}
	return nil
}

func (r *PgxConsumerRepository) SaveDeadLetter(ctx context.Context, letter domain.DeadLetter) error {
	query := `
		INSERT INTO dead_letters (id, topic, consumer_group, event_id, payload, error, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err := r.db(ctx).Exec(ctx, query,
		letter.ID,
		letter.Topic,
		letter.ConsumerGroup,
		letter.EventID,
		letter.Payload,
		letter.Error,
		letter.Attempts,
		letter.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save dead letter for %s: %w", letter.EventID, err)
	}
	return nil
}

// ListDeadLetters returns the newest letters first.
func (r *PgxConsumerRepository) ListDeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	query := `
		SELECT id, topic, consumer_group, event_id, payload, error, attempts, created_at
		FROM dead_letters
		ORDER BY created_at DESC
		LIMIT $1;
	`
	rows, err := r.db(ctx).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	letters := make([]domain.DeadLetter, 0)
	for rows.Next() {
		var l domain.DeadLetter
		if err := rows.Scan(&l.ID, &l.Topic, &l.ConsumerGroup, &l.EventID, &l.Payload, &l.Error, &l.Attempts, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter row: %w", err)
		}
		letters = append(letters, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letter rows: %w", err)
	}
	return letters, nil
}
