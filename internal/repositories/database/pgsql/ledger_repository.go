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

type PgxLedgerRepository struct {
	BaseRepository
}

func newPgxLedgerRepository(pool *pgxpool.Pool) *PgxLedgerRepository {
	return &PgxLedgerRepository{BaseRepository{Pool: pool}}
}

var _ portsrepo.LedgerEntryRepository = (*PgxLedgerRepository)(nil)

// FindEntry returns the entry recorded for key.
func (r *PgxLedgerRepository) FindEntry(ctx context.Context, key domain.StepKey) (*domain.LedgerEntry, error) {
	query := `
		SELECT entry_id, account_id, account_number, transaction_id, step, amount, previous_balance, balance_after, version_after, voided, created_at
		FROM ledger_entries
		WHERE transaction_id = $1 AND step = $2;
	`
	var e domain.LedgerEntry
	err := r.db(ctx).QueryRow(ctx, query, key.TransactionID, key.Step).Scan(
		&e.EntryID,
		&e.AccountID,
		&e.AccountNumber,
		&e.TransactionID,
		&e.Step,
		&e.Amount,
		&e.PreviousBalance,
		&e.BalanceAfter,
		&e.VersionAfter,
		&e.Voided,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find ledger entry %s/%s: %w", key.TransactionID, key.Step, err)
	}
	return &e, nil
}

// SaveEntry inserts an entry; a second entry for the same step, voided or not, is a duplicate.
func (r *PgxLedgerRepository) SaveEntry(ctx context.Context, entry domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (entry_id, account_id, account_number, transaction_id, step, amount, previous_balance, balance_after, version_after, voided, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`
	_, err := r.db(ctx).Exec(ctx, query,
		entry.EntryID,
		entry.AccountID,
		entry.AccountNumber,
		entry.TransactionID,
		entry.Step,
		entry.Amount,
		entry.PreviousBalance,
		entry.BalanceAfter,
		entry.VersionAfter,
		entry.Voided,
		entry.CreatedAt,
	)
	if err != nil {
		return wrapWrite(err, apperrors.ErrDuplicate, "save ledger entry %s/%s", entry.TransactionID, entry.Step)
	}
	return nil
}
