package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	portsrepo "github.com/SscSPs/money_transfer_saga/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgxTransactionRepository struct {
	BaseRepository
}

func newPgxTransactionRepository(pool *pgxpool.Pool) *PgxTransactionRepository {
	return &PgxTransactionRepository{BaseRepository{Pool: pool}}
}

var _ portsrepo.TransactionRepositoryFacade = (*PgxTransactionRepository)(nil)

const transactionColumns = `transaction_id, from_account_number, to_account_number, amount, currency, transaction_type, description,
	status, reason, requires_reconciliation, version, transaction_date, created_at, updated_at`

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var txn domain.Transaction
	err := row.Scan(
		&txn.TransactionID,
		&txn.FromAccountNumber,
		&txn.ToAccountNumber,
		&txn.Amount,
		&txn.Currency,
		&txn.TransactionType,
		&txn.Description,
		&txn.Status,
		&txn.Reason,
		&txn.RequiresReconciliation,
		&txn.Version,
		&txn.TransactionDate,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	return txn, err
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()
	txns := make([]domain.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return txns, nil
}

// SaveTransaction inserts a new transaction.
func (r *PgxTransactionRepository) SaveTransaction(ctx context.Context, txn domain.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);
	`
	_, err := r.db(ctx).Exec(ctx, query,
		txn.TransactionID,
		txn.FromAccountNumber,
		txn.ToAccountNumber,
		txn.Amount,
		txn.Currency,
		txn.TransactionType,
		txn.Description,
		txn.Status,
		txn.Reason,
		txn.RequiresReconciliation,
		txn.Version,
		txn.TransactionDate,
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	if err != nil {
		return wrapWrite(err, apperrors.ErrDuplicateTransaction, "save transaction %s", txn.TransactionID)
	}
	return nil
}

// FindTransactionByID retrieves a transaction by its id.
func (r *PgxTransactionRepository) FindTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = $1;`

	txn, err := scanTransaction(r.db(ctx).QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to find transaction %s: %w", transactionID, err)
	}
	return &txn, nil
}

// ListTransactionsByAccount lists transactions on the given side of the account, newest first.
func (r *PgxTransactionRepository) ListTransactionsByAccount(ctx context.Context, accountNumber string, direction domain.TransactionDirection) ([]domain.Transaction, error) {
	var where string
	switch direction {
	case domain.DirectionFrom:
		where = `from_account_number = $1`
	case domain.DirectionTo:
		where = `to_account_number = $1`
	default:
		where = `(from_account_number = $1 OR to_account_number = $1)`
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + where + ` ORDER BY created_at DESC;`

	rows, err := r.db(ctx).Query(ctx, query, accountNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for account %s: %w", accountNumber, err)
	}
	return collectTransactions(rows)
}

// ListStaleTransactions lists transactions in statuses untouched since updatedBefore, oldest first.
func (r *PgxTransactionRepository) ListStaleTransactions(ctx context.Context, statuses []domain.TransactionStatus, updatedBefore time.Time, limit int) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = ANY($1) AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3;
	`
	raw := make([]string, len(statuses))
	for i, s := range statuses {
		raw[i] = string(s)
	}

	rows, err := r.db(ctx).Query(ctx, query, raw, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale transactions: %w", err)
	}
	return collectTransactions(rows)
}

// CountActiveTransactions counts non-terminal transactions on either side of the account.
func (r *PgxTransactionRepository) CountActiveTransactions(ctx context.Context, accountNumber string) (int, error) {
	query := `
		SELECT COUNT(*) FROM transactions
		WHERE (from_account_number = $1 OR to_account_number = $1) AND status = ANY($2);
	`
	open := domain.NonTerminalStatuses()
	raw := make([]string, len(open))
	for i, s := range open {
		raw[i] = string(s)
	}

	var count int
	if err := r.db(ctx).QueryRow(ctx, query, accountNumber, raw).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions for account %s: %w", accountNumber, err)
	}
	return count, nil
}

// UpdateTransactionStatus applies change only if the row still has the expected status and version.
func (r *PgxTransactionRepository) UpdateTransactionStatus(ctx context.Context, change domain.StatusChange) error {
	query := `
		UPDATE transactions
		SET status = $2, reason = $3, requires_reconciliation = $4, version = version + 1, updated_at = $5
		WHERE transaction_id = $1 AND status = $6 AND version = $7;
	`
	tag, err := r.db(ctx).Exec(ctx, query,
		change.TransactionID,
		change.To,
		change.Reason,
		change.RequiresReconciliation,
		change.At,
		change.From,
		change.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", change.TransactionID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.FindTransactionByID(ctx, change.TransactionID); err != nil {
		return err
	}
	return fmt.Errorf("transaction %s is no longer %s at version %d: %w", change.TransactionID, change.From, change.ExpectedVersion, apperrors.ErrVersionConflict)
}
