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
	"github.com/shopspring/decimal"
)

type PgxAccountRepository struct {
	BaseRepository
}

// newPgxAccountRepository creates a new repository for account data.
func newPgxAccountRepository(pool *pgxpool.Pool) *PgxAccountRepository {
	return &PgxAccountRepository{BaseRepository{Pool: pool}}
}

// Ensure PgxAccountRepository implements portsrepo.AccountRepositoryFacade
var _ portsrepo.AccountRepositoryFacade = (*PgxAccountRepository)(nil)

const accountColumns = `account_id, account_number, customer_id, account_type, currency, balance, status, version, created_at, updated_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var acc domain.Account
	err := row.Scan(
		&acc.AccountID,
		&acc.AccountNumber,
		&acc.CustomerID,
		&acc.AccountType,
		&acc.Currency,
		&acc.Balance,
		&acc.Status,
		&acc.Version,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	return acc, err
}

// SaveAccount inserts a new account.
func (r *PgxAccountRepository) SaveAccount(ctx context.Context, account domain.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	_, err := r.db(ctx).Exec(ctx, query,
		account.AccountID,
		account.AccountNumber,
		account.CustomerID,
		account.AccountType,
		account.Currency,
		account.Balance,
		account.Status,
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return wrapWrite(err, apperrors.ErrDuplicate, "save account %s", account.AccountNumber)
	}
	return nil
}

// FindAccountByNumber retrieves an account by its customer facing number.
func (r *PgxAccountRepository) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1;`

	acc, err := scanAccount(r.db(ctx).QueryRow(ctx, query, accountNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to find account %s: %w", accountNumber, err)
	}
	return &acc, nil
}

// ListAccountsByCustomer retrieves a customer's accounts, oldest first.
func (r *PgxAccountRepository) ListAccountsByCustomer(ctx context.Context, customerID string) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE customer_id = $1 ORDER BY created_at;`

	rows, err := r.db(ctx).Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts for customer %s: %w", customerID, err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}
	return accounts, nil
}

// UpdateAccountStatus sets the lifecycle status. The version only counts balance writes.
func (r *PgxAccountRepository) UpdateAccountStatus(ctx context.Context, accountNumber string, status domain.AccountStatus, now time.Time) error {
	query := `UPDATE accounts SET status = $2, updated_at = $3 WHERE account_number = $1;`

	tag, err := r.db(ctx).Exec(ctx, query, accountNumber, status, now)
	if err != nil {
		return fmt.Errorf("failed to update status of account %s: %w", accountNumber, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrAccountNotFound
	}
	return nil
}

// DeleteAccount removes an account permanently.
func (r *PgxAccountRepository) DeleteAccount(ctx context.Context, accountNumber string) error {
	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM accounts WHERE account_number = $1;`, accountNumber)
	if err != nil {
		return fmt.Errorf("failed to delete account %s: %w", accountNumber, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrAccountNotFound
	}
	return nil
}

// UpdateBalance writes balance only if the stored version still equals expectedVersion
// and the account is still active. A status change racing the caller's read surfaces as
// a version conflict, so the caller re-reads and sees the new status.
func (r *PgxAccountRepository) UpdateBalance(ctx context.Context, accountNumber string, balance decimal.Decimal, expectedVersion int64, now time.Time) (int64, error) {
	query := `
		UPDATE accounts
		SET balance = $2, version = version + 1, updated_at = $4
		WHERE account_number = $1 AND version = $3 AND status = $5
		RETURNING version;
	`
	var newVersion int64
	err := r.db(ctx).QueryRow(ctx, query, accountNumber, balance, expectedVersion, now, domain.AccountActive).Scan(&newVersion)
	if err == nil {
		return newVersion, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to update balance of account %s: %w", accountNumber, err)
	}

	var exists bool
	if err := r.db(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE account_number = $1);`, accountNumber).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check account %s: %w", accountNumber, err)
	}
	if !exists {
		return 0, apperrors.ErrAccountNotFound
	}
	return 0, fmt.Errorf("account %s moved past version %d or left %s: %w", accountNumber, expectedVersion, domain.AccountActive, apperrors.ErrVersionConflict)
}
