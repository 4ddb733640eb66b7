package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	"github.com/shopspring/decimal"
)

// AccountReader defines read operations for account data
type AccountReader interface {
	// FindAccountByNumber retrieves an account by its customer facing number.
	FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)

	// ListAccountsByCustomer retrieves all accounts owned by a customer.
	ListAccountsByCustomer(ctx context.Context, customerID string) ([]domain.Account, error)
}

// AccountWriter defines write operations for account data
type AccountWriter interface {
	// SaveAccount persists a new account.
	SaveAccount(ctx context.Context, account domain.Account) error

	// UpdateAccountStatus changes the lifecycle status of an account.
	UpdateAccountStatus(ctx context.Context, accountNumber string, status domain.AccountStatus, now time.Time) error

	// DeleteAccount removes an account.
	DeleteAccount(ctx context.Context, accountNumber string) error
}

// AccountBalanceWriter is the ledger's compare-and-swap on an account balance.
type AccountBalanceWriter interface {
	// UpdateBalance sets the balance only when the stored version equals expectedVersion and
	// returns apperrors.ErrVersionConflict otherwise.
	UpdateBalance(ctx context.Context, accountNumber string, balance decimal.Decimal, expectedVersion int64, now time.Time) (int64, error)
}

// AccountRepositoryFacade combines all account-related repository interfaces
type AccountRepositoryFacade interface {
	AccountReader
	AccountWriter
	AccountBalanceWriter
}
