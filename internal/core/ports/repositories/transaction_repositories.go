package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
)

// TransactionReader defines read operations for transfer transactions
type TransactionReader interface {
	// FindTransactionByID retrieves a transaction by its id.
	FindTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error)

	// ListTransactionsByAccount lists transactions where the account is on the given side, newest first.
	ListTransactionsByAccount(ctx context.Context, accountNumber string, direction domain.TransactionDirection) ([]domain.Transaction, error)

	// ListStaleTransactions lists transactions in one of statuses not updated since updatedBefore.
	ListStaleTransactions(ctx context.Context, statuses []domain.TransactionStatus, updatedBefore time.Time, limit int) ([]domain.Transaction, error)

	// CountActiveTransactions counts non-terminal transactions referencing the account.
	CountActiveTransactions(ctx context.Context, accountNumber string) (int, error)
}

// TransactionWriter defines write operations for transfer transactions
type TransactionWriter interface {
	// SaveTransaction persists a new transaction; apperrors.ErrDuplicateTransaction if the id is taken.
	SaveTransaction(ctx context.Context, txn domain.Transaction) error

	// UpdateTransactionStatus applies the change only if the stored version and status match.
	UpdateTransactionStatus(ctx context.Context, change domain.StatusChange) error
}

// TransactionRepositoryFacade combines all transaction-related repository interfaces
type TransactionRepositoryFacade interface {
	TransactionReader
	TransactionWriter
}
