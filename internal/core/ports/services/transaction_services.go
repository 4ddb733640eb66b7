package services

import (
	"context"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	"github.com/SscSPs/money_transfer_saga/internal/dto"
)

// TransactionReaderSvc defines read operations for transfers
type TransactionReaderSvc interface {
	GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error)

	ListTransactionsByAccount(ctx context.Context, accountNumber string, direction domain.TransactionDirection) ([]domain.Transaction, error)
}

// TransactionCoordinatorSvc drives transfers through the saga.
type TransactionCoordinatorSvc interface {
	// CreateTransaction records a PENDING transaction. A retried request with the same id returns
	// the existing record.
	CreateTransaction(ctx context.Context, req dto.CreateTransferRequest) (*domain.Transaction, error)

	// Drive advances the transaction until it is terminal or a step outcome is unknown.
	Drive(ctx context.Context, transactionID string) (*domain.Transaction, error)

	// CreateTransfer creates and drives a transaction in one call.
	CreateTransfer(ctx context.Context, req dto.CreateTransferRequest) (*domain.Transaction, error)

	// UpdateTransactionStatus is the operator override restricted to PENDING->FAILED and
	// DEBITED->COMPENSATING.
	UpdateTransactionStatus(ctx context.Context, transactionID string, status string, reason string) (*domain.Transaction, error)
}

// TransactionSvcFacade combines all transaction-related service interfaces
type TransactionSvcFacade interface {
	TransactionReaderSvc
	TransactionCoordinatorSvc
}
