package services

import (
	"context"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	"github.com/SscSPs/money_transfer_saga/internal/dto"
)

// AccountReaderSvc defines read operations for account data
type AccountReaderSvc interface {
	// GetAccountByNumber retrieves an account by its customer facing number.
	GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)

	// ListAccountsByCustomer retrieves all accounts owned by a customer.
	ListAccountsByCustomer(ctx context.Context, customerID string) ([]domain.Account, error)
}

// AccountWriterSvc defines write operations for account data
type AccountWriterSvc interface {
	// CreateAccount opens an account and emits account-created.
	CreateAccount(ctx context.Context, req dto.CreateAccountRequest) (*domain.Account, error)

	// UpdateAccountStatus moves an account through its lifecycle and emits account-status-updated.
	UpdateAccountStatus(ctx context.Context, accountNumber string, status string) (*domain.Account, error)

	// AdjustBalance credits or debits an account directly through the ledger.
	AdjustBalance(ctx context.Context, accountNumber string, req dto.AdjustBalanceRequest) (*domain.Account, error)

	// DeleteAccount removes an account no open transfer references.
	DeleteAccount(ctx context.Context, accountNumber string) error
}

// AccountSvcFacade combines all account-related service interfaces
type AccountSvcFacade interface {
	AccountReaderSvc
	AccountWriterSvc
}
