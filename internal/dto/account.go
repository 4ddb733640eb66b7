package dto

import (
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	"github.com/shopspring/decimal"
)

// CreateAccountRequest defines the data needed to open a new account.
type CreateAccountRequest struct {
	CustomerID     string             `json:"customerId" binding:"required" validate:"required"`
	AccountType    domain.AccountType `json:"accountType" binding:"required,oneof=CHECKING SAVINGS BUSINESS" validate:"required,oneof=CHECKING SAVINGS BUSINESS"`
	Currency       string             `json:"currency" binding:"required,len=3,uppercase" validate:"required,len=3,uppercase"`
	InitialBalance decimal.Decimal    `json:"initialBalance"` // Optional, defaults to zero
}

// UpdateAccountStatusRequest carries the requested lifecycle status.
type UpdateAccountStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// AdjustBalanceRequest is a direct deposit or withdrawal.
// Reference makes the adjustment idempotent when the same request is retried.
type AdjustBalanceRequest struct {
	Amount        decimal.Decimal      `json:"amount"`
	OperationType domain.OperationType `json:"operationType" binding:"required,oneof=CREDIT DEBIT" validate:"required,oneof=CREDIT DEBIT"`
	Reference     string               `json:"reference"`
	Currency      string               `json:"currency"`
}

// ListAccountsParams defines query parameters for listing accounts.
type ListAccountsParams struct {
	CustomerID string `form:"customerId" binding:"required"`
}

// AccountResponse defines the data returned for an account.
// Mirrors domain.Account.
type AccountResponse struct {
	AccountID     string               `json:"accountId"`
	AccountNumber string               `json:"accountNumber"`
	CustomerID    string               `json:"customerId"`
	AccountType   domain.AccountType   `json:"accountType"`
	Currency      string               `json:"currency"`
	Balance       decimal.Decimal      `json:"balance"`
	Status        domain.AccountStatus `json:"status"`
	Version       int64                `json:"version"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

// ListAccountsResponse wraps the list of accounts.
type ListAccountsResponse struct {
	Accounts []AccountResponse `json:"accounts"`
}

// ToAccountResponse converts a domain.Account to AccountResponse DTO
func ToAccountResponse(acc *domain.Account) AccountResponse {
	return AccountResponse{
		AccountID:     acc.AccountID,
		AccountNumber: acc.AccountNumber,
		CustomerID:    acc.CustomerID,
		AccountType:   acc.AccountType,
		Currency:      acc.Currency,
		Balance:       acc.Balance,
		Status:        acc.Status,
		Version:       acc.Version,
		CreatedAt:     acc.CreatedAt,
		UpdatedAt:     acc.UpdatedAt,
	}
}

// ToListAccountResponse converts a slice of domain.Account to the list DTO
func ToListAccountResponse(accounts []domain.Account) ListAccountsResponse {
	res := make([]AccountResponse, len(accounts))
	for i := range accounts {
		res[i] = ToAccountResponse(&accounts[i])
	}
	return ListAccountsResponse{Accounts: res}
}
