package domain

import (
	"fmt"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/shopspring/decimal"
)

// AccountType classifies a customer account.
type AccountType string

const (
	Checking AccountType = "CHECKING"
	Savings  AccountType = "SAVINGS"
	Business AccountType = "BUSINESS"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "ACTIVE"
	AccountSuspended AccountStatus = "SUSPENDED"
	AccountClosed    AccountStatus = "CLOSED"
)

// ParseAccountStatus validates a raw status string against the enumerated set.
func ParseAccountStatus(raw string) (AccountStatus, error) {
	status := AccountStatus(raw)
	switch status {
	case AccountActive, AccountSuspended, AccountClosed:
		return status, nil
	default:
		return "", fmt.Errorf("%w: unknown account status %q", apperrors.ErrValidation, raw)
	}
}

// CanTransitionTo reports whether an account may move from s to next.
// CLOSED is final; ACTIVE and SUSPENDED may swap or close.
func (s AccountStatus) CanTransitionTo(next AccountStatus) bool {
	switch s {
	case AccountActive:
		return next == AccountSuspended || next == AccountClosed
	case AccountSuspended:
		return next == AccountActive || next == AccountClosed
	default:
		return false
	}
}

// Account represents a customer account and its authoritative balance.
// Balance is only ever changed by the ledger's delta-apply operation.
type Account struct {
	AccountID     string          `json:"accountId"`
	AccountNumber string          `json:"accountNumber"`
	CustomerID    string          `json:"customerId"`
	AccountType   AccountType     `json:"accountType"`
	Currency      string          `json:"currency"`
	Balance       decimal.Decimal `json:"balance"`
	Status        AccountStatus   `json:"status"`
	Version       int64           `json:"version"`
	AuditFields
}

// NewAccountNumber generates an account number of the form ACCXXXXXXXXXXXX.
func NewAccountNumber() string {
	return newReference("ACC")
}

// IsActive reports whether the account accepts balance mutations.
func (a Account) IsActive() bool {
	return a.Status == AccountActive
}
