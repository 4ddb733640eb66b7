package domain

import (
	"fmt"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/shopspring/decimal"
)

// TransactionStatus is a state of the transfer saga.
type TransactionStatus string

const (
	StatusPending      TransactionStatus = "PENDING"
	StatusDebited      TransactionStatus = "DEBITED"
	StatusCompensating TransactionStatus = "COMPENSATING"
	StatusCompleted    TransactionStatus = "COMPLETED"
	StatusFailed       TransactionStatus = "FAILED"
	StatusCompensated  TransactionStatus = "COMPENSATED"
)

// TransactionType describes the business purpose of a transfer.
type TransactionType string

const (
	TransferType   TransactionType = "TRANSFER"
	PaymentType    TransactionType = "PAYMENT"
	WithdrawalType TransactionType = "WITHDRAWAL"
)

// Failure reasons recorded on terminal transactions.
const (
	ReasonCompensated        = "compensated"
	ReasonCompensationFailed = "compensation failed — requires manual reconciliation"
)

var transitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:      {StatusDebited, StatusFailed},
	StatusDebited:      {StatusCompleted, StatusCompensating},
	StatusCompensating: {StatusCompensated, StatusFailed},
}

// adminTransitions are the only edges an operator may force without a ledger step.
var adminTransitions = map[TransactionStatus]TransactionStatus{
	StatusPending: StatusFailed,
	StatusDebited: StatusCompensating,
}

// ParseTransactionStatus validates a raw status string against the enumerated set.
func ParseTransactionStatus(raw string) (TransactionStatus, error) {
	status := TransactionStatus(raw)
	switch status {
	case StatusPending, StatusDebited, StatusCompensating, StatusCompleted, StatusFailed, StatusCompensated:
		return status, nil
	default:
		return "", fmt.Errorf("%w: unknown transaction status %q", apperrors.ErrValidation, raw)
	}
}

// IsTerminal reports whether no further transition is possible.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCompensated
}

// CanTransitionTo reports whether next is an edge of the saga graph.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition for any edge outside the graph.
func ValidateTransition(from, to TransactionStatus) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", apperrors.ErrInvalidTransition, from)
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, from, to)
	}
	return nil
}

// ValidateAdminTransition checks an operator-requested edge.
func ValidateAdminTransition(from, to TransactionStatus) error {
	if err := ValidateTransition(from, to); err != nil {
		return err
	}
	if adminTransitions[from] != to {
		return fmt.Errorf("%w: %s -> %s requires a ledger step", apperrors.ErrInvalidTransition, from, to)
	}
	return nil
}

// NonTerminalStatuses lists the states a saga can be resumed from.
func NonTerminalStatuses() []TransactionStatus {
	return []TransactionStatus{StatusPending, StatusDebited, StatusCompensating}
}

// Transaction is a transfer of Amount from one account to another, tracked through the saga.
// Amount and the account pair never change after creation.
type Transaction struct {
	TransactionID          string            `json:"transactionId"`
	FromAccountNumber      string            `json:"fromAccountNumber"`
	ToAccountNumber        string            `json:"toAccountNumber"`
	Amount                 decimal.Decimal   `json:"amount"`
	Currency               string            `json:"currency"`
	TransactionType        TransactionType   `json:"transactionType"`
	Description            string            `json:"description"`
	Status                 TransactionStatus `json:"status"`
	Reason                 string            `json:"reason,omitempty"`
	RequiresReconciliation bool              `json:"requiresReconciliation"`
	Version                int64             `json:"version"`
	TransactionDate        time.Time         `json:"transactionDate"`
	AuditFields
}

// NewTransactionID generates a transaction id of the form TXNXXXXXXXXXXXX.
func NewTransactionID() string {
	return newReference("TXN")
}

// SameTerms reports whether other describes the same movement of money as t.
func (t Transaction) SameTerms(other Transaction) bool {
	return t.FromAccountNumber == other.FromAccountNumber &&
		t.ToAccountNumber == other.ToAccountNumber &&
		t.Amount.Equal(other.Amount) &&
		t.Currency == other.Currency
}

// StatusChange is a compare-and-swap request on a transaction's status.
type StatusChange struct {
	TransactionID          string
	From                   TransactionStatus
	To                     TransactionStatus
	Reason                 string
	RequiresReconciliation bool
	ExpectedVersion        int64
	At                     time.Time
}

// Apply returns a copy of t with the change applied and the version bumped.
func (c StatusChange) Apply(t Transaction) Transaction {
	t.Status = c.To
	t.Reason = c.Reason
	t.RequiresReconciliation = c.RequiresReconciliation
	t.Version = c.ExpectedVersion + 1
	t.UpdatedAt = c.At
	return t
}

// TransactionDirection filters transactions by which side an account is on.
type TransactionDirection string

const (
	DirectionFrom TransactionDirection = "from"
	DirectionTo   TransactionDirection = "to"
	DirectionAny  TransactionDirection = "any"
)

// ParseTransactionDirection defaults to DirectionAny on empty input.
func ParseTransactionDirection(raw string) (TransactionDirection, error) {
	switch d := TransactionDirection(raw); d {
	case "":
		return DirectionAny, nil
	case DirectionFrom, DirectionTo, DirectionAny:
		return d, nil
	default:
		return "", fmt.Errorf("%w: unknown direction %q", apperrors.ErrValidation, raw)
	}
}

// Involves reports whether accountNumber is on the given side of t.
func (t Transaction) Involves(accountNumber string, direction TransactionDirection) bool {
	switch direction {
	case DirectionFrom:
		return t.FromAccountNumber == accountNumber
	case DirectionTo:
		return t.ToAccountNumber == accountNumber
	default:
		return t.FromAccountNumber == accountNumber || t.ToAccountNumber == accountNumber
	}
}
