package domain

import (
	"fmt"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits stored for every amount and balance.
const AmountScale = 4

// maxAmount bounds the integer part to what NUMERIC(20, 4) can hold.
var maxAmount = decimal.New(1, 20-AmountScale)

// ValidateAmount rejects amounts the ledger cannot store exactly. Trailing zeros beyond
// the scale are fine; "1.10000" is 1.1.
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return fmt.Errorf("%w: %s %s has more than %d decimal places", apperrors.ErrValidation, field, amount, AmountScale)
	}
	if amount.Abs().GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("%w: %s %s is too large", apperrors.ErrValidation, field, amount)
	}
	return nil
}

// OperationType tells consumers which direction a balance moved.
type OperationType string

const (
	Credit OperationType = "CREDIT"
	Debit  OperationType = "DEBIT"
)

// Step names a single ledger effect of a transaction.
type Step string

const (
	StepDebit  Step = "debit"
	StepCredit Step = "credit"
	StepRefund Step = "refund"
	// StepAdjustment is used for direct deposits and withdrawals keyed by a client reference.
	StepAdjustment Step = "adjustment"
)

// StepKey identifies a ledger effect for idempotent replay.
type StepKey struct {
	TransactionID string
	Step          Step
}

// IsZero reports whether no key was supplied.
func (k StepKey) IsZero() bool {
	return k.TransactionID == "" && k.Step == ""
}

// DeltaRequest asks the ledger to move an account balance by a signed amount.
type DeltaRequest struct {
	AccountNumber   string
	Amount          decimal.Decimal
	ExpectedVersion int64
	// Currency is checked against the account when non-empty.
	Currency      string
	Key           StepKey
	OperationType OperationType
}

// DeltaResult is the outcome of an applied (or replayed) delta.
type DeltaResult struct {
	AccountID       string
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal
	NewVersion      int64
	Replayed        bool
}

// LedgerEntry records a keyed delta; (TransactionID, Step) is unique. A voided entry holds
// the key without a balance change so the step can never be applied afterwards.
type LedgerEntry struct {
	EntryID         string
	AccountID       string
	AccountNumber   string
	TransactionID   string
	Step            Step
	Amount          decimal.Decimal
	PreviousBalance decimal.Decimal
	BalanceAfter    decimal.Decimal
	VersionAfter    int64
	Voided          bool
	CreatedAt       time.Time
}

// Result rebuilds the DeltaResult a recorded entry produced.
func (e LedgerEntry) Result() DeltaResult {
	return DeltaResult{
		AccountID:       e.AccountID,
		PreviousBalance: e.PreviousBalance,
		NewBalance:      e.BalanceAfter,
		NewVersion:      e.VersionAfter,
		Replayed:        true,
	}
}

// OperationFor infers the operation type from an amount's sign.
func OperationFor(amount decimal.Decimal) OperationType {
	if amount.IsNegative() {
		return Debit
	}
	return Credit
}
