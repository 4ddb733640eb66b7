package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

var (
	// ErrAccountNotFound is returned when no account matches the given account number.
	ErrAccountNotFound = fmt.Errorf("account %w", ErrNotFound)
	// ErrTransactionNotFound is returned when no transaction matches the given transaction ID.
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	// ErrDuplicateTransaction is returned by storage when a transaction ID is already taken.
	ErrDuplicateTransaction = fmt.Errorf("transaction %w", ErrDuplicate)
)

// Ledger errors.
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrAccountNotActive     = errors.New("account is not active")
	ErrCurrencyMismatch     = errors.New("currency does not match account currency")
	ErrVersionConflict      = errors.New("version conflict")
	ErrConcurrencyExhausted = errors.New("concurrent update retries exhausted")
	ErrAccountInUse         = errors.New("account is referenced by open transactions")
	// ErrStepApplied is returned when voiding a step that the ledger already applied.
	ErrStepApplied = errors.New("ledger step already applied")
	// ErrStepVoided is returned when applying a step that was voided.
	ErrStepVoided = errors.New("ledger step voided")
)

// Coordination and delivery errors.
var (
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrCompensationFailed = errors.New("compensation failed")
	ErrOutcomeUnknown     = errors.New("step outcome unknown")
	ErrPublishUnavailable = errors.New("event publish unavailable")
)

// AppError wraps an infrastructure failure with an HTTP-ish code and a message safe to surface.
type AppError struct {
	Code    int
	Message string
	Err     error
}

// NewAppError builds an AppError around err.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// IsBusinessRejection reports whether err is a deterministic ledger refusal, as opposed to an
// infrastructure failure whose outcome is unknown.
func IsBusinessRejection(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrAccountNotActive) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrCurrencyMismatch)
}
