package services

import (
	"context"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
)

// RecoverySvc resumes sagas left in a non-terminal state.
type RecoverySvc interface {
	// RecoverOnce drives every stale transaction and returns how many reached a terminal state.
	RecoverOnce(ctx context.Context) (int, error)
}

// AuditSvc consumes ledger events for the audit trail.
type AuditSvc interface {
	HandleAccountCreated(ctx context.Context, evt domain.Event) error
	HandleBalanceUpdated(ctx context.Context, evt domain.Event) error
}

// Alerter is told about failures an operator has to resolve by hand.
type Alerter interface {
	CompensationFailed(ctx context.Context, txn domain.Transaction, cause error)
}

// DeadLetterSvc lets operators inspect messages that exhausted their handler retries.
type DeadLetterSvc interface {
	ListDeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error)
}

// AuditSvcFacade is the audit consumer together with its dead-letter view.
type AuditSvcFacade interface {
	AuditSvc
	DeadLetterSvc
}
