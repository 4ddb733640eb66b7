package services

import (
	"context"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	"github.com/shopspring/decimal"
)

// LedgerSvc owns account balances. No other component writes them.
type LedgerSvc interface {
	// ApplyDelta applies a signed amount if the account is still at req.ExpectedVersion.
	ApplyDelta(ctx context.Context, req domain.DeltaRequest) (domain.DeltaResult, error)

	// ApplyDeltaWithRetry reads the current version and applies, retrying on version conflicts.
	ApplyDeltaWithRetry(ctx context.Context, accountNumber string, amount decimal.Decimal, key domain.StepKey, op domain.OperationType, currency string) (domain.DeltaResult, error)

	// VoidStep records that key will never be applied. It fails with ErrStepApplied when the
	// step already ran.
	VoidStep(ctx context.Context, key domain.StepKey, accountNumber string) error
}
