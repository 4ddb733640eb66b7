package repositories

import (
	"context"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
)

// LedgerEntryRepository stores the step idempotency records.
type LedgerEntryRepository interface {
	// FindEntry returns apperrors.ErrNotFound when the step has not been applied.
	FindEntry(ctx context.Context, key domain.StepKey) (*domain.LedgerEntry, error)

	// SaveEntry returns apperrors.ErrDuplicate when the key is already recorded.
	SaveEntry(ctx context.Context, entry domain.LedgerEntry) error
}
