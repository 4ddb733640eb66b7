package repositories

import (
	"context"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
)

// ProcessedEventRepository deduplicates consumed events per consumer group.
type ProcessedEventRepository interface {
	// MarkProcessed records the event and reports false if it was already recorded.
	MarkProcessed(ctx context.Context, processed domain.ProcessedEvent) (bool, error)
}

// BalanceAuditRepository stores the balance chain rebuilt from balance-updated events.
type BalanceAuditRepository interface {
	// LastAudit returns apperrors.ErrNotFound when the account has no recorded link.
	LastAudit(ctx context.Context, accountNumber string) (*domain.BalanceAudit, error)

	SaveAudit(ctx context.Context, audit domain.BalanceAudit) error
}

// DeadLetterRepository keeps messages that exhausted their handler retries.
type DeadLetterRepository interface {
	SaveDeadLetter(ctx context.Context, letter domain.DeadLetter) error

	ListDeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error)
}
