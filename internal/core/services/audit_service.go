package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	portsrepo "github.com/SscSPs/money_transfer_saga/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/money_transfer_saga/internal/core/ports/services"
)

// auditService consumes ledger events and keeps a per-account balance chain. Each handler
// deduplicates on the event id inside the same unit of work as its writes.
type auditService struct {
	BaseService
	uow       portsrepo.UnitOfWork
	processed portsrepo.ProcessedEventRepository
	audits    portsrepo.BalanceAuditRepository
	letters   portsrepo.DeadLetterRepository
	group     string
}

const maxDeadLetterPage = 100

// AuditOption configures the audit consumer.
type AuditOption func(*auditService)

// WithAuditClock overrides time.Now.
func WithAuditClock(now func() time.Time) AuditOption {
	return func(s *auditService) {
		s.clock = now
	}
}

// NewAuditService creates the audit consumer for group.
func NewAuditService(repos portsrepo.RepositoryProvider, group string, options ...AuditOption) portssvc.AuditSvcFacade {
	svc := &auditService{
		uow:       repos.UnitOfWork,
		processed: repos.ProcessedRepo,
		audits:    repos.AuditRepo,
		letters:   repos.DeadLetterRepo,
		group:     group,
	}
	for _, option := range options {
		option(svc)
	}
	return svc
}

func (s *auditService) HandleAccountCreated(ctx context.Context, evt domain.Event) error {
	decoded, err := expect[*domain.AccountCreatedV1](evt, domain.AccountCreated)
	if err != nil {
		return err
	}

	return s.once(ctx, evt, func(ctx context.Context) error {
		s.LogInfo(ctx, "Account opened",
			slog.String("event_id", evt.EventID),
			slog.String("account_number", decoded.AccountNumber),
			slog.String("customer_id", decoded.CustomerID),
			slog.String("balance", decoded.Balance.String()))
		return nil
	})
}

func (s *auditService) HandleBalanceUpdated(ctx context.Context, evt domain.Event) error {
	decoded, err := expect[*domain.BalanceUpdatedV1](evt, domain.BalanceUpdated)
	if err != nil {
		return err
	}

	return s.once(ctx, evt, func(ctx context.Context) error {
		audit := domain.BalanceAudit{
			EventID:         evt.EventID,
			AccountNumber:   decoded.AccountNumber,
			TransactionID:   decoded.TransactionID,
			PreviousBalance: decoded.PreviousBalance,
			NewBalance:      decoded.NewBalance,
			Amount:          decoded.Amount,
			OperationType:   decoded.OperationType,
			Version:         decoded.Version,
			RecordedAt:      s.Now(),
		}

		last, err := s.audits.LastAudit(ctx, decoded.AccountNumber)
		switch {
		case err == nil:
			audit.ChainBroken = !last.NewBalance.Equal(decoded.PreviousBalance)
		case !errors.Is(err, apperrors.ErrNotFound):
			return err
		}

		if audit.ChainBroken {
			s.LogWarn(ctx, "Balance chain broken",
				slog.String("account_number", decoded.AccountNumber),
				slog.String("event_id", evt.EventID),
				slog.String("expected_previous", last.NewBalance.String()),
				slog.String("previous", decoded.PreviousBalance.String()))
		}
		return s.audits.SaveAudit(ctx, audit)
	})
}

// once runs fn unless the event was already processed by this group.
func (s *auditService) once(ctx context.Context, evt domain.Event, fn func(ctx context.Context) error) error {
	return s.uow.WithinTx(ctx, func(ctx context.Context) error {
		fresh, err := s.processed.MarkProcessed(ctx, domain.ProcessedEvent{
			ConsumerGroup: s.group,
			EventID:       evt.EventID,
			ProcessedAt:   s.Now(),
		})
		if err != nil {
			return err
		}
		if !fresh {
			s.LogDebug(ctx, "Duplicate event skipped",
				slog.String("event_id", evt.EventID),
				slog.String("event_type", string(evt.EventType)))
			return nil
		}
		return fn(ctx)
	})
}

func expect[T any](evt domain.Event, eventType domain.EventType) (T, error) {
	var zero T
	if evt.EventType != eventType {
		return zero, fmt.Errorf("%w: expected %s, got %s", apperrors.ErrValidation, eventType, evt.EventType)
	}
	decoded, err := evt.Decode()
	if err != nil {
		return zero, err
	}
	typed, ok := decoded.(T)
	if !ok {
		return zero, fmt.Errorf("%w: unexpected payload for %s", apperrors.ErrValidation, eventType)
	}
	return typed, nil
}

// ListDeadLetters returns the newest dead letters, at most limit.
func (s *auditService) ListDeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	if limit <= 0 || limit > maxDeadLetterPage {
		limit = maxDeadLetterPage
	}
	letters, err := s.letters.ListDeadLetters(ctx, limit)
	if err != nil {
		s.LogError(ctx, err, "Failed to list dead letters")
		return nil, err
	}
	return letters, nil
}
