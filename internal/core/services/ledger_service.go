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
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ledgerService is the only writer of account balances.
type ledgerService struct {
	BaseService
	uow        portsrepo.UnitOfWork
	accounts   portsrepo.AccountRepositoryFacade
	entries    portsrepo.LedgerEntryRepository
	outbox     portsrepo.OutboxWriter
	maxRetries int
	retryBase  time.Duration
}

// LedgerOption configures the ledger service.
type LedgerOption func(*ledgerService)

// WithLedgerRetry sets how often ApplyDeltaWithRetry retries a version conflict and the
// first backoff delay.
func WithLedgerRetry(maxRetries int, base time.Duration) LedgerOption {
	return func(s *ledgerService) {
		if maxRetries > 0 {
			s.maxRetries = maxRetries
		}
		if base > 0 {
			s.retryBase = base
		}
	}
}

// WithLedgerClock overrides time.Now.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(s *ledgerService) {
		s.clock = now
	}
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(repos portsrepo.RepositoryProvider, options ...LedgerOption) portssvc.LedgerSvc {
	svc := &ledgerService{
		uow:        repos.UnitOfWork,
		accounts:   repos.AccountRepo,
		entries:    repos.LedgerRepo,
		outbox:     repos.OutboxRepo,
		maxRetries: 5,
		retryBase:  10 * time.Millisecond,
	}
	for _, option := range options {
		option(svc)
	}
	return svc
}

var _ portssvc.LedgerSvc = (*ledgerService)(nil)

// ApplyDelta runs every check and the balance write in one unit of work. A keyed request
// that was already applied returns the recorded result without touching the balance.
func (s *ledgerService) ApplyDelta(ctx context.Context, req domain.DeltaRequest) (domain.DeltaResult, error) {
	if req.Amount.IsZero() {
		return domain.DeltaResult{}, fmt.Errorf("%w: delta amount must not be zero", apperrors.ErrValidation)
	}
	if err := domain.ValidateAmount("delta amount", req.Amount); err != nil {
		return domain.DeltaResult{}, err
	}
	if req.OperationType == "" {
		req.OperationType = domain.OperationFor(req.Amount)
	}

	var result domain.DeltaResult
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		if !req.Key.IsZero() {
			entry, err := s.entries.FindEntry(ctx, req.Key)
			if err == nil {
				if entry.Voided {
					return voidedErr(req.Key)
				}
				result = entry.Result()
				return nil
			}
			if !errors.Is(err, apperrors.ErrNotFound) {
				return err
			}
		}

		acc, err := s.accounts.FindAccountByNumber(ctx, req.AccountNumber)
		if err != nil {
			return err
		}
		if !acc.IsActive() {
			return fmt.Errorf("%w: %s is %s", apperrors.ErrAccountNotActive, acc.AccountNumber, acc.Status)
		}
		if req.Currency != "" && req.Currency != acc.Currency {
			return fmt.Errorf("%w: %s holds %s, got %s", apperrors.ErrCurrencyMismatch, acc.AccountNumber, acc.Currency, req.Currency)
		}
		if acc.Version != req.ExpectedVersion {
			return fmt.Errorf("%w: %s at version %d, expected %d", apperrors.ErrVersionConflict, acc.AccountNumber, acc.Version, req.ExpectedVersion)
		}

		newBalance := acc.Balance.Add(req.Amount)
		if newBalance.IsNegative() {
			return fmt.Errorf("%w: %s balance %s cannot cover %s", apperrors.ErrInsufficientFunds, acc.AccountNumber, acc.Balance, req.Amount.Neg())
		}

		now := s.Now()
		newVersion, err := s.accounts.UpdateBalance(ctx, acc.AccountNumber, newBalance, req.ExpectedVersion, now)
		if err != nil {
			return err
		}

		if !req.Key.IsZero() {
			entry := domain.LedgerEntry{
				EntryID:         uuid.NewString(),
				AccountID:       acc.AccountID,
				AccountNumber:   acc.AccountNumber,
				TransactionID:   req.Key.TransactionID,
				Step:            req.Key.Step,
				Amount:          req.Amount,
				PreviousBalance: acc.Balance,
				BalanceAfter:    newBalance,
				VersionAfter:    newVersion,
				CreatedAt:       now,
			}
			if err := s.entries.SaveEntry(ctx, entry); err != nil {
				return err
			}
		}

		payload := domain.BalanceUpdatedV1{
			AccountID:       acc.AccountID,
			AccountNumber:   acc.AccountNumber,
			TransactionID:   req.Key.TransactionID,
			PreviousBalance: acc.Balance,
			NewBalance:      newBalance,
			Amount:          req.Amount,
			OperationType:   req.OperationType,
			Version:         newVersion,
			UpdatedAt:       now,
		}
		if err := s.emit(ctx, s.outbox, domain.BalanceUpdated, acc.AccountNumber, req.Key.TransactionID, payload); err != nil {
			return err
		}

		result = domain.DeltaResult{
			AccountID:       acc.AccountID,
			PreviousBalance: acc.Balance,
			NewBalance:      newBalance,
			NewVersion:      newVersion,
		}
		return nil
	})
	if err != nil {
		return domain.DeltaResult{}, err
	}

	if result.Replayed {
		s.LogDebug(ctx, "Ledger step replayed",
			slog.String("transaction_id", req.Key.TransactionID),
			slog.String("step", string(req.Key.Step)))
	}
	return result, nil
}

// ApplyDeltaWithRetry re-reads the account version and applies until no conflict occurs.
// A concurrent duplicate of the same keyed step is retried too and then replays.
func (s *ledgerService) ApplyDeltaWithRetry(ctx context.Context, accountNumber string, amount decimal.Decimal, key domain.StepKey, op domain.OperationType, currency string) (domain.DeltaResult, error) {
	var result domain.DeltaResult
	attempts := 0

	operation := func() error {
		attempts++
		acc, err := s.accounts.FindAccountByNumber(ctx, accountNumber)
		if err != nil {
			if !key.IsZero() {
				// a recorded step replays even if the account changed since
				if entry, findErr := s.entries.FindEntry(ctx, key); findErr == nil {
					if entry.Voided {
						return backoff.Permanent(voidedErr(key))
					}
					result = entry.Result()
					return nil
				}
			}
			return backoff.Permanent(err)
		}

		result, err = s.ApplyDelta(ctx, domain.DeltaRequest{
			AccountNumber:   accountNumber,
			Amount:          amount,
			ExpectedVersion: acc.Version,
			Currency:        currency,
			Key:             key,
			OperationType:   op,
		})
		if errors.Is(err, apperrors.ErrVersionConflict) || errors.Is(err, apperrors.ErrDuplicate) {
			s.LogDebug(ctx, "Ledger conflict, retrying",
				slog.String("account_number", accountNumber),
				slog.Int("attempt", attempts))
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryBase
	b.Multiplier = 2
	b.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.maxRetries)), ctx))
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !apperrors.IsBusinessRejection(err) {
		return domain.DeltaResult{}, ctxErr
	}
	if errors.Is(err, apperrors.ErrVersionConflict) || errors.Is(err, apperrors.ErrDuplicate) {
		s.LogWarn(ctx, "Ledger retries exhausted",
			slog.String("account_number", accountNumber),
			slog.Int("attempts", attempts))
		// %v: exhaustion must not match ErrVersionConflict
		return domain.DeltaResult{}, fmt.Errorf("%w: %s after %d attempts: %v", apperrors.ErrConcurrencyExhausted, accountNumber, attempts, err)
	}
	return domain.DeltaResult{}, err
}

// VoidStep claims key with a voided entry so a late or concurrent apply of the same step
// fails with ErrStepVoided instead of moving money. Voiding twice is a no-op.
func (s *ledgerService) VoidStep(ctx context.Context, key domain.StepKey, accountNumber string) error {
	if key.IsZero() {
		return fmt.Errorf("%w: a step key is required", apperrors.ErrValidation)
	}
	return s.uow.WithinTx(ctx, func(ctx context.Context) error {
		entry, err := s.entries.FindEntry(ctx, key)
		if err == nil {
			if entry.Voided {
				return nil
			}
			return fmt.Errorf("%w: %s of %s", apperrors.ErrStepApplied, key.Step, key.TransactionID)
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		err = s.entries.SaveEntry(ctx, domain.LedgerEntry{
			EntryID:       uuid.NewString(),
			AccountNumber: accountNumber,
			TransactionID: key.TransactionID,
			Step:          key.Step,
			Voided:        true,
			CreatedAt:     s.Now(),
		})
		if errors.Is(err, apperrors.ErrDuplicate) {
			// a concurrent apply or void took the key first; the caller re-reads
			return fmt.Errorf("%w: %s of %s raced: %w", apperrors.ErrVersionConflict, key.Step, key.TransactionID, err)
		}
		if err != nil {
			return err
		}
		s.LogInfo(ctx, "Ledger step voided",
			slog.String("transaction_id", key.TransactionID),
			slog.String("step", string(key.Step)))
		return nil
	})
}

func voidedErr(key domain.StepKey) error {
	return fmt.Errorf("%w: %s of %s", apperrors.ErrStepVoided, key.Step, key.TransactionID)
}
