package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	portsrepo "github.com/SscSPs/money_transfer_saga/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/money_transfer_saga/internal/core/ports/services"
)

// recoveryService resumes sagas that stopped before a terminal state, for example after a
// crash or an unknown step outcome.
type recoveryService struct {
	BaseService
	txnRepo     portsrepo.TransactionReader
	coordinator portssvc.TransactionCoordinatorSvc
	staleAfter  time.Duration
	batchSize   int
}

// RecoveryOption configures the recovery sweeper.
type RecoveryOption func(*recoveryService)

// WithStaleAfter sets how long a transaction must be untouched before it is resumed.
func WithStaleAfter(d time.Duration) RecoveryOption {
	return func(s *recoveryService) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithRecoveryBatchSize caps how many transactions one sweep resumes.
func WithRecoveryBatchSize(n int) RecoveryOption {
	return func(s *recoveryService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithRecoveryClock overrides time.Now.
func WithRecoveryClock(now func() time.Time) RecoveryOption {
	return func(s *recoveryService) {
		s.clock = now
	}
}

// NewRecoveryService creates the sweeper for stuck transactions.
func NewRecoveryService(repos portsrepo.RepositoryProvider, coordinator portssvc.TransactionCoordinatorSvc, options ...RecoveryOption) portssvc.RecoverySvc {
	svc := &recoveryService{
		txnRepo:     repos.TransactionRepo,
		coordinator: coordinator,
		staleAfter:  30 * time.Second,
		batchSize:   100,
	}
	for _, option := range options {
		option(svc)
	}
	return svc
}

func (s *recoveryService) RecoverOnce(ctx context.Context) (int, error) {
	cutoff := s.Now().Add(-s.staleAfter)
	stale, err := s.txnRepo.ListStaleTransactions(ctx, domain.NonTerminalStatuses(), cutoff, s.batchSize)
	if err != nil {
		s.LogError(ctx, err, "Failed to list stale transactions")
		return 0, err
	}

	resolved := 0
	var errs []error
	for _, txn := range stale {
		if ctx.Err() != nil {
			break
		}
		result, err := s.coordinator.Drive(ctx, txn.TransactionID)
		switch {
		case err == nil:
			resolved++
			s.LogInfo(ctx, "Recovered transaction",
				slog.String("transaction_id", txn.TransactionID),
				slog.String("from", string(txn.Status)),
				slog.String("status", string(result.Status)))
		case errors.Is(err, apperrors.ErrOutcomeUnknown):
			// left for the next sweep
			s.LogWarn(ctx, "Transaction still unresolved",
				slog.String("transaction_id", txn.TransactionID),
				slog.String("error", err.Error()))
		default:
			s.LogError(ctx, err, "Failed to recover transaction", slog.String("transaction_id", txn.TransactionID))
			errs = append(errs, err)
		}
	}
	return resolved, errors.Join(errs...)
}

// RunRecovery sweeps every interval until ctx is cancelled.
func RunRecovery(ctx context.Context, svc portssvc.RecoverySvc, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := svc.RecoverOnce(ctx)
			if err != nil && ctx.Err() == nil {
				logger.Error("Recovery sweep failed", slog.String("error", err.Error()))
			}
			if n > 0 {
				logger.Info("Recovery sweep resolved transactions", slog.Int("count", n))
			}
		}
	}
}
