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
	"github.com/SscSPs/money_transfer_saga/internal/dto"
	"github.com/SscSPs/money_transfer_saga/internal/middleware"
	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
)

// maxDriveIterations bounds how often Drive reloads after losing a status race.
const maxDriveIterations = 16

// stepOutcome classifies the result of one ledger call made by the saga.
type stepOutcome int

const (
	stepApplied stepOutcome = iota
	stepRejected
	stepVoided
	stepUnknown
)

// edge is one status transition.
type edge struct {
	from, to domain.TransactionStatus
}

// abandonedSteps names the ledger step a transition gives up on. It is voided in the same
// unit of work as the status change, so no driver can apply it afterwards.
var abandonedSteps = map[edge]domain.Step{
	{domain.StatusPending, domain.StatusFailed}:       domain.StepDebit,
	{domain.StatusDebited, domain.StatusCompensating}: domain.StepCredit,
}

// transactionService coordinates transfers through the saga state machine.
type transactionService struct {
	BaseService
	uow             portsrepo.UnitOfWork
	txnRepo         portsrepo.TransactionRepositoryFacade
	outbox          portsrepo.OutboxWriter
	ledger          portssvc.LedgerSvc
	alerter         portssvc.Alerter
	stepTimeout     time.Duration
	compensationMax int
	compensationGap time.Duration
}

// TransactionOption is a functional option for configuring the coordinator
type TransactionOption func(*transactionService)

// WithStepTimeout bounds every ledger call the saga makes.
func WithStepTimeout(d time.Duration) TransactionOption {
	return func(s *transactionService) {
		if d > 0 {
			s.stepTimeout = d
		}
	}
}

// WithCompensationRetry sets how many refund attempts are made and the first delay between them.
func WithCompensationRetry(maxAttempts int, initial time.Duration) TransactionOption {
	return func(s *transactionService) {
		if maxAttempts > 0 {
			s.compensationMax = maxAttempts
		}
		if initial > 0 {
			s.compensationGap = initial
		}
	}
}

// WithAlerter sets where unrecoverable compensation failures are reported.
func WithAlerter(alerter portssvc.Alerter) TransactionOption {
	return func(s *transactionService) {
		if alerter != nil {
			s.alerter = alerter
		}
	}
}

// WithTransactionClock overrides time.Now.
func WithTransactionClock(now func() time.Time) TransactionOption {
	return func(s *transactionService) {
		s.clock = now
	}
}

// NewTransactionService creates the transfer coordinator.
func NewTransactionService(repos portsrepo.RepositoryProvider, ledger portssvc.LedgerSvc, options ...TransactionOption) portssvc.TransactionSvcFacade {
	svc := &transactionService{
		uow:             repos.UnitOfWork,
		txnRepo:         repos.TransactionRepo,
		outbox:          repos.OutboxRepo,
		ledger:          ledger,
		alerter:         NewLogAlerter(nil),
		stepTimeout:     5 * time.Second,
		compensationMax: 5,
		compensationGap: 100 * time.Millisecond,
	}
	for _, option := range options {
		option(svc)
	}
	return svc
}

func (s *transactionService) CreateTransaction(ctx context.Context, req dto.CreateTransferRequest) (*domain.Transaction, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", apperrors.ErrValidation)
	}
	if err := domain.ValidateAmount("amount", req.Amount); err != nil {
		return nil, err
	}

	now := s.Now()
	txn := domain.Transaction{
		TransactionID:     req.TransactionID,
		FromAccountNumber: req.FromAccountNumber,
		ToAccountNumber:   req.ToAccountNumber,
		Amount:            req.Amount,
		Currency:          req.Currency,
		TransactionType:   req.TransactionType,
		Description:       req.Description,
		Status:            domain.StatusPending,
		TransactionDate:   now,
		AuditFields:       domain.AuditFields{CreatedAt: now, UpdatedAt: now},
	}
	if txn.TransactionID == "" {
		txn.TransactionID = domain.NewTransactionID()
	}
	if txn.TransactionType == "" {
		txn.TransactionType = domain.TransferType
	}

	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.txnRepo.SaveTransaction(ctx, txn); err != nil {
			return err
		}
		return s.emit(ctx, s.outbox, domain.TransactionCreated, txn.TransactionID, "", domain.TransactionCreatedV1{
			TransactionID:     txn.TransactionID,
			FromAccountNumber: txn.FromAccountNumber,
			ToAccountNumber:   txn.ToAccountNumber,
			Amount:            txn.Amount,
			Currency:          txn.Currency,
			TransactionType:   txn.TransactionType,
			Status:            txn.Status,
			TransactionDate:   txn.TransactionDate,
		})
	})
	if errors.Is(err, apperrors.ErrDuplicateTransaction) {
		existing, findErr := s.txnRepo.FindTransactionByID(ctx, txn.TransactionID)
		if findErr != nil {
			return nil, findErr
		}
		if !existing.SameTerms(txn) {
			return nil, fmt.Errorf("%w: transaction %s already exists with different parameters", apperrors.ErrValidation, txn.TransactionID)
		}
		s.LogInfo(ctx, "Duplicate transaction request, returning existing", slog.String("transaction_id", txn.TransactionID))
		return existing, nil
	}
	if err != nil {
		s.LogError(ctx, err, "Failed to create transaction", slog.String("transaction_id", txn.TransactionID))
		return nil, err
	}

	s.LogInfo(ctx, "Transaction created",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("from_account", txn.FromAccountNumber),
		slog.String("to_account", txn.ToAccountNumber),
		slog.String("amount", txn.Amount.String()))
	return &txn, nil
}

func (s *transactionService) CreateTransfer(ctx context.Context, req dto.CreateTransferRequest) (*domain.Transaction, error) {
	txn, err := s.CreateTransaction(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.Drive(ctx, txn.TransactionID)
}

// Drive advances the saga one step at a time. It returns the latest state; the error wraps
// apperrors.ErrOutcomeUnknown when a step could not be confirmed and the transaction was left
// where it was, safe to drive again.
func (s *transactionService) Drive(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	txn, err := s.txnRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	for i := 0; i < maxDriveIterations && !txn.Status.IsTerminal(); i++ {
		next, err := s.step(ctx, *txn)
		if movedConcurrently(err) {
			s.LogDebug(ctx, "Transaction moved concurrently, reloading", slog.String("transaction_id", transactionID))
			if txn, err = s.txnRepo.FindTransactionByID(ctx, transactionID); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return txn, err
		}
		txn = next
	}

	if !txn.Status.IsTerminal() {
		return txn, fmt.Errorf("%w: %s still %s", apperrors.ErrOutcomeUnknown, transactionID, txn.Status)
	}
	return txn, nil
}

// movedConcurrently reports whether another writer changed the transaction or its ledger
// steps under us. An unknown outcome never qualifies, even when its cause is a conflict.
func movedConcurrently(err error) bool {
	if err == nil || errors.Is(err, apperrors.ErrOutcomeUnknown) {
		return false
	}
	return errors.Is(err, apperrors.ErrVersionConflict) ||
		errors.Is(err, apperrors.ErrStepApplied) ||
		errors.Is(err, apperrors.ErrStepVoided)
}

func (s *transactionService) step(ctx context.Context, txn domain.Transaction) (*domain.Transaction, error) {
	switch txn.Status {
	case domain.StatusPending:
		outcome, err := s.applyStep(ctx, txn, txn.FromAccountNumber, txn.Amount.Neg(), domain.StepDebit, domain.Debit)
		switch outcome {
		case stepApplied:
			return s.transition(ctx, txn, domain.StatusDebited, "", false, domain.TransactionDebited)
		case stepRejected:
			return s.transition(ctx, txn, domain.StatusFailed, err.Error(), false, domain.TransactionFailed)
		default:
			return nil, err
		}

	case domain.StatusDebited:
		outcome, err := s.applyStep(ctx, txn, txn.ToAccountNumber, txn.Amount, domain.StepCredit, domain.Credit)
		switch outcome {
		case stepApplied:
			return s.transition(ctx, txn, domain.StatusCompleted, "", false, domain.TransactionCompleted)
		case stepRejected:
			s.LogWarn(ctx, "Credit rejected, compensating",
				slog.String("transaction_id", txn.TransactionID),
				slog.String("error", err.Error()))
			return s.transition(ctx, txn, domain.StatusCompensating, err.Error(), false, "")
		default:
			return nil, err
		}

	case domain.StatusCompensating:
		return s.compensate(ctx, txn)

	default:
		return &txn, nil
	}
}

// compensate refunds the debited amount with bounded retries. Running out of attempts on a
// ledger rejection is the one fatal outcome: the transaction fails, is flagged for
// reconciliation and an alert is raised. If the last attempt's outcome is unknown the refund
// may have landed, so the transaction stays COMPENSATING for recovery.
func (s *transactionService) compensate(ctx context.Context, txn domain.Transaction) (*domain.Transaction, error) {
	attempts := 0
	var lastErr error
	operation := func() error {
		attempts++
		_, err := s.applyStep(ctx, txn, txn.FromAccountNumber, txn.Amount, domain.StepRefund, domain.Credit)
		if err != nil {
			lastErr = err
			s.LogWarn(ctx, "Refund attempt failed",
				slog.String("transaction_id", txn.TransactionID),
				slog.Int("attempt", attempts),
				slog.String("error", err.Error()))
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.compensationGap
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.compensationMax-1)), ctx))
	if err == nil {
		return s.transition(ctx, txn, domain.StatusCompensated, domain.ReasonCompensated, false, domain.TransactionFailed)
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: refund of %s interrupted: %w", apperrors.ErrOutcomeUnknown, txn.TransactionID, ctx.Err())
	}
	if !apperrors.IsBusinessRejection(lastErr) {
		s.LogWarn(ctx, "Refund unconfirmed, leaving for recovery",
			slog.String("transaction_id", txn.TransactionID),
			slog.Int("attempts", attempts))
		return nil, fmt.Errorf("refund of %s unconfirmed after %d attempts: %w", txn.TransactionID, attempts, lastErr)
	}

	cause := fmt.Errorf("%w after %d attempts: %w", apperrors.ErrCompensationFailed, attempts, lastErr)
	failed, err := s.transition(ctx, txn, domain.StatusFailed, domain.ReasonCompensationFailed, true, domain.TransactionFailed)
	if err != nil {
		s.LogError(ctx, err, "Failed to record compensation failure", slog.String("transaction_id", txn.TransactionID))
		return nil, err
	}
	s.LogError(ctx, cause, "Compensation failed", slog.String("transaction_id", txn.TransactionID))
	s.alerter.CompensationFailed(ctx, *failed, cause)
	return failed, nil
}

// applyStep makes one ledger call under the step timeout. Only deterministic business
// rejections count as a failed step; anything else is an unknown outcome.
func (s *transactionService) applyStep(ctx context.Context, txn domain.Transaction, accountNumber string, amount decimal.Decimal, step domain.Step, op domain.OperationType) (stepOutcome, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	defer cancel()

	key := domain.StepKey{TransactionID: txn.TransactionID, Step: step}
	result, err := s.ledger.ApplyDeltaWithRetry(stepCtx, accountNumber, amount, key, op, txn.Currency)
	if err == nil {
		s.LogDebug(ctx, "Saga step applied",
			slog.String("transaction_id", txn.TransactionID),
			slog.String("step", string(step)),
			slog.Bool("replayed", result.Replayed))
		return stepApplied, nil
	}
	if apperrors.IsBusinessRejection(err) {
		return stepRejected, err
	}
	if errors.Is(err, apperrors.ErrStepVoided) {
		return stepVoided, err
	}
	return stepUnknown, fmt.Errorf("%w: %s step of %s: %w", apperrors.ErrOutcomeUnknown, step, txn.TransactionID, err)
}

// transition moves txn to a new status with a version CAS and writes its event, if any, in
// the same unit of work. It fails with ErrStepApplied when the step it abandons already ran.
func (s *transactionService) transition(ctx context.Context, txn domain.Transaction, to domain.TransactionStatus, reason string, reconcile bool, eventType domain.EventType) (*domain.Transaction, error) {
	if err := domain.ValidateTransition(txn.Status, to); err != nil {
		return nil, err
	}

	change := domain.StatusChange{
		TransactionID:          txn.TransactionID,
		From:                   txn.Status,
		To:                     to,
		Reason:                 reason,
		RequiresReconciliation: reconcile,
		ExpectedVersion:        txn.Version,
		At:                     s.Now(),
	}
	updated := change.Apply(txn)

	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		if step, ok := abandonedSteps[edge{txn.Status, to}]; ok {
			account := txn.FromAccountNumber
			if step == domain.StepCredit {
				account = txn.ToAccountNumber
			}
			key := domain.StepKey{TransactionID: txn.TransactionID, Step: step}
			if err := s.ledger.VoidStep(ctx, key, account); err != nil {
				return err
			}
		}
		if err := s.txnRepo.UpdateTransactionStatus(ctx, change); err != nil {
			return err
		}
		if eventType == "" {
			return nil
		}
		return s.emit(ctx, s.outbox, eventType, txn.TransactionID, txn.TransactionID, transitionPayload(eventType, updated))
	})
	if err != nil {
		return nil, err
	}

	s.LogInfo(ctx, "Transaction status changed",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("from", string(txn.Status)),
		slog.String("to", string(to)))
	return &updated, nil
}

func transitionPayload(eventType domain.EventType, txn domain.Transaction) any {
	if eventType == domain.TransactionDebited {
		return domain.TransactionDebitedV1{
			TransactionID:     txn.TransactionID,
			FromAccountNumber: txn.FromAccountNumber,
			ToAccountNumber:   txn.ToAccountNumber,
			Amount:            txn.Amount,
			Status:            txn.Status,
			UpdatedAt:         txn.UpdatedAt,
		}
	}
	return domain.TransactionOutcomeV1{
		TransactionID:     txn.TransactionID,
		FromAccountNumber: txn.FromAccountNumber,
		ToAccountNumber:   txn.ToAccountNumber,
		Amount:            txn.Amount,
		Status:            txn.Status,
		Reason:            txn.Reason,
		UpdatedAt:         txn.UpdatedAt,
	}
}

// UpdateTransactionStatus applies an operator override. Only PENDING->FAILED and
// DEBITED->COMPENSATING are allowed; the latter is followed by the refund. Failing a PENDING
// transfer whose debit already landed compensates it instead. Compensating a transfer whose
// credit already landed is refused, since it can only complete.
func (s *transactionService) UpdateTransactionStatus(ctx context.Context, transactionID string, rawStatus string, reason string) (*domain.Transaction, error) {
	status, err := domain.ParseTransactionStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	txn, err := s.txnRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateAdminTransition(txn.Status, status); err != nil {
		return nil, err
	}

	if reason == "" {
		reason = "set by operator"
	}
	if operator, ok := middleware.OperatorFromCtx(ctx); ok {
		reason = fmt.Sprintf("%s (%s)", reason, operator)
	}

	var eventType domain.EventType
	if status == domain.StatusFailed {
		eventType = domain.TransactionFailed
	}
	updated, err := s.transition(ctx, *txn, status, reason, false, eventType)
	if errors.Is(err, apperrors.ErrStepApplied) && status == domain.StatusFailed {
		s.LogWarn(ctx, "Debit already applied, compensating instead", slog.String("transaction_id", transactionID))
		updated, err = s.cancelDebited(ctx, *txn, reason)
	}
	if errors.Is(err, apperrors.ErrStepApplied) {
		err = fmt.Errorf("%w: %s was already credited and can only complete: %w", apperrors.ErrInvalidTransition, transactionID, err)
	}
	if err != nil {
		s.LogError(ctx, err, "Operator status change failed", slog.String("transaction_id", transactionID))
		return nil, err
	}
	s.LogInfo(ctx, "Operator changed transaction status",
		slog.String("transaction_id", transactionID),
		slog.String("status", string(status)))

	if updated.Status == domain.StatusCompensating {
		return s.Drive(ctx, transactionID)
	}
	return updated, nil
}

// cancelDebited catches a PENDING record up to the debit the ledger already applied and then
// moves it to COMPENSATING.
func (s *transactionService) cancelDebited(ctx context.Context, txn domain.Transaction, reason string) (*domain.Transaction, error) {
	debited, err := s.transition(ctx, txn, domain.StatusDebited, "", false, domain.TransactionDebited)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, *debited, domain.StatusCompensating, reason, false, "")
}

func (s *transactionService) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	txn, err := s.txnRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to find transaction", slog.String("transaction_id", transactionID))
		}
		return nil, err
	}
	return txn, nil
}

func (s *transactionService) ListTransactionsByAccount(ctx context.Context, accountNumber string, direction domain.TransactionDirection) ([]domain.Transaction, error) {
	if direction == "" {
		direction = domain.DirectionAny
	}
	txns, err := s.txnRepo.ListTransactionsByAccount(ctx, accountNumber, direction)
	if err != nil {
		s.LogError(ctx, err, "Failed to list transactions", slog.String("account_number", accountNumber))
		return nil, err
	}
	return txns, nil
}
