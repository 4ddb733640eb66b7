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
	"github.com/google/uuid"
)

// accountNumberAttempts bounds regeneration when a random account number collides.
const accountNumberAttempts = 3

// accountService implements the AccountSvcFacade interface
type accountService struct {
	BaseService
	uow         portsrepo.UnitOfWork
	accountRepo portsrepo.AccountRepositoryFacade
	txnReader   portsrepo.TransactionReader
	outbox      portsrepo.OutboxWriter
	ledger      portssvc.LedgerSvc
}

// ServiceOption is a functional option for configuring the account service
type ServiceOption func(*accountService)

// WithAccountClock overrides time.Now.
func WithAccountClock(now func() time.Time) ServiceOption {
	return func(s *accountService) {
		s.clock = now
	}
}

// NewAccountService creates a new account service backed by repos and ledger.
func NewAccountService(repos portsrepo.RepositoryProvider, ledger portssvc.LedgerSvc, options ...ServiceOption) portssvc.AccountSvcFacade {
	svc := &accountService{
		uow:         repos.UnitOfWork,
		accountRepo: repos.AccountRepo,
		txnReader:   repos.TransactionRepo,
		outbox:      repos.OutboxRepo,
		ledger:      ledger,
	}
	for _, option := range options {
		option(svc)
	}
	return svc
}

func (s *accountService) CreateAccount(ctx context.Context, req dto.CreateAccountRequest) (*domain.Account, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if req.InitialBalance.IsNegative() {
		return nil, fmt.Errorf("%w: initial balance must not be negative", apperrors.ErrValidation)
	}
	if err := domain.ValidateAmount("initial balance", req.InitialBalance); err != nil {
		return nil, err
	}

	now := s.Now()
	account := domain.Account{
		AccountID:   uuid.NewString(),
		CustomerID:  req.CustomerID,
		AccountType: req.AccountType,
		Currency:    req.Currency,
		Balance:     req.InitialBalance,
		Status:      domain.AccountActive,
		AuditFields: domain.AuditFields{CreatedAt: now, UpdatedAt: now},
	}

	var err error
	for attempt := 0; attempt < accountNumberAttempts; attempt++ {
		account.AccountNumber = domain.NewAccountNumber()
		err = s.uow.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.accountRepo.SaveAccount(ctx, account); err != nil {
				return err
			}
			return s.emit(ctx, s.outbox, domain.AccountCreated, account.AccountNumber, "", domain.AccountCreatedV1{
				AccountID:     account.AccountID,
				AccountNumber: account.AccountNumber,
				CustomerID:    account.CustomerID,
				AccountType:   account.AccountType,
				Balance:       account.Balance,
				Currency:      account.Currency,
				Status:        account.Status,
				CreatedAt:     account.CreatedAt,
			})
		})
		if !errors.Is(err, apperrors.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		s.LogError(ctx, err, "Failed to save account", slog.String("customer_id", req.CustomerID))
		return nil, err
	}

	s.LogInfo(ctx, "Account created successfully",
		slog.String("account_number", account.AccountNumber),
		slog.String("customer_id", account.CustomerID))
	return &account, nil
}

func (s *accountService) GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	account, err := s.accountRepo.FindAccountByNumber(ctx, accountNumber)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to find account", slog.String("account_number", accountNumber))
		}
		return nil, err
	}
	return account, nil
}

func (s *accountService) ListAccountsByCustomer(ctx context.Context, customerID string) ([]domain.Account, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customerId is required", apperrors.ErrValidation)
	}
	accounts, err := s.accountRepo.ListAccountsByCustomer(ctx, customerID)
	if err != nil {
		s.LogError(ctx, err, "Failed to list accounts", slog.String("customer_id", customerID))
		return nil, err
	}
	return accounts, nil
}

// UpdateAccountStatus is a no-op when the account already has the requested status.
func (s *accountService) UpdateAccountStatus(ctx context.Context, accountNumber string, rawStatus string) (*domain.Account, error) {
	status, err := domain.ParseAccountStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	var updated domain.Account
	err = s.uow.WithinTx(ctx, func(ctx context.Context) error {
		account, err := s.accountRepo.FindAccountByNumber(ctx, accountNumber)
		if err != nil {
			return err
		}
		updated = *account
		if account.Status == status {
			return nil
		}
		if !account.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: account %s cannot move from %s to %s", apperrors.ErrInvalidTransition, accountNumber, account.Status, status)
		}

		now := s.Now()
		if err := s.accountRepo.UpdateAccountStatus(ctx, accountNumber, status, now); err != nil {
			return err
		}
		updated.Status = status
		updated.Version++
		updated.UpdatedAt = now

		return s.emit(ctx, s.outbox, domain.AccountStatusUpdated, accountNumber, "", domain.AccountStatusUpdatedV1{
			AccountID:      account.AccountID,
			AccountNumber:  accountNumber,
			PreviousStatus: account.Status,
			Status:         status,
			UpdatedAt:      now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.LogInfo(ctx, "Account status updated",
		slog.String("account_number", accountNumber),
		slog.String("status", string(updated.Status)))
	return &updated, nil
}

// AdjustBalance books a direct deposit or withdrawal. The reference, when given, keys the
// ledger step so a retried request is applied once.
func (s *accountService) AdjustBalance(ctx context.Context, accountNumber string, req dto.AdjustBalanceRequest) (*domain.Account, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", apperrors.ErrValidation)
	}
	if err := domain.ValidateAmount("amount", req.Amount); err != nil {
		return nil, err
	}

	delta := req.Amount
	if req.OperationType == domain.Debit {
		delta = delta.Neg()
	}
	var key domain.StepKey
	if req.Reference != "" {
		key = domain.StepKey{TransactionID: req.Reference, Step: domain.StepAdjustment}
	}

	result, err := s.ledger.ApplyDeltaWithRetry(ctx, accountNumber, delta, key, req.OperationType, req.Currency)
	if err != nil {
		s.LogError(ctx, err, "Balance adjustment failed",
			slog.String("account_number", accountNumber),
			slog.String("operation_type", string(req.OperationType)))
		return nil, err
	}

	account, err := s.accountRepo.FindAccountByNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	s.LogInfo(ctx, "Balance adjusted",
		slog.String("account_number", accountNumber),
		slog.String("new_balance", result.NewBalance.String()),
		slog.Bool("replayed", result.Replayed))
	return account, nil
}

func (s *accountService) DeleteAccount(ctx context.Context, accountNumber string) error {
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.accountRepo.FindAccountByNumber(ctx, accountNumber); err != nil {
			return err
		}
		open, err := s.txnReader.CountActiveTransactions(ctx, accountNumber)
		if err != nil {
			return err
		}
		if open > 0 {
			return fmt.Errorf("%w: %s has %d", apperrors.ErrAccountInUse, accountNumber, open)
		}
		return s.accountRepo.DeleteAccount(ctx, accountNumber)
	})
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to delete account", slog.String("account_number", accountNumber))
		}
		return err
	}
	s.LogInfo(ctx, "Account deleted", slog.String("account_number", accountNumber))
	return nil
}
