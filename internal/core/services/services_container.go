package services

import (
	portsrepo "github.com/SscSPs/money_transfer_saga/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/money_transfer_saga/internal/core/ports/services"
	"github.com/SscSPs/money_transfer_saga/internal/platform/config"
)

// NewServiceContainer creates a new service container with properly initialized dependencies
func NewServiceContainer(cfg *config.Config, repos portsrepo.RepositoryProvider, alerter portssvc.Alerter) *portssvc.ServiceContainer {
	container := &portssvc.ServiceContainer{}

	// The ledger is built first; every balance change goes through it
	container.Ledger = NewLedgerService(repos, WithLedgerRetry(cfg.LedgerMaxRetries, cfg.LedgerRetryBase))

	container.Account = NewAccountService(repos, container.Ledger)

	container.Transaction = NewTransactionService(repos, container.Ledger,
		WithStepTimeout(cfg.SagaStepTimeout),
		WithCompensationRetry(cfg.CompensationMaxRetries, cfg.LedgerRetryBase*10),
		WithAlerter(alerter),
	)

	container.Recovery = NewRecoveryService(repos, container.Transaction,
		WithStaleAfter(cfg.RecoveryStaleAfter),
		WithRecoveryBatchSize(cfg.OutboxBatchSize),
	)

	audit := NewAuditService(repos, cfg.ConsumerGroup)
	container.Audit = audit
	container.DeadLetters = audit

	return container
}

// Helper to check interface implementations at compile time
var (
	_ portssvc.AccountSvcFacade     = (*accountService)(nil)
	_ portssvc.TransactionSvcFacade = (*transactionService)(nil)
	_ portssvc.RecoverySvc          = (*recoveryService)(nil)
	_ portssvc.AuditSvcFacade       = (*auditService)(nil)
)
