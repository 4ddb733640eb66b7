package repositories

// RepositoryProvider holds all repository interfaces needed by services.
// This makes passing dependencies to the service container constructor cleaner.
type RepositoryProvider struct {
	UnitOfWork      UnitOfWork
	AccountRepo     AccountRepositoryFacade
	TransactionRepo TransactionRepositoryFacade
	LedgerRepo      LedgerEntryRepository
	OutboxRepo      OutboxRepositoryFacade
	ProcessedRepo   ProcessedEventRepository
	AuditRepo       BalanceAuditRepository
	DeadLetterRepo  DeadLetterRepository
}
