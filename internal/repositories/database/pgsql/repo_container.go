package pgsql

import (
	portsrepo "github.com/SscSPs/money_transfer_saga/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5/pgxpool"
)

func NewRepositoryProvider(dbPool *pgxpool.Pool) portsrepo.RepositoryProvider {
	consumerRepo := newPgxConsumerRepository(dbPool)

	return portsrepo.RepositoryProvider{
		UnitOfWork:      newPgxUnitOfWork(dbPool),
		AccountRepo:     newPgxAccountRepository(dbPool),
		TransactionRepo: newPgxTransactionRepository(dbPool),
		LedgerRepo:      newPgxLedgerRepository(dbPool),
		OutboxRepo:      newPgxOutboxRepository(dbPool),
		ProcessedRepo:   consumerRepo,
		AuditRepo:       consumerRepo,
		DeadLetterRepo:  consumerRepo,
	}
}
