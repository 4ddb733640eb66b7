package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	"github.com/SscSPs/money_transfer_saga/internal/repositories/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAccount(t *testing.T, store *memory.Store, number string) {
	t.Helper()
	require.NoError(t, store.SaveAccount(context.Background(), domain.Account{
		AccountID:     "id-" + number,
		AccountNumber: number,
		Currency:      "USD",
		Balance:       decimal.NewFromInt(100),
		Status:        domain.AccountActive,
	}))
}

func TestStore_WithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedAccount(t, store, "ACC1")

	err := store.WithinTx(ctx, func(ctx context.Context) error {
		_, err := store.UpdateBalance(ctx, "ACC1", decimal.NewFromInt(50), 0, time.Now())
		require.NoError(t, err)
		require.NoError(t, store.SaveOutboxRecord(ctx, domain.OutboxRecord{EventID: "e1"}))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	acc, err := store.FindAccountByNumber(ctx, "ACC1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, int64(0), acc.Version)
	assert.Empty(t, store.OutboxRecords())
}

func TestStore_UpdateBalanceIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedAccount(t, store, "ACC1")

	version, err := store.UpdateBalance(ctx, "ACC1", decimal.NewFromInt(90), 0, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	_, err = store.UpdateBalance(ctx, "ACC1", decimal.NewFromInt(80), 0, time.Now())
	assert.ErrorIs(t, err, apperrors.ErrVersionConflict)

	_, err = store.UpdateBalance(ctx, "ACC404", decimal.NewFromInt(80), 0, time.Now())
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
}

func TestStore_StatusChangeKeepsVersion(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedAccount(t, store, "ACC1")

	require.NoError(t, store.UpdateAccountStatus(ctx, "ACC1", domain.AccountSuspended, time.Now()))
	acc, err := store.FindAccountByNumber(ctx, "ACC1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.Version)

	// a balance write against a suspended account fails the swap even at the right version
	_, err = store.UpdateBalance(ctx, "ACC1", decimal.NewFromInt(90), 0, time.Now())
	assert.ErrorIs(t, err, apperrors.ErrVersionConflict)

	require.NoError(t, store.UpdateAccountStatus(ctx, "ACC1", domain.AccountActive, time.Now()))
	version, err := store.UpdateBalance(ctx, "ACC1", decimal.NewFromInt(90), 0, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestStore_TransactionStatusCAS(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.SaveTransaction(ctx, domain.Transaction{TransactionID: "TXN1", Status: domain.StatusPending}))
	assert.ErrorIs(t, store.SaveTransaction(ctx, domain.Transaction{TransactionID: "TXN1"}), apperrors.ErrDuplicateTransaction)

	change := domain.StatusChange{TransactionID: "TXN1", From: domain.StatusPending, To: domain.StatusDebited, ExpectedVersion: 0}
	require.NoError(t, store.UpdateTransactionStatus(ctx, change))
	assert.ErrorIs(t, store.UpdateTransactionStatus(ctx, change), apperrors.ErrVersionConflict)

	txn, err := store.FindTransactionByID(ctx, "TXN1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDebited, txn.Status)
	assert.Equal(t, int64(1), txn.Version)
}

func TestStore_LedgerEntryUniquePerStep(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	entry := domain.LedgerEntry{EntryID: "1", TransactionID: "TXN1", Step: domain.StepDebit}

	require.NoError(t, store.SaveEntry(ctx, entry))
	assert.ErrorIs(t, store.SaveEntry(ctx, entry), apperrors.ErrDuplicate)

	_, err := store.FindEntry(ctx, domain.StepKey{TransactionID: "TXN1", Step: domain.StepCredit})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	found, err := store.FindEntry(ctx, domain.StepKey{TransactionID: "TXN1", Step: domain.StepDebit})
	require.NoError(t, err)
	assert.Equal(t, "1", found.EntryID)
}

func TestStore_ClaimDueHoldsBackPartitionBehindFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Now()
	for _, rec := range []domain.OutboxRecord{
		{EventID: "a1", PartitionKey: "A", NextAttemptAt: now.Add(time.Minute)}, // failed, not due yet
		{EventID: "a2", PartitionKey: "A", NextAttemptAt: now},
		{EventID: "b1", PartitionKey: "B", NextAttemptAt: now},
		{EventID: "b2", PartitionKey: "B", NextAttemptAt: now},
	} {
		require.NoError(t, store.SaveOutboxRecord(ctx, rec))
	}

	claimed, err := store.ClaimDue(ctx, now, time.Minute, 10)
	require.NoError(t, err)
	ids := make([]string, len(claimed))
	for i, c := range claimed {
		ids[i] = c.EventID
	}
	assert.Equal(t, []string{"b1", "b2"}, ids)

	again, err := store.ClaimDue(ctx, now, time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed rows are leased")
}

func TestStore_MarkProcessedDedups(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	first, err := store.MarkProcessed(ctx, domain.ProcessedEvent{ConsumerGroup: "audit", EventID: "e1"})
	require.NoError(t, err)
	again, err := store.MarkProcessed(ctx, domain.ProcessedEvent{ConsumerGroup: "audit", EventID: "e1"})
	require.NoError(t, err)
	other, err := store.MarkProcessed(ctx, domain.ProcessedEvent{ConsumerGroup: "notify", EventID: "e1"})
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, again)
	assert.True(t, other)
}

func TestStore_ListStaleTransactions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	old := time.Now().Add(-time.Hour)
	require.NoError(t, store.SaveTransaction(ctx, domain.Transaction{TransactionID: "T1", Status: domain.StatusDebited, AuditFields: domain.AuditFields{UpdatedAt: old}}))
	require.NoError(t, store.SaveTransaction(ctx, domain.Transaction{TransactionID: "T2", Status: domain.StatusCompleted, AuditFields: domain.AuditFields{UpdatedAt: old}}))
	require.NoError(t, store.SaveTransaction(ctx, domain.Transaction{TransactionID: "T3", Status: domain.StatusPending, AuditFields: domain.AuditFields{UpdatedAt: time.Now()}}))

	stale, err := store.ListStaleTransactions(ctx, domain.NonTerminalStatuses(), time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "T1", stale[0].TransactionID)
}
