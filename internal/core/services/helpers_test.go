package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	portssvc "github.com/SscSPs/money_transfer_saga/internal/core/ports/services"
	"github.com/SscSPs/money_transfer_saga/internal/repositories/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedAccount(t *testing.T, store *memory.Store, number, balance string, status domain.AccountStatus) domain.Account {
	t.Helper()
	now := time.Now().UTC()
	acc := domain.Account{
		AccountID:     "id-" + number,
		AccountNumber: number,
		CustomerID:    "CUST1",
		AccountType:   domain.Checking,
		Currency:      "USD",
		Balance:       dec(balance),
		Status:        status,
		AuditFields:   domain.AuditFields{CreatedAt: now, UpdatedAt: now},
	}
	require.NoError(t, store.SaveAccount(context.Background(), acc))
	return acc
}

func balanceOf(t *testing.T, store *memory.Store, number string) decimal.Decimal {
	t.Helper()
	acc, err := store.FindAccountByNumber(context.Background(), number)
	require.NoError(t, err)
	return acc.Balance
}

func eventTypes(store *memory.Store) []domain.EventType {
	records := store.OutboxRecords()
	types := make([]domain.EventType, 0, len(records))
	for _, r := range records {
		types = append(types, r.EventType)
	}
	return types
}

// --- Mock Alerter ---
type MockAlerter struct {
	mock.Mock
}

func (m *MockAlerter) CompensationFailed(ctx context.Context, txn domain.Transaction, cause error) {
	m.Called(ctx, txn, cause)
}

// stepFunc wraps a single ledger call; next performs the real call.
type stepFunc func(ctx context.Context, key domain.StepKey, next func(context.Context) (domain.DeltaResult, error)) (domain.DeltaResult, error)

// stepLedger lets a test intercept individual saga steps.
type stepLedger struct {
	portssvc.LedgerSvc
	mu    sync.Mutex
	wrap  stepFunc
	calls map[domain.Step]int
}

func newStepLedger(inner portssvc.LedgerSvc, wrap stepFunc) *stepLedger {
	return &stepLedger{LedgerSvc: inner, wrap: wrap, calls: make(map[domain.Step]int)}
}

func (l *stepLedger) ApplyDeltaWithRetry(ctx context.Context, accountNumber string, amount decimal.Decimal, key domain.StepKey, op domain.OperationType, currency string) (domain.DeltaResult, error) {
	l.mu.Lock()
	l.calls[key.Step]++
	l.mu.Unlock()

	next := func(ctx context.Context) (domain.DeltaResult, error) {
		return l.LedgerSvc.ApplyDeltaWithRetry(ctx, accountNumber, amount, key, op, currency)
	}
	if l.wrap == nil {
		return next(ctx)
	}
	return l.wrap(ctx, key, next)
}

func (l *stepLedger) Calls(step domain.Step) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[step]
}

func decFromInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}
