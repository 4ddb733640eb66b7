package domain_test

import (
	"testing"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionStatus_CanTransitionTo(t *testing.T) {
	all := []domain.TransactionStatus{
		domain.StatusPending, domain.StatusDebited, domain.StatusCompensating,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusCompensated,
	}
	allowed := map[domain.TransactionStatus]map[domain.TransactionStatus]bool{
		domain.StatusPending:      {domain.StatusDebited: true, domain.StatusFailed: true},
		domain.StatusDebited:      {domain.StatusCompleted: true, domain.StatusCompensating: true},
		domain.StatusCompensating: {domain.StatusCompensated: true, domain.StatusFailed: true},
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[from][to]
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
			if want {
				assert.NoError(t, domain.ValidateTransition(from, to))
			} else {
				assert.ErrorIs(t, domain.ValidateTransition(from, to), apperrors.ErrInvalidTransition)
			}
		}
	}
}

func TestTransactionStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status domain.TransactionStatus
		want   bool
	}{
		{domain.StatusPending, false},
		{domain.StatusDebited, false},
		{domain.StatusCompensating, false},
		{domain.StatusCompleted, true},
		{domain.StatusFailed, true},
		{domain.StatusCompensated, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsTerminal())
		})
	}
	for _, s := range domain.NonTerminalStatuses() {
		assert.False(t, s.IsTerminal())
	}
}

func TestValidateAdminTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.TransactionStatus
		to      domain.TransactionStatus
		wantErr bool
	}{
		{"pending to failed", domain.StatusPending, domain.StatusFailed, false},
		{"debited to compensating", domain.StatusDebited, domain.StatusCompensating, false},
		{"pending to debited needs ledger", domain.StatusPending, domain.StatusDebited, true},
		{"debited to completed needs ledger", domain.StatusDebited, domain.StatusCompleted, true},
		{"compensating to compensated needs ledger", domain.StatusCompensating, domain.StatusCompensated, true},
		{"completed is terminal", domain.StatusCompleted, domain.StatusFailed, true},
		{"pending to completed skips a step", domain.StatusPending, domain.StatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := domain.ValidateAdminTransition(tt.from, tt.to)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseTransactionStatus(t *testing.T) {
	status, err := domain.ParseTransactionStatus("DEBITED")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDebited, status)

	_, err = domain.ParseTransactionStatus("REVERSED")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = domain.ParseTransactionStatus("debited")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestNewTransactionID(t *testing.T) {
	id := domain.NewTransactionID()
	assert.Regexp(t, `^TXN[0-9A-F]{12}$`, id)
	assert.NotEqual(t, id, domain.NewTransactionID())
}

func TestTransaction_SameTerms(t *testing.T) {
	base := domain.Transaction{
		FromAccountNumber: "ACC000000000001",
		ToAccountNumber:   "ACC000000000002",
		Amount:            decimal.RequireFromString("10.00"),
		Currency:          "USD",
	}

	same := base
	same.Amount = decimal.RequireFromString("10")
	same.Description = "different description is fine"
	assert.True(t, base.SameTerms(same))

	other := base
	other.Amount = decimal.RequireFromString("10.01")
	assert.False(t, base.SameTerms(other))

	swapped := base
	swapped.FromAccountNumber, swapped.ToAccountNumber = base.ToAccountNumber, base.FromAccountNumber
	assert.False(t, base.SameTerms(swapped))
}

func TestStatusChange_Apply(t *testing.T) {
	txn := domain.Transaction{TransactionID: "TXN1", Status: domain.StatusCompensating, Version: 3}
	change := domain.StatusChange{
		TransactionID:          "TXN1",
		From:                   domain.StatusCompensating,
		To:                     domain.StatusFailed,
		Reason:                 domain.ReasonCompensationFailed,
		RequiresReconciliation: true,
		ExpectedVersion:        3,
	}

	updated := change.Apply(txn)

	assert.Equal(t, domain.StatusFailed, updated.Status)
	assert.Equal(t, int64(4), updated.Version)
	assert.True(t, updated.RequiresReconciliation)
	assert.Equal(t, domain.StatusCompensating, txn.Status, "original is not mutated")
}
