package apperrors_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/stretchr/testify/assert"
)

func TestSpecificErrorsWrapGeneric(t *testing.T) {
	assert.ErrorIs(t, apperrors.ErrAccountNotFound, apperrors.ErrNotFound)
	assert.ErrorIs(t, apperrors.ErrTransactionNotFound, apperrors.ErrNotFound)
	assert.ErrorIs(t, apperrors.ErrDuplicateTransaction, apperrors.ErrDuplicate)
}

func TestAppError_Unwrap(t *testing.T) {
	appErr := apperrors.NewAppError(500, "failed to commit", assert.AnError)

	assert.ErrorIs(t, appErr, assert.AnError)
	assert.Equal(t, "failed to commit: "+assert.AnError.Error(), appErr.Error())
	assert.Equal(t, "no cause", apperrors.NewAppError(500, "no cause", nil).Error())
}

func TestIsBusinessRejection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"insufficient funds", fmt.Errorf("debit: %w", apperrors.ErrInsufficientFunds), true},
		{"not active", apperrors.ErrAccountNotActive, true},
		{"account missing", apperrors.ErrAccountNotFound, true},
		{"currency", apperrors.ErrCurrencyMismatch, true},
		{"timeout", context.DeadlineExceeded, false},
		{"version conflict", apperrors.ErrVersionConflict, false},
		{"generic", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperrors.IsBusinessRejection(tt.err))
		})
	}
}
