package domain_test

import (
	"testing"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		amount string
		ok     bool
	}{
		{"1", true},
		{"0.0001", true},
		{"1.10000", true},
		{"-25.5", true},
		{"9999999999999999.9999", true},
		{"0.00001", false},
		{"1.23456", false},
		{"10000000000000000", false},
		{"-10000000000000000", false},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			err := domain.ValidateAmount("amount", decimal.RequireFromString(tt.amount))
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}
