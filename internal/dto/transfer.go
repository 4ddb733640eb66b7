package dto

import (
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	"github.com/shopspring/decimal"
)

// CreateTransferRequest defines the data needed to start a transfer saga.
// TransactionID is optional; supplying it makes the request idempotent.
type CreateTransferRequest struct {
	TransactionID     string                 `json:"transactionId" validate:"omitempty,max=64"`
	FromAccountNumber string                 `json:"fromAccountNumber" binding:"required" validate:"required,nefield=ToAccountNumber"`
	ToAccountNumber   string                 `json:"toAccountNumber" binding:"required" validate:"required"`
	Amount            decimal.Decimal        `json:"amount"`
	Currency          string                 `json:"currency" binding:"required,len=3" validate:"required,len=3,uppercase"`
	TransactionType   domain.TransactionType `json:"transactionType" validate:"omitempty,oneof=TRANSFER PAYMENT WITHDRAWAL"`
	Description       string                 `json:"description" validate:"max=255"`
}

// UpdateTransferStatusRequest is an operator override of a transfer's state.
type UpdateTransferStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// ListTransfersParams defines query parameters for listing an account's transfers.
type ListTransfersParams struct {
	Direction string `form:"direction"`
}

// TransferResponse defines the data returned for a transfer.
type TransferResponse struct {
	TransactionID          string                   `json:"transactionId"`
	FromAccountNumber      string                   `json:"fromAccountNumber"`
	ToAccountNumber        string                   `json:"toAccountNumber"`
	Amount                 decimal.Decimal          `json:"amount"`
	Currency               string                   `json:"currency"`
	TransactionType        domain.TransactionType   `json:"transactionType"`
	Description            string                   `json:"description"`
	Status                 domain.TransactionStatus `json:"status"`
	Reason                 string                   `json:"reason,omitempty"`
	RequiresReconciliation bool                     `json:"requiresReconciliation"`
	TransactionDate        time.Time                `json:"transactionDate"`
	UpdatedAt              time.Time                `json:"updatedAt"`
}

// ListTransfersResponse wraps the list of transfers.
type ListTransfersResponse struct {
	Transfers []TransferResponse `json:"transfers"`
}

// ToTransferResponse converts a domain.Transaction to TransferResponse DTO
func ToTransferResponse(txn *domain.Transaction) TransferResponse {
	return TransferResponse{
		TransactionID:          txn.TransactionID,
		FromAccountNumber:      txn.FromAccountNumber,
		ToAccountNumber:        txn.ToAccountNumber,
		Amount:                 txn.Amount,
		Currency:               txn.Currency,
		TransactionType:        txn.TransactionType,
		Description:            txn.Description,
		Status:                 txn.Status,
		Reason:                 txn.Reason,
		RequiresReconciliation: txn.RequiresReconciliation,
		TransactionDate:        txn.TransactionDate,
		UpdatedAt:              txn.UpdatedAt,
	}
}

// ToListTransferResponse converts a slice of domain.Transaction to the list DTO
func ToListTransferResponse(txns []domain.Transaction) ListTransfersResponse {
	res := make([]TransferResponse, len(txns))
	for i := range txns {
		res[i] = ToTransferResponse(&txns[i])
	}
	return ListTransfersResponse{Transfers: res}
}
