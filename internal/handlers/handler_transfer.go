package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	portssvc "github.com/SscSPs/money_transfer_saga/internal/core/ports/services"
	"github.com/SscSPs/money_transfer_saga/internal/dto"
	"github.com/SscSPs/money_transfer_saga/internal/middleware"
	"github.com/gin-gonic/gin"
)

// transferHandler handles HTTP requests related to transfers.
type transferHandler struct {
	transactionService portssvc.TransactionSvcFacade
}

func newTransferHandler(ts portssvc.TransactionSvcFacade) *transferHandler {
	return &transferHandler{transactionService: ts}
}

// registerTransferRoutes registers the public transfer routes. create is wrapped in the given
// middlewares so it can be rate limited on its own.
func registerTransferRoutes(rg *gin.RouterGroup, transactionService portssvc.TransactionSvcFacade, create ...gin.HandlerFunc) {
	h := newTransferHandler(transactionService)

	transfers := rg.Group("/transfers")
	{
		transfers.POST("", append(create, h.createTransfer)...)
		transfers.GET("/:transactionId", h.getTransfer)
	}
}

// registerAdminTransferRoutes registers the operator routes. The group is expected to be
// behind AuthMiddleware.
func registerAdminTransferRoutes(rg *gin.RouterGroup, transactionService portssvc.TransactionSvcFacade) {
	h := newTransferHandler(transactionService)

	rg.PUT("/transfers/:transactionId/status", h.updateTransferStatus)
}

// createTransfer starts a transfer and drives it as far as it can go within the request.
// A terminal transfer is returned with 201, including failed and compensated ones; a transfer
// whose step outcome is unknown is returned with 202 in its last known state.
func (h *transferHandler) createTransfer(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.CreateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for CreateTransfer", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	logger.Info("Received request to create transfer",
		slog.String("from_account", req.FromAccountNumber),
		slog.String("to_account", req.ToAccountNumber),
		slog.String("amount", req.Amount.String()))

	txn, err := h.transactionService.CreateTransfer(c.Request.Context(), req)
	if err != nil {
		if respondPending(c, logger, txn, err) {
			return
		}
		respondError(c, logger, err, "Failed to create transfer")
		return
	}

	logger.Info("Transfer processed", slog.String("transaction_id", txn.TransactionID), slog.String("status", string(txn.Status)))
	c.JSON(http.StatusCreated, dto.ToTransferResponse(txn))
}

func (h *transferHandler) getTransfer(c *gin.Context) {
	transactionID := c.Param("transactionId")
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("transaction_id", transactionID))

	txn, err := h.transactionService.GetTransaction(c.Request.Context(), transactionID)
	if err != nil {
		respondError(c, logger, err, "Failed to retrieve transfer")
		return
	}

	c.JSON(http.StatusOK, dto.ToTransferResponse(txn))
}

// updateTransferStatus is the operator override. Only PENDING->FAILED and DEBITED->COMPENSATING
// are accepted; the latter runs the refund before responding.
func (h *transferHandler) updateTransferStatus(c *gin.Context) {
	transactionID := c.Param("transactionId")
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("transaction_id", transactionID))

	var req dto.UpdateTransferStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for UpdateTransferStatus", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	logger.Info("Received operator status change", slog.String("status", req.Status))

	txn, err := h.transactionService.UpdateTransactionStatus(c.Request.Context(), transactionID, req.Status, req.Reason)
	if err != nil {
		if respondPending(c, logger, txn, err) {
			return
		}
		respondError(c, logger, err, "Failed to update transfer status")
		return
	}

	c.JSON(http.StatusOK, dto.ToTransferResponse(txn))
}

// respondPending writes 202 with the transfer's current state when err only means the outcome of
// a step is not known yet. It reports whether it wrote a response.
func respondPending(c *gin.Context, logger *slog.Logger, txn *domain.Transaction, err error) bool {
	if txn == nil || !errors.Is(err, apperrors.ErrOutcomeUnknown) {
		return false
	}
	logger.Warn("Transfer outcome unknown, left for recovery",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("status", string(txn.Status)),
		slog.String("error", err.Error()))
	c.JSON(http.StatusAccepted, dto.ToTransferResponse(txn))
	return true
}
