package handlers

import (
	"log/slog"
	"net/http"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	portssvc "github.com/SscSPs/money_transfer_saga/internal/core/ports/services"
	"github.com/SscSPs/money_transfer_saga/internal/dto"
	"github.com/SscSPs/money_transfer_saga/internal/middleware"
	"github.com/gin-gonic/gin"
)

// accountHandler handles HTTP requests related to accounts.
type accountHandler struct {
	accountService     portssvc.AccountSvcFacade
	transactionService portssvc.TransactionReaderSvc
}

// newAccountHandler creates a new accountHandler.
func newAccountHandler(as portssvc.AccountSvcFacade, ts portssvc.TransactionReaderSvc) *accountHandler {
	return &accountHandler{
		accountService:     as,
		transactionService: ts,
	}
}

// registerAccountRoutes registers routes related to accounts.
func registerAccountRoutes(rg *gin.RouterGroup, accountService portssvc.AccountSvcFacade, transactionService portssvc.TransactionReaderSvc) {
	h := newAccountHandler(accountService, transactionService)

	accounts := rg.Group("/accounts")
	{
		accounts.POST("", h.createAccount)
		accounts.GET("", h.listAccounts)
		accounts.GET("/:accountNumber", h.getAccount)
		accounts.POST("/:accountNumber/balance", h.adjustBalance)
		accounts.PUT("/:accountNumber/status", h.updateAccountStatus)
		accounts.DELETE("/:accountNumber", h.deleteAccount)
		accounts.GET("/:accountNumber/transactions", h.listAccountTransactions)
	}
}

// createAccount opens an account.
func (h *accountHandler) createAccount(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	var req dto.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for CreateAccount", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	logger.Info("Received request to create account", slog.String("customer_id", req.CustomerID), slog.String("currency", req.Currency))

	account, err := h.accountService.CreateAccount(c.Request.Context(), req)
	if err != nil {
		respondError(c, logger, err, "Failed to create account")
		return
	}

	logger.Info("Account created successfully", slog.String("account_number", account.AccountNumber))
	c.JSON(http.StatusCreated, dto.ToAccountResponse(account))
}

func (h *accountHandler) getAccount(c *gin.Context) {
	accountNumber := c.Param("accountNumber")
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("account_number", accountNumber))

	account, err := h.accountService.GetAccountByNumber(c.Request.Context(), accountNumber)
	if err != nil {
		respondError(c, logger, err, "Failed to retrieve account")
		return
	}

	c.JSON(http.StatusOK, dto.ToAccountResponse(account))
}

// listAccounts returns every account owned by the customer in the customerId query parameter.
func (h *accountHandler) listAccounts(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var params dto.ListAccountsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		logger.Warn("Failed to bind query params for ListAccounts", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	accounts, err := h.accountService.ListAccountsByCustomer(c.Request.Context(), params.CustomerID)
	if err != nil {
		respondError(c, logger, err, "Failed to list accounts")
		return
	}

	logger.Info("Accounts listed successfully", slog.String("customer_id", params.CustomerID), slog.Int("count", len(accounts)))
	c.JSON(http.StatusOK, dto.ToListAccountResponse(accounts))
}

// adjustBalance applies a direct deposit or withdrawal through the ledger.
func (h *accountHandler) adjustBalance(c *gin.Context) {
	accountNumber := c.Param("accountNumber")
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("account_number", accountNumber))

	var req dto.AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for AdjustBalance", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	account, err := h.accountService.AdjustBalance(c.Request.Context(), accountNumber, req)
	if err != nil {
		respondError(c, logger, err, "Failed to adjust balance")
		return
	}

	logger.Info("Balance adjusted", slog.String("operation", string(req.OperationType)), slog.String("balance", account.Balance.String()))
	c.JSON(http.StatusOK, dto.ToAccountResponse(account))
}

func (h *accountHandler) updateAccountStatus(c *gin.Context) {
	accountNumber := c.Param("accountNumber")
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("account_number", accountNumber))

	var req dto.UpdateAccountStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for UpdateAccountStatus", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	account, err := h.accountService.UpdateAccountStatus(c.Request.Context(), accountNumber, req.Status)
	if err != nil {
		respondError(c, logger, err, "Failed to update account status")
		return
	}

	logger.Info("Account status updated", slog.String("status", string(account.Status)))
	c.JSON(http.StatusOK, dto.ToAccountResponse(account))
}

func (h *accountHandler) deleteAccount(c *gin.Context) {
	accountNumber := c.Param("accountNumber")
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("account_number", accountNumber))

	if err := h.accountService.DeleteAccount(c.Request.Context(), accountNumber); err != nil {
		respondError(c, logger, err, "Failed to delete account")
		return
	}

	logger.Info("Account deleted")
	c.Status(http.StatusNoContent)
}

// listAccountTransactions returns transfers touching the account, filtered by the optional
// direction query parameter: from, to or any.
func (h *accountHandler) listAccountTransactions(c *gin.Context) {
	accountNumber := c.Param("accountNumber")
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("account_number", accountNumber))

	var params dto.ListTransfersParams
	if err := c.ShouldBindQuery(&params); err != nil {
		logger.Warn("Failed to bind query params for ListAccountTransactions", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	direction, err := domain.ParseTransactionDirection(params.Direction)
	if err != nil {
		respondError(c, logger, err, "Failed to list transactions")
		return
	}

	txns, err := h.transactionService.ListTransactionsByAccount(c.Request.Context(), accountNumber, direction)
	if err != nil {
		respondError(c, logger, err, "Failed to list transactions")
		return
	}

	c.JSON(http.StatusOK, dto.ToListTransferResponse(txns))
}
