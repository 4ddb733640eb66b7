package services

import (
	"context"
	"log/slog"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	portssvc "github.com/SscSPs/money_transfer_saga/internal/core/ports/services"
)

// logAlerter reports alerts as error logs tagged for paging.
type logAlerter struct {
	logger *slog.Logger
}

// NewLogAlerter creates an Alerter that writes to logger.
func NewLogAlerter(logger *slog.Logger) portssvc.Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &logAlerter{logger: logger.With(slog.String("component", "alerting"))}
}

func (a *logAlerter) CompensationFailed(ctx context.Context, txn domain.Transaction, cause error) {
	a.logger.ErrorContext(ctx, "ALERT compensation failed, manual reconciliation required",
		slog.String("alert", "compensation_failed"),
		slog.String("transaction_id", txn.TransactionID),
		slog.String("from_account", txn.FromAccountNumber),
		slog.String("to_account", txn.ToAccountNumber),
		slog.String("amount", txn.Amount.String()),
		slog.String("currency", txn.Currency),
		slog.String("error", cause.Error()))
}
