package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/gin-gonic/gin"
)

// statusFor maps a service error to the HTTP status it is reported with.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrInsufficientFunds),
		errors.Is(err, apperrors.ErrAccountNotActive),
		errors.Is(err, apperrors.ErrCurrencyMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrInvalidTransition),
		errors.Is(err, apperrors.ErrDuplicate),
		errors.Is(err, apperrors.ErrAccountInUse),
		errors.Is(err, apperrors.ErrVersionConflict),
		errors.Is(err, apperrors.ErrConcurrencyExhausted):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrOutcomeUnknown):
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body. Internal errors are logged and replaced by fallback.
func respondError(c *gin.Context, logger *slog.Logger, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(fallback, slog.String("error", err.Error()))
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	logger.Warn("Request rejected", slog.Int("status", status), slog.String("error", err.Error()))
	c.JSON(status, gin.H{"error": err.Error()})
}
