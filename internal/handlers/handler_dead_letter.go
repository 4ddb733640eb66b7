package handlers

import (
	"log/slog"
	"net/http"

	portssvc "github.com/SscSPs/money_transfer_saga/internal/core/ports/services"
	"github.com/SscSPs/money_transfer_saga/internal/dto"
	"github.com/SscSPs/money_transfer_saga/internal/middleware"
	"github.com/gin-gonic/gin"
)

type deadLetterHandler struct {
	deadLetterService portssvc.DeadLetterSvc
}

func registerDeadLetterRoutes(rg *gin.RouterGroup, deadLetterService portssvc.DeadLetterSvc) {
	h := &deadLetterHandler{deadLetterService: deadLetterService}

	rg.GET("/dead-letters", h.listDeadLetters)
}

func (h *deadLetterHandler) listDeadLetters(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var params dto.ListDeadLettersParams
	if err := c.ShouldBindQuery(&params); err != nil {
		logger.Warn("Failed to bind query params for ListDeadLetters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	letters, err := h.deadLetterService.ListDeadLetters(c.Request.Context(), params.Limit)
	if err != nil {
		respondError(c, logger, err, "Failed to list dead letters")
		return
	}

	c.JSON(http.StatusOK, dto.ToListDeadLetterResponse(letters))
}
