package handlers

import (
	"net/http"

	portssvc "github.com/SscSPs/money_transfer_saga/internal/core/ports/services"
	"github.com/SscSPs/money_transfer_saga/internal/middleware"
	"github.com/SscSPs/money_transfer_saga/internal/platform/config"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
)

// RegisterRoutes sets up all application routes, injecting dependencies using interfaces.
// A nil limiter leaves transfer creation unthrottled.
func RegisterRoutes(
	r *gin.Engine,
	cfg *config.Config,
	services *portssvc.ServiceContainer,
	transferLimiter *limiter.Limiter,
) {

	// Add health check route
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	setupAPIV1Routes(r, cfg, services, transferLimiter)
}

// setupAPIV1Routes configures the /api/v1 group and delegates to specific entity route registrations
func setupAPIV1Routes(
	r *gin.Engine,
	cfg *config.Config,
	services *portssvc.ServiceContainer,
	transferLimiter *limiter.Limiter,
) {
	v1 := r.Group("/api/v1")

	var createTransfer []gin.HandlerFunc
	if transferLimiter != nil {
		createTransfer = append(createTransfer, middleware.RateLimit(transferLimiter))
	}

	registerAccountRoutes(v1, services.Account, services.Transaction)
	registerTransferRoutes(v1, services.Transaction, createTransfer...)

	// Operator routes require a signed token.
	admin := v1.Group("/admin", middleware.AuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer))
	registerAdminTransferRoutes(admin, services.Transaction)
	registerDeadLetterRoutes(admin, services.DeadLetters)
}
