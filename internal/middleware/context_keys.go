package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
)

// contextKey is used for values this package stores in request contexts.
// Using a custom type prevents collisions.
type contextKey string

const (
	loggerCtxKey = contextKey("logger")
	operatorKey  = contextKey("operator")
)

// GetOperatorFromContext retrieves the authenticated operator subject set by AuthMiddleware.
func GetOperatorFromContext(c *gin.Context) (string, bool) {
	return OperatorFromCtx(c.Request.Context())
}

// OperatorFromCtx is GetOperatorFromContext for code that only has a context.Context.
func OperatorFromCtx(ctx context.Context) (string, bool) {
	operator, ok := ctx.Value(operatorKey).(string)
	return operator, ok && operator != ""
}

// WithOperator returns a copy of ctx attributed to operator.
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey, operator)
}
