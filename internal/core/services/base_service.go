package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	portsrepo "github.com/SscSPs/money_transfer_saga/internal/core/ports/repositories"
	"github.com/SscSPs/money_transfer_saga/internal/middleware"
)

// BaseService provides common functionality for all services
type BaseService struct {
	clock func() time.Time
}

// GetLogger gets the logger from context or returns a default one
func (s *BaseService) GetLogger(ctx context.Context) *slog.Logger {
	return middleware.GetLoggerFromCtx(ctx)
}

// LogError logs an error with consistent formatting
func (s *BaseService) LogError(ctx context.Context, err error, msg string, keyvals ...any) {
	logger := s.GetLogger(ctx)
	args := make([]any, 0, len(keyvals)+1)
	args = append(args, slog.String("error", err.Error()))
	args = append(args, keyvals...)
	logger.Error(msg, args...)
}

// LogWarn logs a warning with consistent formatting
func (s *BaseService) LogWarn(ctx context.Context, msg string, keyvals ...any) {
	s.GetLogger(ctx).Warn(msg, keyvals...)
}

// LogInfo logs an info message with consistent formatting
func (s *BaseService) LogInfo(ctx context.Context, msg string, keyvals ...any) {
	s.GetLogger(ctx).Info(msg, keyvals...)
}

// LogDebug logs a debug message with consistent formatting
func (s *BaseService) LogDebug(ctx context.Context, msg string, keyvals ...any) {
	s.GetLogger(ctx).Debug(msg, keyvals...)
}

// Now returns the service clock in UTC.
func (s *BaseService) Now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

// emit writes an event to the outbox. It must be called inside the unit of work that makes
// the state change the event describes.
func (s *BaseService) emit(ctx context.Context, outbox portsrepo.OutboxWriter, eventType domain.EventType, partitionKey, causationID string, payload any) error {
	evt, err := domain.NewEvent(eventType, partitionKey, causationID, payload, s.Now())
	if err != nil {
		return err
	}
	record, err := domain.NewOutboxRecord(evt)
	if err != nil {
		return err
	}
	if err := outbox.SaveOutboxRecord(ctx, record); err != nil {
		return fmt.Errorf("save %s outbox event: %w", eventType, err)
	}
	return nil
}
