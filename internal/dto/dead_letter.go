package dto

import (
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
)

// ListDeadLettersParams defines query parameters for listing dead letters.
type ListDeadLettersParams struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// DeadLetterResponse defines the data returned for a dead letter. Payload is the raw message body.
type DeadLetterResponse struct {
	ID            string    `json:"id"`
	Topic         string    `json:"topic"`
	ConsumerGroup string    `json:"consumerGroup"`
	EventID       string    `json:"eventId"`
	Payload       string    `json:"payload"`
	Error         string    `json:"error"`
	Attempts      int       `json:"attempts"`
	CreatedAt     time.Time `json:"createdAt"`
}

type ListDeadLettersResponse struct {
	DeadLetters []DeadLetterResponse `json:"deadLetters"`
}

func ToListDeadLetterResponse(letters []domain.DeadLetter) ListDeadLettersResponse {
	res := make([]DeadLetterResponse, len(letters))
	for i, l := range letters {
		res[i] = DeadLetterResponse{
			ID:            l.ID,
			Topic:         l.Topic,
			ConsumerGroup: l.ConsumerGroup,
			EventID:       l.EventID,
			Payload:       string(l.Payload),
			Error:         l.Error,
			Attempts:      l.Attempts,
			CreatedAt:     l.CreatedAt,
		}
	}
	return ListDeadLettersResponse{DeadLetters: res}
}
