package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OutboxRecord is an event waiting to be relayed. It is written in the same unit of work as the
// state change it describes.
type OutboxRecord struct {
	EventID       string
	Topic         string
	PartitionKey  string
	EventType     EventType
	Payload       []byte
	Published     bool
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// NewOutboxRecord serializes the envelope into a record due immediately.
func NewOutboxRecord(e Event) (OutboxRecord, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return OutboxRecord{}, fmt.Errorf("marshal envelope %s: %w", e.EventID, err)
	}
	return OutboxRecord{
		EventID:       e.EventID,
		Topic:         TopicFor(e.EventType),
		PartitionKey:  e.PartitionKey,
		EventType:     e.EventType,
		Payload:       body,
		NextAttemptAt: e.OccurredAt,
		CreatedAt:     e.OccurredAt,
	}, nil
}

// ProcessedEvent marks an event a consumer group has already handled.
type ProcessedEvent struct {
	ConsumerGroup string
	EventID       string
	ProcessedAt   time.Time
}

// DeadLetter keeps the full payload of a message that exhausted its handler retries.
type DeadLetter struct {
	ID            string
	Topic         string
	ConsumerGroup string
	EventID       string
	Payload       []byte
	Error         string
	Attempts      int
	CreatedAt     time.Time
}

// BalanceAudit is one link of the per-account balance chain rebuilt from balance-updated events.
type BalanceAudit struct {
	EventID         string
	AccountNumber   string
	TransactionID   string
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal
	Amount          decimal.Decimal
	OperationType   OperationType
	Version         int64
	// ChainBroken is set when PreviousBalance does not match the last recorded NewBalance.
	ChainBroken bool
	RecordedAt  time.Time
}
