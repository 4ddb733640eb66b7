package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType identifies a payload kind. Each type is published on the topic of the same name.
type EventType string

const (
	AccountCreated       EventType = "account-created"
	AccountStatusUpdated EventType = "account-status-updated"
	BalanceUpdated       EventType = "balance-updated"
	TransactionCreated   EventType = "transaction-created"
	TransactionDebited   EventType = "transaction-debited"
	TransactionCompleted EventType = "transaction-completed"
	TransactionFailed    EventType = "transaction-failed"
)

// SchemaV1 is the current schema version of every payload.
const SchemaV1 = 1

// Event is the envelope carried over the event channel.
type Event struct {
	EventID       string          `json:"eventId"`
	EventType     EventType       `json:"eventType"`
	SchemaVersion int             `json:"schemaVersion"`
	CausationID   string          `json:"causationId,omitempty"`
	PartitionKey  string          `json:"partitionKey"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Payload       json.RawMessage `json:"payload"`
}

type AccountCreatedV1 struct {
	AccountID     string          `json:"accountId"`
	AccountNumber string          `json:"accountNumber"`
	CustomerID    string          `json:"customerId"`
	AccountType   AccountType     `json:"accountType"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	Status        AccountStatus   `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type AccountStatusUpdatedV1 struct {
	AccountID      string        `json:"accountId"`
	AccountNumber  string        `json:"accountNumber"`
	PreviousStatus AccountStatus `json:"previousStatus"`
	Status         AccountStatus `json:"status"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

type BalanceUpdatedV1 struct {
	AccountID       string          `json:"accountId"`
	AccountNumber   string          `json:"accountNumber"`
	TransactionID   string          `json:"transactionId,omitempty"`
	PreviousBalance decimal.Decimal `json:"previousBalance"`
	NewBalance      decimal.Decimal `json:"newBalance"`
	Amount          decimal.Decimal `json:"amount"`
	OperationType   OperationType   `json:"operationType"`
	Version         int64           `json:"version"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type TransactionCreatedV1 struct {
	TransactionID     string            `json:"transactionId"`
	FromAccountNumber string            `json:"fromAccountNumber"`
	ToAccountNumber   string            `json:"toAccountNumber"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	TransactionType   TransactionType   `json:"transactionType"`
	Status            TransactionStatus `json:"status"`
	TransactionDate   time.Time         `json:"transactionDate"`
}

type TransactionDebitedV1 struct {
	TransactionID     string            `json:"transactionId"`
	FromAccountNumber string            `json:"fromAccountNumber"`
	ToAccountNumber   string            `json:"toAccountNumber"`
	Amount            decimal.Decimal   `json:"amount"`
	Status            TransactionStatus `json:"status"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// TransactionOutcomeV1 is shared by transaction-completed and transaction-failed.
type TransactionOutcomeV1 struct {
	TransactionID     string            `json:"transactionId"`
	FromAccountNumber string            `json:"fromAccountNumber"`
	ToAccountNumber   string            `json:"toAccountNumber"`
	Amount            decimal.Decimal   `json:"amount"`
	Status            TransactionStatus `json:"status"`
	Reason            string            `json:"reason,omitempty"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// NewEvent wraps a typed payload in a fresh envelope.
func NewEvent(eventType EventType, partitionKey, causationID string, payload any, at time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		SchemaVersion: SchemaV1,
		CausationID:   causationID,
		PartitionKey:  partitionKey,
		OccurredAt:    at.UTC(),
		Payload:       raw,
	}, nil
}

// Decode returns the typed payload for e. Unknown types or schema versions are validation errors.
func (e Event) Decode() (any, error) {
	if e.SchemaVersion != SchemaV1 {
		return nil, fmt.Errorf("%w: unsupported schema version %d for %s", apperrors.ErrValidation, e.SchemaVersion, e.EventType)
	}

	var target any
	switch e.EventType {
	case AccountCreated:
		target = &AccountCreatedV1{}
	case AccountStatusUpdated:
		target = &AccountStatusUpdatedV1{}
	case BalanceUpdated:
		target = &BalanceUpdatedV1{}
	case TransactionCreated:
		target = &TransactionCreatedV1{}
	case TransactionDebited:
		target = &TransactionDebitedV1{}
	case TransactionCompleted, TransactionFailed:
		target = &TransactionOutcomeV1{}
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", apperrors.ErrValidation, e.EventType)
	}

	if err := json.Unmarshal(e.Payload, target); err != nil {
		return nil, fmt.Errorf("%w: decode %s payload: %v", apperrors.ErrValidation, e.EventType, err)
	}
	return target, nil
}

// TopicFor maps an event type to the topic it is published on.
func TopicFor(eventType EventType) string {
	return string(eventType)
}

// ParseEvent unmarshals an envelope from its wire form.
func ParseEvent(body []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return Event{}, fmt.Errorf("%w: decode envelope: %v", apperrors.ErrValidation, err)
	}
	if e.EventID == "" {
		return Event{}, fmt.Errorf("%w: envelope without eventId", apperrors.ErrValidation)
	}
	return e, nil
}
