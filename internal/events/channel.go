// Package events is the at-least-once publish/subscribe channel the services talk over.
package events

import (
	"context"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
)

// Message is one delivery on a topic. ID is the envelope's eventId and is stable across redeliveries.
type Message struct {
	ID           string
	Topic        string
	PartitionKey string
	Body         []byte
	Redelivered  bool
	PublishedAt  time.Time
}

// Handler processes a message. Returning nil acknowledges it; any error asks for redelivery.
// Handlers must be idempotent.
type Handler func(ctx context.Context, msg Message) error

// Publisher delivers a message to a topic and returns once the broker has acknowledged it.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Close() error
}

// Subscriber registers a handler for a topic. Subscribers sharing a group compete for messages;
// each group receives every message. Delivery runs until ctx is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, topic, group string, handler Handler) error
}

// DeadLetterSink keeps messages whose handler retries are exhausted.
type DeadLetterSink interface {
	SaveDeadLetter(ctx context.Context, letter domain.DeadLetter) error
}

// MessageFromEvent builds a message from an outbox-style envelope body.
func MessageFromEvent(topic string, e domain.Event, body []byte) Message {
	return Message{
		ID:           e.EventID,
		Topic:        topic,
		PartitionKey: e.PartitionKey,
		Body:         body,
		PublishedAt:  e.OccurredAt,
	}
}
