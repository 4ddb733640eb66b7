package events_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/SscSPs/money_transfer_saga/internal/events"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyPublisher struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (p *flakyPublisher) Publish(context.Context, string, events.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection reset")
	}
	return nil
}

func (p *flakyPublisher) Close() error { return nil }

func TestResilientPublisher_RetriesTransportErrors(t *testing.T) {
	inner := &flakyPublisher{failures: 2}
	pub := events.NewResilientPublisher(inner, events.BreakerSettings{ConsecutiveFailures: 10}, 3, time.Millisecond, nil)

	require.NoError(t, pub.Publish(context.Background(), "t", events.Message{ID: "e1"}))
	assert.Equal(t, 3, inner.calls)
}

func TestResilientPublisher_OpensBreaker(t *testing.T) {
	inner := &flakyPublisher{failures: 100}
	pub := events.NewResilientPublisher(inner, events.BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute}, 0, time.Millisecond, nil)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, pub.Publish(context.Background(), "t", events.Message{ID: "e"}), apperrors.ErrPublishUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, pub.State())

	err := pub.Publish(context.Background(), "t", events.Message{ID: "e"})
	assert.ErrorIs(t, err, apperrors.ErrPublishUnavailable)
	assert.Equal(t, 2, inner.calls, "open breaker does not reach the broker")
}
