package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	"github.com/SscSPs/money_transfer_saga/internal/events"
	"github.com/SscSPs/money_transfer_saga/internal/outbox"
	"github.com/SscSPs/money_transfer_saga/internal/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu        sync.Mutex
	failIDs   map[string]int // remaining failures per event id
	published []string
}

func (p *fakePublisher) Publish(_ context.Context, _ string, msg events.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failIDs[msg.ID] > 0 {
		p.failIDs[msg.ID]--
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, msg.ID)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published...)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func seed(t *testing.T, store *memory.Store, at time.Time, recs ...domain.OutboxRecord) {
	t.Helper()
	for _, rec := range recs {
		rec.NextAttemptAt = at
		rec.CreatedAt = at
		rec.Topic = "balance-updated"
		require.NoError(t, store.SaveOutboxRecord(context.Background(), rec))
	}
}

func newRelay(store *memory.Store, pub events.Publisher, clk *clock) *outbox.Relay {
	return outbox.NewRelay(store, pub,
		outbox.WithClock(clk.Now),
		outbox.WithBatchSize(10),
		outbox.WithPublishTimeout(time.Second),
		outbox.WithRetryBackoff(time.Second, 8*time.Second))
}

func TestRelay_PublishesAndMarks(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := memory.NewStore()
	pub := &fakePublisher{}
	seed(t, store, clk.Now(), domain.OutboxRecord{EventID: "e1", PartitionKey: "A"}, domain.OutboxRecord{EventID: "e2", PartitionKey: "B"})

	n, err := newRelay(store, pub, clk).RelayOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"e1", "e2"}, pub.ids())
	for _, rec := range store.OutboxRecords() {
		assert.True(t, rec.Published)
		assert.NotNil(t, rec.PublishedAt)
	}
}

func TestRelay_RetriesUntilAcknowledged(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := memory.NewStore()
	pub := &fakePublisher{failIDs: map[string]int{"e1": 3}}
	seed(t, store, clk.Now(), domain.OutboxRecord{EventID: "e1", PartitionKey: "A"})
	relay := newRelay(store, pub, clk)

	delays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, want := range delays {
		n, err := relay.RelayOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		rec := store.OutboxRecords()[0]
		assert.False(t, rec.Published)
		assert.Equal(t, i+1, rec.Attempts)
		assert.Equal(t, "broker unavailable", rec.LastError)
		assert.Equal(t, clk.Now().Add(want), rec.NextAttemptAt)

		// not due yet
		n, err = relay.RelayOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		clk.Advance(want)
	}

	n, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, store.OutboxRecords()[0].Published)
	assert.Equal(t, []string{"e1"}, pub.ids())
}

func TestRelay_FailureHoldsBackSamePartitionKey(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := memory.NewStore()
	pub := &fakePublisher{failIDs: map[string]int{"a1": 1}}
	seed(t, store, clk.Now(),
		domain.OutboxRecord{EventID: "a1", PartitionKey: "A"},
		domain.OutboxRecord{EventID: "b1", PartitionKey: "B"},
		domain.OutboxRecord{EventID: "a2", PartitionKey: "A"},
	)
	relay := newRelay(store, pub, clk)

	n, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"b1"}, pub.ids())

	// a2 stays behind a1 even once its own lease lapses
	clk.Advance(500 * time.Millisecond)
	n, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// a2 was released rather than left leased, so it follows a1 as soon as a1 is due
	clk.Advance(time.Second)
	n, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"b1", "a1", "a2"}, pub.ids())
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := memory.NewStore()
	pub := &fakePublisher{}
	seed(t, store, time.Now().Add(-time.Second), domain.OutboxRecord{EventID: "e1", PartitionKey: "A"})
	relay := outbox.NewRelay(store, pub, outbox.WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(pub.ids()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
