//go:build integration

package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcrabbit "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRabbitMQContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcrabbit.Run(ctx,
		"rabbitmq:3-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	url, err := container.AmqpURL(ctx)
	require.NoError(t, err)
	return url
}

func TestIntegration_PublishAndConsumePerGroup(t *testing.T) {
	url := setupRabbitMQContainer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.Default()

	conn, err := Dial(ctx, url, logger)
	require.NoError(t, err)
	defer conn.Close()

	sub := NewSubscriber(conn, "test.events", 10, logger)
	var mu sync.Mutex
	received := map[string][]string{}
	record := func(group string) events.Handler {
		return func(_ context.Context, msg events.Message) error {
			mu.Lock()
			defer mu.Unlock()
			received[group] = append(received[group], msg.ID+"@"+msg.PartitionKey)
			return nil
		}
	}
	require.NoError(t, sub.Subscribe(ctx, "balance-updated", "audit", record("audit")))
	require.NoError(t, sub.Subscribe(ctx, "balance-updated", "notify", record("notify")))

	pub, err := NewPublisher(conn, "test.events", logger)
	require.NoError(t, err)
	defer pub.Close()

	for _, id := range []string{"e1", "e2"} {
		require.NoError(t, pub.Publish(ctx, "balance-updated", events.Message{ID: id, PartitionKey: "ACC1", Body: []byte(`{}`)}))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received["audit"]) == 2 && len(received["notify"]) == 2
	}, 10*time.Second, 50*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"e1@ACC1", "e2@ACC1"}, received["audit"])
	mu.Unlock()

	cancel()
	sub.Wait()
}

func TestIntegration_NackedMessageIsRedelivered(t *testing.T) {
	url := setupRabbitMQContainer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.Default()

	conn, err := Dial(ctx, url, logger)
	require.NoError(t, err)
	defer conn.Close()

	var mu sync.Mutex
	deliveries := 0
	redelivered := false
	sub := NewSubscriber(conn, "test.events", 1, logger)
	require.NoError(t, sub.Subscribe(ctx, "account-created", "g", func(_ context.Context, msg events.Message) error {
		mu.Lock()
		defer mu.Unlock()
		deliveries++
		if deliveries == 1 {
			return assert.AnError
		}
		redelivered = msg.Redelivered
		return nil
	}))

	pub, err := NewPublisher(conn, "test.events", logger)
	require.NoError(t, err)
	require.NoError(t, pub.Publish(ctx, "account-created", events.Message{ID: "e1", Body: []byte(`{}`)}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return deliveries == 2
	}, 10*time.Second, 50*time.Millisecond)
	mu.Lock()
	assert.True(t, redelivered)
	mu.Unlock()
}

func TestIntegration_DeletedQueueReportsLostConsumer(t *testing.T) {
	url := setupRabbitMQContainer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.Default()

	conn, err := Dial(ctx, url, logger)
	require.NoError(t, err)
	defer conn.Close()

	sub := NewSubscriber(conn, "test.events", 1, logger)
	require.NoError(t, sub.Subscribe(ctx, "account-created", "lost", func(context.Context, events.Message) error { return nil }))

	// the broker cancels consumers of a deleted queue
	admin, err := conn.Channel()
	require.NoError(t, err)
	defer admin.Close()
	_, err = admin.QueueDelete(QueueName("lost", "account-created"), false, false, false)
	require.NoError(t, err)

	select {
	case err := <-sub.Failed():
		assert.ErrorIs(t, err, ErrConsumerLost)
	case <-time.After(10 * time.Second):
		t.Fatal("lost consumer was not reported")
	}
	sub.Wait()
}

func TestIntegration_GracefulCloseIsNotAFailure(t *testing.T) {
	url := setupRabbitMQContainer(t)
	ctx, cancel := context.WithCancel(context.Background())
	logger := slog.Default()

	conn, err := Dial(ctx, url, logger)
	require.NoError(t, err)

	sub := NewSubscriber(conn, "test.events", 1, logger)
	require.NoError(t, sub.Subscribe(ctx, "account-created", "quiet", func(context.Context, events.Message) error { return nil }))

	cancel()
	sub.Wait()
	require.NoError(t, conn.Close())

	select {
	case err := <-sub.Failed():
		t.Fatalf("unexpected failure: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}
