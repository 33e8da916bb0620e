package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestQueue(t *testing.T, maxRetries int) (*UsageQueue, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewUsageQueue(UsageQueueConfig{
		Client:     client,
		Logger:     zap.NewNop(),
		BatchSize:  10,
		MaxRetries: maxRetries,
	}), mr
}

func TestUsageQueueRoundTrip(t *testing.T) {
	queue, _ := newTestQueue(t, 3)
	ctx := context.Background()

	require.NoError(t, queue.Enqueue(ctx, QueuedRecord{
		UserID:       "user-123",
		ModelID:      "azure/gpt-4o",
		Provider:     "azure",
		InputTokens:  100,
		OutputTokens: 200,
		Cost:         0.006,
	}))

	records, err := queue.DequeueBatch(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.NotEmpty(t, got.ID, "an id is minted on enqueue")
	assert.False(t, got.Timestamp.IsZero())
	assert.Equal(t, "user-123", got.UserID)
	assert.Equal(t, "azure/gpt-4o", got.ModelID)
	assert.Equal(t, 0.006, got.Cost)

	// Queue is now empty.
	records, err = queue.DequeueBatch(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestUsageQueueFIFOOrder(t *testing.T) {
	queue, _ := newTestQueue(t, 3)
	ctx := context.Background()

	for _, user := range []string{"first", "second", "third"} {
		require.NoError(t, queue.Enqueue(ctx, QueuedRecord{UserID: user, ModelID: "m"}))
	}

	records, err := queue.DequeueBatch(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "first", records[0].UserID)
	assert.Equal(t, "second", records[1].UserID)
	assert.Equal(t, "third", records[2].UserID)
}

func TestUsageQueueRetryThenPromote(t *testing.T) {
	queue, mr := newTestQueue(t, 3)
	ctx := context.Background()

	record := QueuedRecord{ID: "rec-1", UserID: "u", ModelID: "m"}
	require.NoError(t, queue.RequeueFailed(ctx, record, errors.New("db down")))

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Pending)
	assert.Equal(t, int64(1), stats.Retrying)

	// Not due yet: first retry backs off 10s.
	require.NoError(t, queue.PromoteRetries(ctx))
	records, err := queue.DequeueBatch(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	// Rewind the scheduled retry instant to make the record due.
	members, err := mr.ZMembers(queue.retryQueue())
	require.NoError(t, err)
	require.Len(t, members, 1)
	mr.ZAdd(queue.retryQueue(), float64(time.Now().Add(-time.Second).Unix()), members[0])
	require.NoError(t, queue.PromoteRetries(ctx))

	records, err = queue.DequeueBatch(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "rec-1", records[0].ID)
	assert.Equal(t, 1, records[0].Retries)
}

func TestUsageQueueDeadLetterAfterMaxRetries(t *testing.T) {
	queue, _ := newTestQueue(t, 2)
	ctx := context.Background()

	record := QueuedRecord{ID: "rec-1", UserID: "u", ModelID: "m", Retries: 1}
	require.NoError(t, queue.RequeueFailed(ctx, record, errors.New("still down")))

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Retrying)
	assert.Equal(t, int64(1), stats.DeadLetter)
}

func TestQueueLogger(t *testing.T) {
	queue, _ := newTestQueue(t, 3)
	ctx := context.Background()

	logger := NewQueueLogger(queue)
	require.NoError(t, logger.LogTransaction(ctx, Transaction{
		UserID:       "user-1",
		ModelID:      "anthropic/claude",
		InputTokens:  10,
		OutputTokens: 20,
		Cost:         0.5,
	}))

	records, err := queue.DequeueBatch(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "anthropic/claude", records[0].ModelID)
	assert.Equal(t, 0.5, records[0].Cost)
}
