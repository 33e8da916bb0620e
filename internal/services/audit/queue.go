package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultQueueName  = "arbiter:usage"
	defaultBatchSize  = 100
	defaultMaxRetries = 3
)

// QueuedRecord is the JSON payload that travels through redis from the
// gateway to the usage worker.
type QueuedRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ModelID      string    `json:"model_id"`
	Provider     string    `json:"provider,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	Timestamp    time.Time `json:"timestamp"`
	Retries      int       `json:"retries"`
}

// QueueStats describes queue depths for the admin surface.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Retrying   int64 `json:"retrying"`
	DeadLetter int64 `json:"dead_letter"`
}

// UsageQueue moves usage records through redis: LPUSH on the request
// path, RPOP batches in the worker. Records that fail to persist go to
// a scored retry set with quadratic backoff, then to a dead-letter
// list once retries are spent.
type UsageQueue struct {
	client     *redis.Client
	logger     *zap.Logger
	queueName  string
	batchSize  int
	maxRetries int
}

// UsageQueueConfig configures a UsageQueue. Zero fields take the
// package defaults.
type UsageQueueConfig struct {
	Client     *redis.Client
	Logger     *zap.Logger
	QueueName  string
	BatchSize  int
	MaxRetries int
}

func NewUsageQueue(cfg UsageQueueConfig) *UsageQueue {
	if cfg.QueueName == "" {
		cfg.QueueName = defaultQueueName
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UsageQueue{
		client:     cfg.Client,
		logger:     logger,
		queueName:  cfg.QueueName,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
	}
}

// Enqueue pushes one record onto the main queue.
func (q *UsageQueue) Enqueue(ctx context.Context, record QueuedRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal usage record: %w", err)
	}
	if err := q.client.LPush(ctx, q.queueName, data).Err(); err != nil {
		return fmt.Errorf("enqueue usage record: %w", err)
	}

	q.logger.Debug("usage record enqueued",
		zap.String("record_id", record.ID),
		zap.String("user", record.UserID),
		zap.Float64("cost", record.Cost))
	return nil
}

// DequeueBatch pops up to the configured batch size in FIFO order.
// An empty queue returns an empty slice, not an error.
func (q *UsageQueue) DequeueBatch(ctx context.Context) ([]QueuedRecord, error) {
	pipe := q.client.Pipeline()
	cmds := make([]*redis.StringCmd, 0, q.batchSize)
	for i := 0; i < q.batchSize; i++ {
		cmds = append(cmds, pipe.RPop(ctx, q.queueName))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("dequeue usage records: %w", err)
	}

	records := make([]QueuedRecord, 0, q.batchSize)
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			q.logger.Error("failed to pop usage record", zap.Error(err))
			continue
		}
		var record QueuedRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			q.logger.Error("dropping malformed usage record", zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// RequeueFailed schedules a record for a delayed retry, or moves it to
// the dead-letter list once its retries are spent.
func (q *UsageQueue) RequeueFailed(ctx context.Context, record QueuedRecord, cause error) error {
	record.Retries++
	if record.Retries >= q.maxRetries {
		return q.deadLetter(ctx, record, cause)
	}

	delay := time.Duration(record.Retries*record.Retries) * 10 * time.Second
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal retry record: %w", err)
	}
	err = q.client.ZAdd(ctx, q.retryQueue(), redis.Z{
		Score:  float64(time.Now().Add(delay).Unix()),
		Member: data,
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue retry record: %w", err)
	}

	q.logger.Warn("usage record scheduled for retry",
		zap.String("record_id", record.ID),
		zap.Int("retries", record.Retries),
		zap.Duration("delay", delay),
		zap.NamedError("cause", cause))
	return nil
}

// PromoteRetries moves due retry records back onto the main queue.
func (q *UsageQueue) PromoteRetries(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, q.retryQueue(), &redis.ZRangeBy{
		Min:   "0",
		Max:   fmt.Sprintf("%d", time.Now().Unix()),
		Count: int64(q.batchSize),
	}).Result()
	if err != nil {
		return fmt.Errorf("read retry queue: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	pipe := q.client.Pipeline()
	for _, data := range due {
		pipe.LPush(ctx, q.queueName, data)
		pipe.ZRem(ctx, q.retryQueue(), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("promote retry records: %w", err)
	}

	q.logger.Info("promoted retry records", zap.Int("count", len(due)))
	return nil
}

// Stats reports queue depths.
func (q *UsageQueue) Stats(ctx context.Context) (QueueStats, error) {
	pending, err := q.client.LLen(ctx, q.queueName).Result()
	if err != nil {
		return QueueStats{}, fmt.Errorf("read queue depth: %w", err)
	}
	retrying, err := q.client.ZCard(ctx, q.retryQueue()).Result()
	if err != nil {
		return QueueStats{}, fmt.Errorf("read retry depth: %w", err)
	}
	dead, err := q.client.LLen(ctx, q.deadLetterQueue()).Result()
	if err != nil {
		return QueueStats{}, fmt.Errorf("read dead-letter depth: %w", err)
	}
	return QueueStats{Pending: pending, Retrying: retrying, DeadLetter: dead}, nil
}

func (q *UsageQueue) deadLetter(ctx context.Context, record QueuedRecord, cause error) error {
	payload := map[string]interface{}{
		"record":    record,
		"error":     cause.Error(),
		"failed_at": time.Now(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal dead-letter record: %w", err)
	}
	if err := q.client.LPush(ctx, q.deadLetterQueue(), data).Err(); err != nil {
		return fmt.Errorf("enqueue dead-letter record: %w", err)
	}

	q.logger.Error("usage record moved to dead letter",
		zap.String("record_id", record.ID),
		zap.Int("retries", record.Retries),
		zap.NamedError("cause", cause))
	return nil
}

func (q *UsageQueue) retryQueue() string {
	return q.queueName + ":retry"
}

func (q *UsageQueue) deadLetterQueue() string {
	return q.queueName + ":dead_letter"
}

// QueueLogger satisfies Logger by enqueueing; the usage worker drains
// the queue into the store off the request path.
type QueueLogger struct {
	queue *UsageQueue
}

func NewQueueLogger(queue *UsageQueue) *QueueLogger {
	return &QueueLogger{queue: queue}
}

func (l *QueueLogger) LogTransaction(ctx context.Context, tx Transaction) error {
	return l.queue.Enqueue(ctx, QueuedRecord{
		UserID:       tx.UserID,
		ModelID:      tx.ModelID,
		Provider:     tx.Provider,
		RequestID:    tx.RequestID,
		InputTokens:  tx.InputTokens,
		OutputTokens: tx.OutputTokens,
		Cost:         tx.Cost,
		Timestamp:    tx.Timestamp,
	})
}
