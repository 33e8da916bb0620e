// Package audit records completed transactions for billing and
// analysis. The executor logs best-effort: an audit failure never
// fails the request that generated it.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/amerfu/arbiter/internal/models"
)

// Transaction is one completed, costed request.
type Transaction struct {
	UserID       string    `json:"user_id"`
	ModelID      string    `json:"model_id"`
	Provider     string    `json:"provider,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	Timestamp    time.Time `json:"timestamp"`
}

// Logger accepts transactions. Implementations must be safe for
// concurrent use.
type Logger interface {
	LogTransaction(ctx context.Context, tx Transaction) error
}

// ZapLogger writes transactions to the structured log and nowhere
// else. It is the default when no store or queue is configured.
type ZapLogger struct {
	logger *zap.Logger
}

func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

func (l *ZapLogger) LogTransaction(_ context.Context, tx Transaction) error {
	l.logger.Info("transaction",
		zap.String("user", tx.UserID),
		zap.String("model", tx.ModelID),
		zap.String("provider", tx.Provider),
		zap.String("request_id", tx.RequestID),
		zap.Int("input_tokens", tx.InputTokens),
		zap.Int("output_tokens", tx.OutputTokens),
		zap.Float64("cost", tx.Cost))
	return nil
}

// StoreLogger persists transactions synchronously as usage rows.
// Deployments that care about request latency should prefer
// QueueLogger and let the worker do the writing.
type StoreLogger struct {
	db *gorm.DB
}

func NewStoreLogger(db *gorm.DB) *StoreLogger {
	return &StoreLogger{db: db}
}

func (l *StoreLogger) LogTransaction(ctx context.Context, tx Transaction) error {
	recordedAt := tx.Timestamp
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	row := models.UsageRecord{
		UserID:       tx.UserID,
		ModelID:      tx.ModelID,
		InputTokens:  tx.InputTokens,
		OutputTokens: tx.OutputTokens,
		TotalTokens:  tx.InputTokens + tx.OutputTokens,
		Cost:         tx.Cost,
		RecordedAt:   recordedAt,
	}
	return l.db.WithContext(ctx).Create(&row).Error
}
