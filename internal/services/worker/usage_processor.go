// Package worker drains the redis usage queue into Postgres. Running
// it out of process keeps the request path free of database writes.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/amerfu/arbiter/internal/models"
	"github.com/amerfu/arbiter/internal/services/audit"
)

// UsageProcessor periodically dequeues usage records and persists them
// as usage rows. Records that fail to persist go back through the
// queue's retry path.
type UsageProcessor struct {
	db       *gorm.DB
	queue    *audit.UsageQueue
	interval time.Duration
	logger   *zap.Logger
	stopCh   chan struct{}
}

// UsageProcessorConfig configures a processor. A zero Interval means
// 30 seconds.
type UsageProcessorConfig struct {
	DB       *gorm.DB
	Queue    *audit.UsageQueue
	Interval time.Duration
	Logger   *zap.Logger
}

func NewUsageProcessor(cfg UsageProcessorConfig) *UsageProcessor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UsageProcessor{
		db:       cfg.DB,
		queue:    cfg.Queue,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the drain and retry loops. It returns immediately.
func (p *UsageProcessor) Start(ctx context.Context) {
	p.logger.Info("starting usage processor", zap.Duration("interval", p.interval))
	go p.drainLoop(ctx)
	go p.retryLoop(ctx)
}

// Stop halts both loops. Safe to call once.
func (p *UsageProcessor) Stop() {
	p.logger.Info("stopping usage processor")
	close(p.stopCh)
}

func (p *UsageProcessor) drainLoop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error("usage batch failed", zap.Error(err))
			}
		}
	}
}

func (p *UsageProcessor) retryLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.queue.PromoteRetries(ctx); err != nil {
				p.logger.Error("retry promotion failed", zap.Error(err))
			}
		}
	}
}

// ProcessBatch drains one batch from the queue into the store.
// Exported so the worker binary can flush on shutdown and tests can
// drive the processor without the ticker.
func (p *UsageProcessor) ProcessBatch(ctx context.Context) error {
	records, err := p.queue.DequeueBatch(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	persisted := 0
	for _, record := range records {
		row := models.UsageRecord{
			UserID:       record.UserID,
			ModelID:      record.ModelID,
			InputTokens:  record.InputTokens,
			OutputTokens: record.OutputTokens,
			TotalTokens:  record.InputTokens + record.OutputTokens,
			Cost:         record.Cost,
			RecordedAt:   record.Timestamp,
		}
		if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
			p.logger.Warn("usage record persist failed, requeueing",
				zap.String("record_id", record.ID),
				zap.Error(err))
			if qerr := p.queue.RequeueFailed(ctx, record, err); qerr != nil {
				p.logger.Error("requeue failed, record lost",
					zap.String("record_id", record.ID),
					zap.Error(qerr))
			}
			continue
		}
		persisted++
	}

	p.logger.Debug("usage batch processed",
		zap.Int("dequeued", len(records)),
		zap.Int("persisted", persisted))
	return nil
}
