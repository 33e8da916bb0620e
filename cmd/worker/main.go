// The usage worker drains the redis usage queue into Postgres so the
// request path never blocks on database writes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/amerfu/arbiter/internal/config"
	"github.com/amerfu/arbiter/internal/database"
	"github.com/amerfu/arbiter/internal/logger"
	"github.com/amerfu/arbiter/internal/services/audit"
	"github.com/amerfu/arbiter/internal/services/worker"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config directory")
		batchSize  = flag.Int("batch-size", 100, "records drained per batch")
		interval   = flag.Duration("interval", 30*time.Second, "drain interval")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Database.URL == "" {
		log.Fatal("usage worker requires a database url")
	}
	if cfg.Redis.URL == "" {
		log.Fatal("usage worker requires a redis url")
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("database migration failed", zap.Error(err))
	}

	redisClient, err := connectRedis(cfg.Redis)
	if err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	defer redisClient.Close()

	queue := audit.NewUsageQueue(audit.UsageQueueConfig{
		Client:    redisClient,
		Logger:    log,
		BatchSize: *batchSize,
	})
	processor := worker.NewUsageProcessor(worker.UsageProcessorConfig{
		DB:       db,
		Queue:    queue,
		Interval: *interval,
		Logger:   log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	processor.Start(ctx)
	log.Info("usage worker started",
		zap.Int("batch_size", *batchSize),
		zap.Duration("interval", *interval))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	processor.Stop()
	cancel()

	// One last drain so records enqueued during shutdown are not left
	// waiting for the next worker start.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer flushCancel()
	if err := processor.ProcessBatch(flushCtx); err != nil {
		log.Warn("final drain failed", zap.Error(err))
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("usage worker stopped")
}

func connectRedis(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
