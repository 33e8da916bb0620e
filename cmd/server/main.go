package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/amerfu/arbiter/internal/config"
	"github.com/amerfu/arbiter/internal/database"
	"github.com/amerfu/arbiter/internal/logger"
	"github.com/amerfu/arbiter/internal/router"
	"github.com/amerfu/arbiter/internal/services/audit"
	"github.com/amerfu/arbiter/internal/services/budget"
	"github.com/amerfu/arbiter/internal/services/foundry"
	"github.com/amerfu/arbiter/internal/services/health"
	"github.com/amerfu/arbiter/internal/services/providers"
	"github.com/amerfu/arbiter/internal/services/registry"
	"github.com/amerfu/arbiter/pkg/arbiter"

	_ "github.com/amerfu/arbiter/internal/handlers/swagger"
)

// @title arbiter - LLM Routing Gateway
// @version 1.0
// @description Tier-aware routing gateway for LLM completion traffic: classifies prompts, routes by cost and provider health, enforces budgets and fails open to a fallback model.

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// Load .env if present; real deployments use the environment.
	_ = godotenv.Load()

	cfg, err := config.Load("")
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

	// Postgres and redis are both optional: without them the gateway
	// still routes, with static budgets and log-only auditing.
	var db *gorm.DB
	if cfg.Database.URL != "" {
		db, err = database.Connect(cfg.Database)
		if err != nil {
			log.Fatal("database connection failed", zap.Error(err))
		}
		if err := database.Migrate(db); err != nil {
			log.Fatal("database migration failed", zap.Error(err))
		}
		if cfg.Database.SeedDemoData {
			if err := database.SeedDemoAccounts(db, log); err != nil {
				log.Warn("demo seed failed", zap.Error(err))
			}
		}
		log.Info("database connected")
	} else {
		log.Warn("no database configured, budgets are static only")
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = connectRedis(cfg.Redis)
		if err != nil {
			log.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisClient.Close()
		log.Info("redis connected")
	}

	reg := registry.New(log)
	seeds, err := cfg.SeedDefinitions()
	if err != nil {
		log.Fatal("invalid model seeds", zap.Error(err))
	}
	for _, def := range seeds {
		reg.Register(def)
	}
	log.Info("registry seeded", zap.Int("models", reg.Len()))

	if cfg.Foundry.Enabled {
		client := foundry.NewHTTPClient(foundry.HTTPConfig{
			BaseURL: cfg.Foundry.BaseURL,
			APIKey:  cfg.Foundry.APIKey,
			Timeout: cfg.Foundry.Timeout,
		})
		syncCtx, cancel := context.WithTimeout(context.Background(), cfg.Foundry.Timeout)
		if err := foundry.Sync(syncCtx, client, reg, cfg.Foundry.Domains, log); err != nil {
			// The gateway can run on the seeded catalog alone.
			log.Warn("foundry sync failed", zap.Error(err))
		}
		cancel()
	}

	tracker := health.NewTracker(log)
	invoker := providers.NewOpenAIInvoker(providers.OpenAIConfig{
		BaseURL: cfg.Upstream.BaseURL,
		APIKey:  cfg.Upstream.APIKey,
		OrgID:   cfg.Upstream.OrgID,
		Timeout: cfg.Upstream.Timeout,
	}, log)

	client, err := arbiter.New(arbiter.Config{
		FallbackModel:           cfg.Fallback.Model,
		FallbackInputCostPer1K:  cfg.Fallback.InputCostPer1K,
		FallbackOutputCostPer1K: cfg.Fallback.OutputCostPer1K,
	}, arbiter.Dependencies{
		Registry: reg,
		Tracker:  tracker,
		Invoker:  invoker,
		Budget:   buildBudgetService(cfg, db, redisClient, log),
		Audit:    buildAuditLogger(db, redisClient, log),
		Logger:   log,
	})
	if err != nil {
		log.Fatal("pipeline assembly failed", zap.Error(err))
	}

	handler := router.New(router.Dependencies{
		Config:    cfg,
		Logger:    log,
		Completer: client,
		Registry:  reg,
		Tracker:   tracker,
		DB:        db,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("gateway listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	log.Info("gateway stopped")
}

// buildBudgetService picks the strongest budget backend available:
// Postgres when connected, optionally fronted by the redis allowance
// cache, otherwise the in-memory static limits from config. Nil means
// budgets are disabled entirely.
func buildBudgetService(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, log *zap.Logger) budget.Service {
	if db != nil {
		var svc budget.Service = budget.NewPostgresService(db, log)
		if redisClient != nil {
			svc = budget.NewCachedService(svc, redisClient, cfg.Budget.CacheTTL, log)
		}
		return svc
	}
	if len(cfg.Budget.StaticLimits) > 0 {
		return budget.NewStaticService(cfg.Budget.StaticLimits)
	}
	log.Warn("no budget backend configured, admission control disabled")
	return nil
}

// buildAuditLogger prefers the async redis queue (drained by the usage
// worker), then synchronous Postgres writes, then the structured log.
func buildAuditLogger(db *gorm.DB, redisClient *redis.Client, log *zap.Logger) audit.Logger {
	if redisClient != nil {
		queue := audit.NewUsageQueue(audit.UsageQueueConfig{Client: redisClient, Logger: log})
		return audit.NewQueueLogger(queue)
	}
	if db != nil {
		return audit.NewStoreLogger(db)
	}
	return audit.NewZapLogger(log)
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
