// Package database owns the Postgres connection, schema migration and
// optional demo seeding.
package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/amerfu/arbiter/internal/config"
	"github.com/amerfu/arbiter/internal/models"
)

// Connect opens a pooled gorm connection and verifies it with a ping.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		Logger:      gormlogger.Default.LogMode(gormlogger.Warn),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql database: %w", err)
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the gateway's tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.BudgetAccount{},
		&models.UsageRecord{},
	); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// SeedDemoAccounts inserts a couple of budget accounts for local
// development. Existing accounts are left alone.
func SeedDemoAccounts(db *gorm.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	demo := []models.BudgetAccount{
		{UserID: "demo-unlimited", MaxBudget: 0},
		{UserID: "demo-capped", MaxBudget: 10},
		{UserID: "demo-broke", MaxBudget: 10, CurrentSpend: 9.95},
	}
	for _, acct := range demo {
		var count int64
		if err := db.Model(&models.BudgetAccount{}).
			Where("user_id = ?", acct.UserID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("check demo account %s: %w", acct.UserID, err)
		}
		if count > 0 {
			continue
		}
		if err := db.Create(&acct).Error; err != nil {
			return fmt.Errorf("seed demo account %s: %w", acct.UserID, err)
		}
		logger.Info("seeded demo budget account",
			zap.String("user", acct.UserID),
			zap.Float64("max_budget", acct.MaxBudget))
	}
	return nil
}
