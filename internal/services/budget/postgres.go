package budget

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/amerfu/arbiter/internal/models"
)

// PostgresService stores budget accounts in Postgres. Deductions use a
// single atomic UPDATE so concurrent requests cannot lose spend.
type PostgresService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewPostgresService(db *gorm.DB, logger *zap.Logger) *PostgresService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresService{db: db, logger: logger}
}

func (s *PostgresService) CheckAllowance(ctx context.Context, userID string) (bool, error) {
	acct, err := s.account(ctx, userID)
	if err != nil {
		return false, err
	}
	if acct == nil || acct.MaxBudget <= 0 {
		return true, nil
	}
	return acct.CurrentSpend < acct.MaxBudget, nil
}

func (s *PostgresService) RemainingBudgetPercentage(ctx context.Context, userID string) (float64, error) {
	acct, err := s.account(ctx, userID)
	if err != nil {
		return 0, err
	}
	if acct == nil {
		return 1.0, nil
	}
	return acct.Remaining(), nil
}

func (s *PostgresService) DeductFunds(ctx context.Context, userID string, amount float64) error {
	result := s.db.WithContext(ctx).Model(&models.BudgetAccount{}).
		Where("user_id = ?", userID).
		UpdateColumn("current_spend", gorm.Expr("current_spend + ?", amount))
	if result.Error != nil {
		return fmt.Errorf("deduct funds for %s: %w", userID, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// First spend for this user: open an unlimited account. If a
	// concurrent request won the insert race, fall back to the
	// increment.
	acct := models.BudgetAccount{UserID: userID, CurrentSpend: amount}
	if err := s.db.WithContext(ctx).Create(&acct).Error; err != nil {
		result = s.db.WithContext(ctx).Model(&models.BudgetAccount{}).
			Where("user_id = ?", userID).
			UpdateColumn("current_spend", gorm.Expr("current_spend + ?", amount))
		if result.Error != nil {
			return fmt.Errorf("deduct funds for %s: %w", userID, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("deduct funds for %s: %w", userID, err)
		}
	}
	return nil
}

func (s *PostgresService) account(ctx context.Context, userID string) (*models.BudgetAccount, error) {
	var acct models.BudgetAccount
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load budget account for %s: %w", userID, err)
	}
	return &acct, nil
}
