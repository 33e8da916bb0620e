package models

// BudgetAccount is the persistent spending record for one user. A zero
// or negative MaxBudget means the user is not budget-limited.
type BudgetAccount struct {
	BaseModel
	UserID       string  `gorm:"uniqueIndex;not null" json:"user_id"`
	MaxBudget    float64 `gorm:"default:0" json:"max_budget"`
	CurrentSpend float64 `gorm:"default:0" json:"current_spend"`
}

func (BudgetAccount) TableName() string {
	return "budget_accounts"
}

// Remaining returns the unspent fraction of the budget, clamped to
// [0, 1]. Unlimited accounts always report a full budget.
func (b BudgetAccount) Remaining() float64 {
	if b.MaxBudget <= 0 {
		return 1.0
	}
	remaining := (b.MaxBudget - b.CurrentSpend) / b.MaxBudget
	if remaining < 0 {
		return 0
	}
	if remaining > 1 {
		return 1
	}
	return remaining
}
