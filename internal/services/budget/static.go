package budget

import (
	"context"
	"sync"
)

type staticAccount struct {
	max   float64
	spent float64
}

// StaticService keeps budgets in memory. It backs deployments without
// a database and the CLI's dry-run commands.
type StaticService struct {
	mu       sync.RWMutex
	accounts map[string]*staticAccount
}

// NewStaticService builds a service from userID to budget limit. A
// non-positive limit means unlimited.
func NewStaticService(limits map[string]float64) *StaticService {
	accounts := make(map[string]*staticAccount, len(limits))
	for userID, max := range limits {
		accounts[userID] = &staticAccount{max: max}
	}
	return &StaticService{accounts: accounts}
}

func (s *StaticService) CheckAllowance(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[userID]
	if !ok || acct.max <= 0 {
		return true, nil
	}
	return acct.spent < acct.max, nil
}

func (s *StaticService) RemainingBudgetPercentage(_ context.Context, userID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[userID]
	if !ok || acct.max <= 0 {
		return 1.0, nil
	}
	remaining := (acct.max - acct.spent) / acct.max
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

func (s *StaticService) DeductFunds(_ context.Context, userID string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		acct = &staticAccount{}
		s.accounts[userID] = acct
	}
	acct.spent += amount
	return nil
}

// SetLimit sets or replaces a user's budget limit without touching
// their recorded spend.
func (s *StaticService) SetLimit(userID string, max float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct, ok := s.accounts[userID]; ok {
		acct.max = max
		return
	}
	s.accounts[userID] = &staticAccount{max: max}
}
