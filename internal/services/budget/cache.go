package budget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultCacheTTL = 30 * time.Second

// cachedStatus is the JSON blob stored per user in redis.
type cachedStatus struct {
	Allowed   bool      `json:"allowed"`
	Remaining float64   `json:"remaining"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CachedService fronts another Service with a redis cache so the hot
// path does not hit Postgres on every request. Cache problems degrade
// to the inner service; they never fail a request that the inner
// service would have allowed.
type CachedService struct {
	inner  Service
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedService(inner Service, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedService {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedService{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (s *CachedService) CheckAllowance(ctx context.Context, userID string) (bool, error) {
	if status := s.cached(ctx, userID); status != nil {
		return status.Allowed, nil
	}
	allowed, remaining, err := s.load(ctx, userID)
	if err != nil {
		return false, err
	}
	s.store(ctx, userID, allowed, remaining)
	return allowed, nil
}

func (s *CachedService) RemainingBudgetPercentage(ctx context.Context, userID string) (float64, error) {
	if status := s.cached(ctx, userID); status != nil {
		return status.Remaining, nil
	}
	allowed, remaining, err := s.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.store(ctx, userID, allowed, remaining)
	return remaining, nil
}

// DeductFunds writes through to the inner service and drops the cached
// status so the next read sees the new spend.
func (s *CachedService) DeductFunds(ctx context.Context, userID string, amount float64) error {
	if err := s.inner.DeductFunds(ctx, userID, amount); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		s.logger.Warn("failed to invalidate budget cache",
			zap.String("user_id", userID),
			zap.Error(err))
	}
	return nil
}

func (s *CachedService) cached(ctx context.Context, userID string) *cachedStatus {
	data, err := s.client.Get(ctx, s.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		s.logger.Debug("budget cache read failed, falling through",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil
	}
	var status cachedStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		s.logger.Warn("corrupt budget cache entry",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil
	}
	return &status
}

func (s *CachedService) load(ctx context.Context, userID string) (allowed bool, remaining float64, err error) {
	allowed, err = s.inner.CheckAllowance(ctx, userID)
	if err != nil {
		return false, 0, err
	}
	remaining, err = s.inner.RemainingBudgetPercentage(ctx, userID)
	if err != nil {
		return false, 0, err
	}
	return allowed, remaining, nil
}

func (s *CachedService) store(ctx context.Context, userID string, allowed bool, remaining float64) {
	data, err := json.Marshal(cachedStatus{
		Allowed:   allowed,
		Remaining: remaining,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return
	}
	if err := s.client.SetEx(ctx, s.key(userID), data, s.ttl).Err(); err != nil {
		s.logger.Debug("budget cache write failed",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

func (s *CachedService) key(userID string) string {
	return fmt.Sprintf("budget:user:%s", userID)
}
