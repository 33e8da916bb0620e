// Package health tracks runtime provider health with per-provider
// circuit breakers.
//
// Providers are failure domains: every model on a provider shares that
// provider's breaker. Providers the tracker has never seen are healthy;
// breakers are created lazily on the first recorded failure.
package health

import (
	"sync"

	"go.uber.org/zap"

	"github.com/amerfu/arbiter/internal/services/monitoring/metrics"
	"github.com/amerfu/arbiter/pkg/circuitbreaker"
)

// ProviderStatus is a monitoring view of one provider's breaker.
type ProviderStatus struct {
	Provider          string  `json:"provider"`
	Healthy           bool    `json:"healthy"`
	RecentFailures    int     `json:"recent_failures"`
	CooldownRemaining float64 `json:"cooldown_remaining_seconds,omitempty"`
}

// Tracker owns the breakers for all providers. All methods are safe for
// concurrent use and atomic per provider.
type Tracker struct {
	mu       sync.RWMutex
	breakers map[string]*circuitbreaker.Breaker
	cfg      circuitbreaker.Config
	logger   *zap.Logger
}

// Option tweaks tracker construction.
type Option func(*Tracker)

// WithBreakerConfig overrides the breaker timing, mainly for tests that
// inject a clock.
func WithBreakerConfig(cfg circuitbreaker.Config) Option {
	return func(t *Tracker) {
		t.cfg = cfg
	}
}

// NewTracker returns a tracker that considers every provider healthy.
func NewTracker(logger *zap.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		breakers: make(map[string]*circuitbreaker.Breaker),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordFailure notes a failure against the provider, creating its
// breaker if needed.
func (t *Tracker) RecordFailure(provider string) {
	breaker := t.getOrCreate(provider)
	if breaker.RecordFailure() {
		t.logger.Warn("provider circuit opened",
			zap.String("provider", provider),
			zap.Duration("cooldown", t.cfg.Cooldown))
		metrics.SetBreakerOpen(provider, true)
	}
}

// RecordSuccess clears the provider's failure history and closes its
// breaker. Unknown providers are left untouched.
func (t *Tracker) RecordSuccess(provider string) {
	t.mu.RLock()
	breaker, ok := t.breakers[provider]
	t.mu.RUnlock()
	if !ok {
		return
	}
	breaker.RecordSuccess()
	metrics.SetBreakerOpen(provider, false)
}

// IsHealthy reports whether the provider may receive traffic. Unknown
// providers are healthy.
func (t *Tracker) IsHealthy(provider string) bool {
	t.mu.RLock()
	breaker, ok := t.breakers[provider]
	t.mu.RUnlock()
	if !ok {
		return true
	}
	healthy := breaker.Allow()
	if healthy {
		metrics.SetBreakerOpen(provider, false)
	}
	return healthy
}

// Snapshot returns the status of every provider the tracker has seen,
// for the health endpoint and the CLI.
func (t *Tracker) Snapshot() []ProviderStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	statuses := make([]ProviderStatus, 0, len(t.breakers))
	for provider, breaker := range t.breakers {
		st := breaker.Status()
		statuses = append(statuses, ProviderStatus{
			Provider:          provider,
			Healthy:           !st.Open,
			RecentFailures:    st.RecentFailures,
			CooldownRemaining: st.CooldownRemaining.Seconds(),
		})
	}
	return statuses
}

func (t *Tracker) getOrCreate(provider string) *circuitbreaker.Breaker {
	t.mu.RLock()
	breaker, ok := t.breakers[provider]
	t.mu.RUnlock()
	if ok {
		return breaker
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if breaker, ok = t.breakers[provider]; ok {
		return breaker
	}
	breaker = circuitbreaker.New(t.cfg)
	t.breakers[provider] = breaker
	return breaker
}
