// Package circuitbreaker implements a rolling-window circuit breaker.
//
// Failures are counted inside a sliding time window. When the count
// exceeds the threshold the breaker opens for a fixed cooldown, after
// which it closes on its own. There is no half-open probe state; a
// recorded success closes the breaker immediately and wipes its
// failure history.
package circuitbreaker

import (
	"sync"
	"time"
)

// Defaults tuned for upstream LLM providers: more than 3 failures
// inside a minute takes the provider out of rotation for 5 minutes.
const (
	DefaultFailureWindow    = 60 * time.Second
	DefaultFailureThreshold = 3
	DefaultCooldown         = 5 * time.Minute
)

// Config controls a breaker's timing. Zero fields fall back to the
// package defaults. Clock is injectable for tests.
type Config struct {
	FailureWindow    time.Duration
	FailureThreshold int
	Cooldown         time.Duration
	Clock            func() time.Time
}

func (c Config) withDefaults() Config {
	if c.FailureWindow <= 0 {
		c.FailureWindow = DefaultFailureWindow
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Status is a point-in-time view of a breaker for monitoring.
type Status struct {
	Open              bool          `json:"open"`
	RecentFailures    int           `json:"recent_failures"`
	CooldownRemaining time.Duration `json:"cooldown_remaining"`
}

// Breaker tracks failures for one failure domain. All methods are safe
// for concurrent use.
type Breaker struct {
	mu            sync.Mutex
	cfg           Config
	failures      []time.Time
	cooldownUntil time.Time
}

// New returns a closed breaker with the given config.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults()}
}

// RecordFailure notes one failure at the current time. When the count
// of failures inside the window exceeds the threshold, the breaker
// (re)opens with the cooldown stamped from this failure. Returns
// whether this call transitioned the breaker from closed to open.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Clock()
	wasOpen := b.openLocked(now)

	b.pruneLocked(now)
	b.failures = append(b.failures, now)
	if len(b.failures) > b.cfg.FailureThreshold {
		b.cooldownUntil = now.Add(b.cfg.Cooldown)
	}
	return !wasOpen && b.openLocked(now)
}

// RecordSuccess closes the breaker and forgets all failure history.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = b.failures[:0]
	b.cooldownUntil = time.Time{}
}

// Allow reports whether calls may pass. An expired cooldown is cleared
// on the way through, so the breaker closes lazily without a timer.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cooldownUntil.IsZero() {
		return true
	}
	now := b.cfg.Clock()
	if now.Before(b.cooldownUntil) {
		return false
	}
	b.cooldownUntil = time.Time{}
	return true
}

// Status reports the breaker state without mutating it.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Clock()
	recent := 0
	cutoff := now.Add(-b.cfg.FailureWindow)
	for _, ts := range b.failures {
		if ts.After(cutoff) {
			recent++
		}
	}
	st := Status{RecentFailures: recent}
	if b.openLocked(now) {
		st.Open = true
		st.CooldownRemaining = b.cooldownUntil.Sub(now)
	}
	return st
}

func (b *Breaker) openLocked(now time.Time) bool {
	return !b.cooldownUntil.IsZero() && now.Before(b.cooldownUntil)
}

// pruneLocked drops failures that have aged out. An entry exactly one
// window old no longer counts.
func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.cfg.FailureWindow)
	kept := b.failures[:0]
	for _, ts := range b.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.failures = kept
}
