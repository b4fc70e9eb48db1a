// Package ratelimit provides a sliding-window per-identity request limiter.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultWindow and DefaultMaxRequests match the deployment policy:
	// at most 10 requests per identity inside any 20 second window.
	DefaultWindow      = 20 * time.Second
	DefaultMaxRequests = 10

	// sweepEvery bounds how often stale identities are garbage-collected.
	sweepEvery = time.Minute
)

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(limiter *Limiter) {
		limiter.nowFn = now
	}
}

// Limiter counts requests per identity over a sliding window. The request
// timestamp is recorded on every Allow call, allowed or not, so a caller
// hammering a denied endpoint keeps its window saturated.
type Limiter struct {
	mu          sync.Mutex
	window      time.Duration
	maxRequests int
	nowFn       func() time.Time
	history     map[string][]time.Time
	lastSweep   time.Time
}

// New returns a limiter with the given window and request budget.
func New(window time.Duration, maxRequests int, options ...Option) *Limiter {
	limiter := &Limiter{
		window:      window,
		maxRequests: maxRequests,
		nowFn:       time.Now,
		history:     make(map[string][]time.Time),
	}
	for _, option := range options {
		if option != nil {
			option(limiter)
		}
	}
	return limiter
}

// Allow reports whether the identity is inside its request budget.
func (limiter *Limiter) Allow(identity string) bool {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := limiter.nowFn()
	limiter.sweepLocked(now)

	cutoff := now.Add(-limiter.window)
	recent := limiter.history[identity][:0]
	for _, stamp := range limiter.history[identity] {
		if stamp.After(cutoff) {
			recent = append(recent, stamp)
		}
	}
	allowed := len(recent) < limiter.maxRequests
	limiter.history[identity] = append(recent, now)
	return allowed
}

// sweepLocked evicts identities whose whole history fell out of the window,
// keeping memory bounded for callers that went quiet.
func (limiter *Limiter) sweepLocked(now time.Time) {
	if now.Sub(limiter.lastSweep) < sweepEvery {
		return
	}
	limiter.lastSweep = now
	cutoff := now.Add(-limiter.window)
	for identity, stamps := range limiter.history {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(limiter.history, identity)
		}
	}
}

// Tracked reports how many identities currently hold history.
func (limiter *Limiter) Tracked() int {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	return len(limiter.history)
}
