// Package ratelimit bounds inbound request rates for the service façade.
// Rollout and analysis requests are CPU-heavy, so the router rejects excess
// load up front instead of queueing it against the worker pool.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig expresses the ceiling as requests-per-second plus a burst
// allowance. Window is informational: callers that configure limits as
// "N requests per window" convert to RequestsPerSecond before constructing
// the limiter and keep the window here for reporting.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	Window            time.Duration
}

// DefaultConfig allows 100 req/s with a 200-request burst.
func DefaultConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		Window:            time.Second,
	}
}

// RateLimiter is a token bucket shared by every endpoint on the router.
type RateLimiter struct {
	bucket *rate.Limiter
	config RateLimitConfig
}

// New builds a limiter from cfg, filling in defaults for non-positive fields.
func New(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}
	return &RateLimiter{
		bucket: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		config: cfg,
	}
}

// Allow reports whether one more request fits under the ceiling right now.
// It never blocks; the router turns a false into a 429.
func (r *RateLimiter) Allow() bool {
	return r.bucket.Allow()
}

// Wait blocks until a token is available or ctx is done. Used by internal
// callers (batch re-drivers) that prefer pacing over rejection.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.bucket.Wait(ctx)
}

// Config returns the limiter's effective configuration.
func (r *RateLimiter) Config() RateLimitConfig {
	return r.config
}
