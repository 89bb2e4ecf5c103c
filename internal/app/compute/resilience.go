package compute

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// RetryPolicy is the backoff schedule compute-backend calls run under:
// 1s initial delay, doubling, capped at three attempts, with jitter so
// concurrent pollers don't synchronize against a recovering provider.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1 fraction of the delay
}

// DefaultComputeRetryPolicy is the orchestrator's compute-backend retry budget.
func DefaultComputeRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Retry runs fn under policy, sleeping between attempts and honoring ctx
// cancellation mid-backoff. The last attempt's error is returned when the
// budget is exhausted.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	var lastErr error
	delay := policy.InitialDelay

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt < policy.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jittered(delay, policy.Jitter)):
			}
			delay = time.Duration(float64(delay) * policy.Multiplier)
			if delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
		}
	}
	return lastErr
}

func jittered(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	return d + time.Duration(rand.Float64()*delta*2-delta)
}

// Errors returned when the breaker itself rejects a call, distinct from the
// wrapped fn's own error.
var (
	ErrCircuitOpen     = errors.New("compute backend circuit is open")
	ErrTooManyRequests = errors.New("compute backend circuit is probing")
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	MaxFailures int           // consecutive failures before opening
	Timeout     time.Duration // how long to stay open before probing
	HalfOpenMax int           // probe calls allowed while half-open
}

// DefaultBreakerConfig trips after five consecutive backend failures and
// probes again thirty seconds later, so the orchestrator's poll loops degrade
// to local no-ops on a down provider instead of retry-storming it.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxFailures: 5, Timeout: 30 * time.Second, HalfOpenMax: 3}
}

// CircuitBreaker gates calls to the compute provider. After MaxFailures
// consecutive errors it fails fast with ErrCircuitOpen until Timeout has
// elapsed, then lets through up to HalfOpenMax probe calls; the probes
// closing cleanly re-closes the circuit, any probe failure reopens it.
type CircuitBreaker struct {
	mu          sync.Mutex
	config      BreakerConfig
	state       breakerState
	failures    int
	successes   int
	probes      int
	lastFailure time.Time
}

// NewCircuitBreaker builds a closed-state breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{config: cfg, state: breakerClosed}
}

// Execute runs fn if the circuit admits it, recording the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err == nil)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerOpen:
		if time.Since(cb.lastFailure) > cb.config.Timeout {
			cb.transition(breakerHalfOpen)
			cb.probes = 1
			return nil
		}
		return ErrCircuitOpen
	case breakerHalfOpen:
		if cb.probes >= cb.config.HalfOpenMax {
			return ErrTooManyRequests
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		switch cb.state {
		case breakerHalfOpen:
			cb.successes++
			if cb.successes >= cb.config.HalfOpenMax {
				cb.transition(breakerClosed)
			}
		case breakerClosed:
			cb.failures = 0
		}
		return
	}

	cb.failures++
	cb.lastFailure = time.Now()
	switch cb.state {
	case breakerHalfOpen:
		cb.transition(breakerOpen)
	case breakerClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.transition(breakerOpen)
		}
	}
}

func (cb *CircuitBreaker) transition(next breakerState) {
	if cb.state == next {
		return
	}
	cb.state = next
	cb.failures = 0
	cb.successes = 0
	cb.probes = 0
}
