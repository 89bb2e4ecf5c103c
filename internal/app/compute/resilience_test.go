package compute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsBudget(t *testing.T) {
	boom := errors.New("provider down")
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := RetryPolicy{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}
	err := Retry(ctx, policy, func() error {
		calls++
		cancel()
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: 2, Timeout: time.Hour, HalfOpenMax: 1})
	boom := errors.New("status 503")
	fail := func() error { return boom }

	require.ErrorIs(t, cb.Execute(context.Background(), fail), boom)
	require.ErrorIs(t, cb.Execute(context.Background(), fail), boom)

	// Circuit is now open; the fn must not run.
	err := cb.Execute(context.Background(), func() error {
		t.Fatal("call admitted through an open circuit")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerReclosesAfterProbeSucceeds(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: 1, Timeout: 10 * time.Millisecond, HalfOpenMax: 1})
	require.Error(t, cb.Execute(context.Background(), func() error { return errors.New("boom") }))
	require.ErrorIs(t, cb.Execute(context.Background(), func() error { return nil }), ErrCircuitOpen)

	time.Sleep(20 * time.Millisecond)

	// Probe succeeds, circuit closes again.
	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: 1, Timeout: 10 * time.Millisecond, HalfOpenMax: 1})
	require.Error(t, cb.Execute(context.Background(), func() error { return errors.New("boom") }))

	time.Sleep(20 * time.Millisecond)

	require.Error(t, cb.Execute(context.Background(), func() error { return errors.New("still down") }))
	assert.ErrorIs(t, cb.Execute(context.Background(), func() error { return nil }), ErrCircuitOpen)
}
