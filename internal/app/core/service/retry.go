package service

import (
	"context"
	"time"
)

// RetryPolicy governs retries of external-dependency calls.
type RetryPolicy struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// StorageRetryPolicy is the backoff budget for storage-client calls:
// three attempts, 1s initial delay, doubling.
var StorageRetryPolicy = RetryPolicy{
	Attempts:       3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     4 * time.Second,
	Multiplier:     2,
}

// Retry executes fn under policy and returns the last error, honoring ctx
// cancellation between attempts. An Attempts of zero or one means a single
// try with no backoff.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	if policy.Multiplier <= 0 {
		policy.Multiplier = 1
	}
	backoff := policy.InitialBackoff
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt == policy.Attempts {
			return err
		}
		if backoff > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			next := time.Duration(float64(backoff) * policy.Multiplier)
			if policy.MaxBackoff > 0 && next > policy.MaxBackoff {
				next = policy.MaxBackoff
			}
			backoff = next
		}
	}
	return nil
}
