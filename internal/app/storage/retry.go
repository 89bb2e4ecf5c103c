package storage

import (
	"context"

	core "github.com/r3e-labs/rlstudio/internal/app/core/service"
	"github.com/r3e-labs/rlstudio/pkg/apperrors"
)

// retryingClient decorates a Client with the storage backoff budget. Only
// retryable failures (external-service errors, timeouts) re-attempt;
// not-found and validation errors surface immediately.
type retryingClient struct {
	inner  Client
	policy core.RetryPolicy
}

// WithRetry wraps client in bounded exponential backoff. A nil client
// stays nil so composition-root defaulting keeps working.
func WithRetry(client Client, policy core.RetryPolicy) Client {
	if client == nil {
		return nil
	}
	return &retryingClient{inner: client, policy: policy}
}

func (c *retryingClient) do(ctx context.Context, call func() (interface{}, error)) (interface{}, error) {
	var out interface{}
	var final error
	_ = core.Retry(ctx, c.policy, func() error {
		v, err := call()
		final = err
		if err == nil {
			out = v
			return nil
		}
		if !apperrors.IsRetryable(err) {
			// Returning nil stops the retry loop; final carries the error.
			return nil
		}
		return err
	})
	return out, final
}

func (c *retryingClient) Query(ctx context.Context, path string, args Args) (interface{}, error) {
	return c.do(ctx, func() (interface{}, error) { return c.inner.Query(ctx, path, args) })
}

func (c *retryingClient) Mutation(ctx context.Context, path string, args Args) (interface{}, error) {
	return c.do(ctx, func() (interface{}, error) { return c.inner.Mutation(ctx, path, args) })
}

var _ Client = (*retryingClient)(nil)
