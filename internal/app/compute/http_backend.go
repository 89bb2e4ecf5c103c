package compute

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/r3e-labs/rlstudio/pkg/apperrors"
)

// HTTPBackend is the default Backend implementation: a thin client over a
// provider's REST API, guarded by retry + circuit breaker.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	retry   RetryPolicy
	breaker *CircuitBreaker
}

// NewHTTPBackend builds an HTTPBackend against baseURL. Outbound calls
// carry provider credentials, so the transport requires TLS 1.2+.
func NewHTTPBackend(baseURL string) *HTTPBackend {
	return &HTTPBackend{
		baseURL: baseURL,
		client:  &http.Client{Transport: minTLS12Transport()},
		retry:   DefaultComputeRetryPolicy(),
		breaker: NewCircuitBreaker(DefaultBreakerConfig()),
	}
}

func minTLS12Transport() http.RoundTripper {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}
	cloned := base.Clone()
	if cloned.TLSClientConfig == nil {
		cloned.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	} else {
		cloned.TLSClientConfig = cloned.TLSClientConfig.Clone()
		if cloned.TLSClientConfig.MinVersion < tls.VersionTLS12 {
			cloned.TLSClientConfig.MinVersion = tls.VersionTLS12
		}
	}
	return cloned
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	return b.breaker.Execute(ctx, func() error {
		return Retry(ctx, b.retry, func() error {
			req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := b.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 500 {
				return fmt.Errorf("compute backend %s %s: status %d", method, path, resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				data, _ := io.ReadAll(resp.Body)
				return apperrors.Orchestrator(path, fmt.Errorf("status %d: %s", resp.StatusCode, string(data)))
			}
			if out == nil {
				return nil
			}
			return json.NewDecoder(resp.Body).Decode(out)
		})
	})
}

// Submit uploads the manifest at manifestPath and returns the provider's jobId.
func (b *HTTPBackend) Submit(ctx context.Context, manifestPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, LaunchDeadline)
	defer cancel()

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", apperrors.External("compute-backend", err)
	}

	var result struct {
		JobID string `json:"jobId"`
	}
	if err := b.do(ctx, http.MethodPost, "/jobs", bytes.NewReader(data), &result); err != nil {
		return "", apperrors.External("compute-backend", err)
	}
	return result.JobID, nil
}

// Status fetches a job's current state.
func (b *HTTPBackend) Status(ctx context.Context, jobID string) (JobState, error) {
	ctx, cancel := context.WithTimeout(ctx, StatusDeadline)
	defer cancel()

	var state JobState
	path := "/jobs/" + url.PathEscape(jobID)
	if err := b.do(ctx, http.MethodGet, path, nil, &state); err != nil {
		return JobState{}, apperrors.External("compute-backend", err)
	}
	return state, nil
}

// Logs fetches log output since the given time.
func (b *HTTPBackend) Logs(ctx context.Context, jobID string, since time.Time) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, LogsDeadline)
	defer cancel()

	var result struct {
		Logs string `json:"logs"`
	}
	path := fmt.Sprintf("/jobs/%s/logs?since=%d", url.PathEscape(jobID), since.Unix())
	if err := b.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return "", apperrors.External("compute-backend", err)
	}
	return result.Logs, nil
}

// Cancel requests termination of a running job.
func (b *HTTPBackend) Cancel(ctx context.Context, jobID string) error {
	ctx, cancel := context.WithTimeout(ctx, CancelDeadline)
	defer cancel()

	path := "/jobs/" + url.PathEscape(jobID) + "/cancel"
	if err := b.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return apperrors.External("compute-backend", err)
	}
	return nil
}

var _ Backend = (*HTTPBackend)(nil)
