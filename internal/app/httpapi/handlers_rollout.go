package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
	"github.com/r3e-labs/rlstudio/internal/app/metrics"
	"github.com/r3e-labs/rlstudio/internal/app/services/cache"
	envspecsvc "github.com/r3e-labs/rlstudio/internal/app/services/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/services/policy"
	"github.com/r3e-labs/rlstudio/internal/app/services/rollout"
	"github.com/r3e-labs/rlstudio/pkg/apperrors"
)

// rolloutRequest is the decoded body for both rollout and stream-rollout.
type rolloutRequest struct {
	EnvSpec  envspec.Spec `json:"envSpec"`
	Policy   policy.Kind  `json:"policy"`
	MaxSteps int          `json:"maxSteps"`
	RunID    string       `json:"runId,omitempty"`
	ModelURL string       `json:"modelUrl,omitempty"`
	Seed     int64        `json:"seed,omitempty"`
}

func (h *handler) decodeRolloutRequest(ctx context.Context, body []byte) (rolloutRequest, envspec.Spec, rollout.Options, string, error) {
	var req rolloutRequest
	if err := decodeJSON(body, &req); err != nil {
		return req, envspec.Spec{}, rollout.Options{}, "", apperrors.InvalidInput("body", err.Error())
	}

	if err := envspecsvc.Validate(req.EnvSpec); err != nil {
		return req, envspec.Spec{}, rollout.Options{}, "", err
	}
	// The rollout/stream-rollout request shape bounds maxSteps to
	// [1, 10 000]; this is a request-validation concern of the façade,
	// not of the rollout driver itself (see rollout.runCtx).
	if req.MaxSteps < 1 || req.MaxSteps > 10_000 {
		return req, envspec.Spec{}, rollout.Options{}, "", apperrors.OutOfRange("maxSteps", 1, 10_000)
	}

	specHash := envspecsvc.Hash(req.EnvSpec)
	var spec envspec.Spec
	if cached, ok := h.app.Cache.CompiledEnv.Get(cache.EnvKey(specHash)); ok {
		metrics.RecordCacheHit("compiled_env")
		spec = cached.(envspec.Spec)
	} else {
		metrics.RecordCacheMiss("compiled_env")
		spec = envspecsvc.Sanitize(req.EnvSpec)
		h.app.Cache.CompiledEnv.Set(cache.EnvKey(specHash), spec)
	}

	opts := rollout.Options{Policy: req.Policy, MaxSteps: req.MaxSteps, Seed: req.Seed}
	if req.Policy == policy.KindTrainedModel {
		model, err := h.loadModel(ctx, req.ModelURL)
		if err != nil {
			return req, spec, opts, specHash, err
		}
		opts.Model = model
	}
	return req, spec, opts, specHash, nil
}

// rolloutCacheKey folds the model URL into the policy component so a
// trained_model request never hits another model's cached rollout.
func rolloutCacheKey(req rolloutRequest, specHash string) string {
	policyKey := string(req.Policy)
	if req.ModelURL != "" {
		policyKey += ":" + req.ModelURL
	}
	return cache.RolloutKey(specHash, policyKey, req.MaxSteps, req.Seed, true)
}

func (h *handler) loadModel(ctx context.Context, url string) (*policy.Model, error) {
	if url == "" {
		return nil, apperrors.InvalidInput("modelUrl", "required for trained_model policy")
	}
	key := cache.ModelKey(url)
	if cached, ok := h.app.Cache.Model.Get(key); ok {
		metrics.RecordCacheHit("model")
		return cached.(*policy.Model), nil
	}
	metrics.RecordCacheMiss("model")

	blob, err := h.app.Blobs.Get(ctx, url)
	if err != nil {
		return nil, apperrors.External("blobstore", err)
	}
	model, err := policy.DecodeModel(url, blob)
	if err != nil {
		return nil, err
	}
	h.app.Cache.Model.Set(key, model, cache.ModelTTL)
	return model, nil
}

// rollout handles POST /rollout: one synchronous simulated episode.
func (h *handler) rollout(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apperrors.InvalidInput("body", err.Error()))
		return
	}
	req, spec, opts, specHash, err := h.decodeRolloutRequest(r.Context(), body)
	if err != nil {
		writeError(w, err)
		return
	}

	key := rolloutCacheKey(req, specHash)
	if cached, ok := h.app.Cache.Rollout.Get(key); ok {
		metrics.RecordCacheHit("rollout")
		writeJSON(w, http.StatusOK, cached)
		return
	}
	metrics.RecordCacheMiss("rollout")

	metrics.RolloutStarted()
	defer metrics.RolloutFinished()
	start := time.Now()
	result, err := rollout.RunRollout(r.Context(), spec, opts)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordRolloutExecution(status, time.Since(start))
	if err != nil {
		writeError(w, err)
		return
	}
	h.app.Cache.Rollout.Set(key, result, cache.RolloutTTL)
	writeJSON(w, http.StatusOK, result)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamRollout handles GET /stream-rollout: an ordered stream of step
// records over a websocket connection, terminated by a summary message.
// The rollout loop runs in its own goroutine and pushes steps onto a
// bounded channel; one goroutine owns the socket write side.
func (h *handler) streamRollout(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("request")
	if raw == "" {
		writeError(w, apperrors.InvalidInput("request", "query parameter with the JSON rollout request is required"))
		return
	}
	_, spec, opts, _, err := h.decodeRolloutRequest(r.Context(), []byte(raw))
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("stream-rollout: websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Consumer disconnects propagate upstream: the reader goroutine cancels
	// ctx when the peer closes (or the read otherwise errors), and a failed
	// write below does the same, stopping the in-flight rollout at its next
	// step boundary. The request context alone is not enough here since the
	// upgrade hijacks the connection out from under the HTTP server.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	steps := make(chan episode.StepRecord, 64)
	opts.Stream = func(step episode.StepRecord) {
		select {
		case steps <- step:
		default:
			// Bounded queue: a slow consumer drops intermediate steps rather
			// than blocking the rollout loop.
		}
	}

	metrics.RolloutStarted()
	done := make(chan episode.Rollout, 1)
	errCh := make(chan error, 1)
	go func() {
		defer metrics.RolloutFinished()
		defer close(steps)
		result, err := rollout.RunRollout(ctx, spec, opts)
		if err != nil {
			errCh <- err
			return
		}
		done <- result
	}()

	for step := range steps {
		if err := conn.WriteJSON(step); err != nil {
			// Peer is gone: stop the rollout and fall through to collect
			// its (cancelled) result. Producer sends are non-blocking, so
			// abandoning the channel here cannot deadlock it.
			cancel()
			break
		}
	}

	select {
	case result := <-done:
		_ = conn.WriteJSON(map[string]interface{}{"type": "summary", "rollout": result})
	case err := <-errCh:
		_ = conn.WriteJSON(map[string]interface{}{"type": "error", "error": err.Error()})
	}
}
