package httpapi

import (
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"

	domain "github.com/r3e-labs/rlstudio/internal/app/domain/analysis"
	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
	"github.com/r3e-labs/rlstudio/internal/app/metrics"
	"github.com/r3e-labs/rlstudio/internal/app/services/analysis"
	"github.com/r3e-labs/rlstudio/internal/app/services/cache"
	"github.com/r3e-labs/rlstudio/pkg/apperrors"
)

type analyzeRolloutRequest struct {
	Steps   []episode.StepRecord `json:"steps"`
	EnvSpec envspec.Spec         `json:"envSpec"`
}

type analyzeRolloutResponse struct {
	Reward     domain.RolloutAnalysis    `json:"reward"`
	Trajectory domain.TrajectoryAnalysis `json:"trajectory"`
}

// analyzeRollout handles POST /analyze/rollout (analyze-rollout). Results
// are cached for 10 minutes keyed by (function name, body hash), since
// analysis is a pure function of its inputs.
func (h *handler) analyzeRollout(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apperrors.InvalidInput("body", err.Error()))
		return
	}

	key := cache.AnalysisKey("analyze-rollout", bodyHash(body))
	if cached, ok := h.app.Cache.Analysis.Get(key); ok {
		metrics.RecordCacheHit("analysis")
		writeJSON(w, http.StatusOK, cached)
		return
	}
	metrics.RecordCacheMiss("analysis")

	var req analyzeRolloutRequest
	if err := decodeJSON(body, &req); err != nil {
		writeError(w, apperrors.InvalidInput("body", err.Error()))
		return
	}

	resp := analyzeRolloutResponse{
		Reward:     analysis.AnalyzeRollout(req.Steps, req.EnvSpec),
		Trajectory: analysis.AnalyzeTrajectory(req.Steps, req.EnvSpec),
	}
	h.app.Cache.Analysis.Set(key, resp, cache.AnalysisTTL)
	writeJSON(w, http.StatusOK, resp)
}

type analyzeBatchRequest struct {
	Rollouts []episode.Rollout `json:"rollouts"`
	EnvSpec  envspec.Spec      `json:"envSpec"`
}

type analyzeBatchResponse struct {
	Batch       domain.BatchAnalysis           `json:"batch"`
	Trajectory  domain.BatchTrajectoryAnalysis `json:"trajectory"`
	Termination domain.TerminationAnalysis     `json:"termination"`
}

// analyzeBatch handles POST /analyze/batch (analyze-batch).
func (h *handler) analyzeBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apperrors.InvalidInput("body", err.Error()))
		return
	}

	key := cache.AnalysisKey("analyze-batch", bodyHash(body))
	if cached, ok := h.app.Cache.Analysis.Get(key); ok {
		metrics.RecordCacheHit("analysis")
		writeJSON(w, http.StatusOK, cached)
		return
	}
	metrics.RecordCacheMiss("analysis")

	var req analyzeBatchRequest
	if err := decodeJSON(body, &req); err != nil {
		writeError(w, apperrors.InvalidInput("body", err.Error()))
		return
	}

	resp := analyzeBatchResponse{
		Batch:       analysis.AnalyzeRollouts(req.Rollouts, req.EnvSpec),
		Trajectory:  analysis.AnalyzeTrajectories(req.Rollouts, req.EnvSpec),
		Termination: analysis.AnalyzeTerminations(req.Rollouts),
	}
	h.app.Cache.Analysis.Set(key, resp, cache.AnalysisTTL)
	writeJSON(w, http.StatusOK, resp)
}

func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("%x", sum)
}
