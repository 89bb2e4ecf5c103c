package httpapi

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/r3e-labs/rlstudio/internal/app/domain/runjob"
	"github.com/r3e-labs/rlstudio/pkg/apperrors"
)

// launchRunRequest is launch-run's input.
// RunID is optional: when supplied, repeat launches for the same runId are
// idempotent and return the already-stored record. The identifier every
// subsequent run-status/run-logs/cancel-run call must use is the "jobId"
// this endpoint returns (see DESIGN.md's jobId/runId naming decision).
type launchRunRequest struct {
	RunID  string           `json:"runId,omitempty"`
	Config runjob.RunConfig `json:"config"`
}

// launchRun handles POST /runs (launch-run).
func (h *handler) launchRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apperrors.InvalidInput("body", err.Error()))
		return
	}
	var req launchRunRequest
	if err := decodeJSON(body, &req); err != nil {
		writeError(w, apperrors.InvalidInput("body", err.Error()))
		return
	}
	if req.Config.Algorithm == "" || req.Config.EnvironmentSpec == "" {
		writeError(w, apperrors.InvalidInput("config", "algorithm and environmentSpec are required"))
		return
	}

	run, err := h.app.Orchestrator.Launch(r.Context(), req.RunID, req.Config)
	if err != nil {
		writeError(w, apperrors.Orchestrator("launch", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": run.RunID})
}

// runStatus handles GET /runs/{jobId} (run-status).
func (h *handler) runStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	run, err := h.app.Orchestrator.GetStatus(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// runLogs handles GET /runs/{jobId}/logs (run-logs).
func (h *handler) runLogs(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	maxLines, err := parseLimitParam(r.URL.Query().Get("maxLines"), 500)
	if err != nil {
		writeError(w, apperrors.InvalidInput("maxLines", err.Error()))
		return
	}

	logs, truncated, err := h.app.Orchestrator.GetLogs(r.Context(), jobID, maxLines)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs, "truncated": truncated})
}

// runDiagnostics handles GET /runs/{jobId}/diagnostics: the rolling
// training-diagnostics summaries accumulated from the run's ingested
// metric stream.
func (h *handler) runDiagnostics(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	diag, ok := h.app.Ingestion.Diagnostics(jobID)
	if !ok {
		writeError(w, apperrors.ResourceNotFound("run-diagnostics", jobID))
		return
	}
	writeJSON(w, http.StatusOK, diag)
}

// cancelRun handles POST /runs/{jobId}/cancel (cancel-run). Cancelling an
// already-terminal run is an ack, not an error.
func (h *handler) cancelRun(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if err := h.app.Orchestrator.Cancel(r.Context(), jobID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ack": true})
}
