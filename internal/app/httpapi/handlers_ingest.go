package httpapi

import (
	"io"
	"net/http"

	"github.com/r3e-labs/rlstudio/pkg/apperrors"
)

// ingestMetric handles POST /ingest/metric (ingest-metric). The body is
// passed through raw: ingestion.IngestMetric does its own tolerant field
// parsing via gjson.
func (h *handler) ingestMetric(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apperrors.InvalidInput("body", err.Error()))
		return
	}
	if err := h.app.Ingestion.IngestMetric(r.Context(), body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"ack": true})
}

// ingestLogs handles POST /ingest/logs (ingest-logs).
func (h *handler) ingestLogs(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apperrors.InvalidInput("body", err.Error()))
		return
	}
	if err := h.app.Ingestion.IngestLogs(r.Context(), body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"ack": true})
}
