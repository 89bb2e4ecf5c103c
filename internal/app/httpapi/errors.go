package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/r3e-labs/rlstudio/pkg/apperrors"
)

// errorEnvelope is the wire shape every failed request is serialized into.
type errorEnvelope struct {
	Code          string                 `json:"code"`
	Message       string                 `json:"message"`
	CorrelationID string                 `json:"correlationId"`
	Details       map[string]interface{} `json:"details,omitempty"`
	Retryable     bool                   `json:"retryable"`
}

// writeError maps err onto its ServiceError's HTTP status and body. An
// error that never went through apperrors is a programmer bug, not a caller
// mistake, so it is surfaced as 500 without leaking internal detail.
func writeError(w http.ResponseWriter, err error) {
	se := apperrors.Get(err)
	if se == nil {
		se = apperrors.Wrap(apperrors.ErrorCode("INTERNAL_ERROR"), "internal error", http.StatusInternalServerError, err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(se.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Code:          string(se.Code),
		Message:       se.Message,
		CorrelationID: se.CorrelationID,
		Details:       se.Details,
		Retryable:     se.Retryable,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func decodeJSON(body []byte, dst interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
