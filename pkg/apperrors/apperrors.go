// Package apperrors provides unified error handling for the RL studio core.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// ErrorCode names one of the error kinds from the service's error design.
type ErrorCode string

const (
	// ValidationError marks a malformed EnvSpec or request. Not retryable.
	ValidationError ErrorCode = "VALIDATION_ERROR"
	// SecurityError marks a payload exceeding caps or failing sanitization.
	SecurityError ErrorCode = "SECURITY_ERROR"
	// NotFound marks an unknown runId, asset, or template.
	NotFound ErrorCode = "NOT_FOUND"
	// ExternalServiceError marks a storage/blob-store/compute-backend failure.
	ExternalServiceError ErrorCode = "EXTERNAL_SERVICE_ERROR"
	// TimeoutError marks a wall-clock deadline exceeded.
	TimeoutError ErrorCode = "TIMEOUT_ERROR"
	// RolloutError marks a simulator invariant violated during step.
	RolloutError ErrorCode = "ROLLOUT_ERROR"
	// OrchestratorError marks a compute-backend error launching/cancelling/reading status.
	OrchestratorError ErrorCode = "ORCHESTRATOR_ERROR"
)

// ServiceError is a structured error with a stable code, an HTTP status, a
// correlation id, and optional structured context.
type ServiceError struct {
	Code          ErrorCode              `json:"code"`
	Message       string                 `json:"message"`
	HTTPStatus    int                    `json:"-"`
	CorrelationID string                 `json:"correlationId"`
	Details       map[string]interface{} `json:"details,omitempty"`
	Retryable     bool                   `json:"retryable"`
	Err           error                  `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional structured context to the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError with a fresh correlation id.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:          code,
		Message:       message,
		HTTPStatus:    httpStatus,
		CorrelationID: uuid.NewString(),
		Retryable:     defaultRetryable(code),
	}
}

// Wrap wraps an existing error with a ServiceError.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	se := New(code, message, httpStatus)
	se.Err = err
	return se
}

func defaultRetryable(code ErrorCode) bool {
	switch code {
	case ExternalServiceError, TimeoutError:
		return true
	default:
		return false
	}
}

// InvalidInput reports a validation failure against a specific field.
func InvalidInput(field, reason string) *ServiceError {
	return New(ValidationError, "invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

// OutOfRange reports a value outside its allowed bounds.
func OutOfRange(field string, minValue, maxValue interface{}) *ServiceError {
	return New(ValidationError, "value out of range", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("min", minValue).
		WithDetails("max", maxValue)
}

// Security reports a payload that exceeded structural caps or failed sanitization.
func Security(field, reason string) *ServiceError {
	return New(SecurityError, "payload rejected", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

// ResourceNotFound reports an unknown resource by kind and id.
func ResourceNotFound(resource, id string) *ServiceError {
	return New(NotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

// External wraps a storage/blob-store/compute-backend failure.
func External(service string, err error) *ServiceError {
	return Wrap(ExternalServiceError, "external service call failed", http.StatusBadGateway, err).
		WithDetails("service", service)
}

// Timeout reports a wall-clock deadline exceeded for the named operation.
func Timeout(operation string) *ServiceError {
	return New(TimeoutError, "operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

// Rollout wraps a simulator invariant violation, a bug signal, since the
// validator should have rejected the spec before a rollout could reach it.
func Rollout(reason string, err error) *ServiceError {
	return Wrap(RolloutError, "simulator invariant violated", http.StatusInternalServerError, err).
		WithDetails("reason", reason)
}

// Orchestrator wraps a compute-backend error during launch/cancel/status.
func Orchestrator(operation string, err error) *ServiceError {
	return Wrap(OrchestratorError, "orchestrator operation failed", http.StatusBadGateway, err).
		WithDetails("operation", operation)
}

// IsServiceError reports whether err is (or wraps) a *ServiceError.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// Get extracts a *ServiceError from an error chain, if present.
func Get(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// HTTPStatus maps an arbitrary error to the HTTP status code the service
// façade should respond with.
func HTTPStatus(err error) int {
	if se := Get(err); se != nil {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether the error is eligible for the caller's retry budget.
func IsRetryable(err error) bool {
	if se := Get(err); se != nil {
		return se.Retryable
	}
	return false
}
