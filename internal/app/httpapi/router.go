// Package httpapi exposes the service façade's HTTP surface: rollout
// execution, training-run orchestration, metric/log ingestion, and
// rollout analysis. Scene/asset/template browsing is a separate product
// surface that talks to storage.Client directly and does not route
// through this package.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/r3e-labs/rlstudio/infrastructure/ratelimit"
	app "github.com/r3e-labs/rlstudio/internal/app"
	"github.com/r3e-labs/rlstudio/internal/app/metrics"
	"github.com/r3e-labs/rlstudio/pkg/apperrors"
	"github.com/r3e-labs/rlstudio/pkg/logger"
)

// handler bundles HTTP endpoints for the application's services.
type handler struct {
	app   *app.Application
	log   *logger.Logger
	audit *auditLog
}

// Config controls the router's CORS allow-list, audit sink, and the
// process-wide request ceiling.
type Config struct {
	CORSOrigins []string
	AuditMax    int
	AuditSink   auditSink
	// RateLimit bounds total inbound requests/sec across all endpoints,
	// independent of ingestion's per-runId limiter. Nil disables the
	// ceiling.
	RateLimit *ratelimit.RateLimitConfig
}

// NewRouter returns an http.Handler exposing the core REST API over the
// given Application.
func NewRouter(application *app.Application, cfg Config) http.Handler {
	h := &handler{app: application, log: application.Logger(), audit: newAuditLog(cfg.AuditMax, cfg.AuditSink)}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(h.auditMiddleware)
	if cfg.RateLimit != nil {
		r.Use(rateLimitMiddleware(*cfg.RateLimit))
	}

	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", h.health)
	r.Get("/system/descriptors", h.systemDescriptors)

	r.Post("/rollout", h.rollout)
	r.Get("/stream-rollout", h.streamRollout)

	r.Post("/runs", h.launchRun)
	r.Get("/runs/{jobId}", h.runStatus)
	r.Get("/runs/{jobId}/logs", h.runLogs)
	r.Get("/runs/{jobId}/diagnostics", h.runDiagnostics)
	r.Post("/runs/{jobId}/cancel", h.cancelRun)

	r.Post("/ingest/metric", h.ingestMetric)
	r.Post("/ingest/logs", h.ingestLogs)

	r.Post("/analyze/rollout", h.analyzeRollout)
	r.Post("/analyze/batch", h.analyzeBatch)

	return metrics.InstrumentHandler(r)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) systemDescriptors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Descriptors())
}

// corsMiddleware applies the configured inbound-origin allow-list. A single
// "*" entry allows any origin; the echoed Access-Control-Allow-Origin is
// always the caller's own origin so responses stay cacheable per origin.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	set := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowAll = true
			continue
		}
		if origin != "" {
			set[origin] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if _, ok := set[origin]; ok || allowAll {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *handler) auditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		h.audit.add(auditEntry{
			Time:       start,
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     rec.status,
			DurationMS: time.Since(start).Milliseconds(),
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		})
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// rateLimitMiddleware enforces a single process-wide token bucket across
// every endpoint, rejecting with 429 once exhausted rather than blocking
// (a blocking Wait would itself become a denial-of-service surface under
// sustained overload).
func rateLimitMiddleware(cfg ratelimit.RateLimitConfig) func(http.Handler) http.Handler {
	limiter := ratelimit.New(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, apperrors.New(apperrors.ValidationError, "rate limit exceeded", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
