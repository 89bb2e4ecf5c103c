package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	core "github.com/r3e-labs/rlstudio/internal/app/core/service"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rlstudio",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rlstudio",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rlstudio",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	rolloutExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rlstudio",
			Subsystem: "rollout",
			Name:      "executions_total",
			Help:      "Total number of rollout executions.",
		},
		[]string{"status"},
	)

	rolloutDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rlstudio",
			Subsystem: "rollout",
			Name:      "execution_duration_seconds",
			Help:      "Duration of rollout executions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"status"},
	)

	rolloutActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rlstudio",
			Subsystem: "rollout",
			Name:      "active",
			Help:      "Number of rollouts currently executing across all worker pools.",
		},
	)

	orchestratorTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rlstudio",
			Subsystem: "orchestrator",
			Name:      "run_transitions_total",
			Help:      "Total number of run state-machine transitions.",
		},
		[]string{"from", "to"},
	)

	orchestratorPollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rlstudio",
			Subsystem: "orchestrator",
			Name:      "poll_duration_seconds",
			Help:      "Duration of orchestrator SyncMetadata polls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"run_id"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rlstudio",
			Subsystem: "cache",
			Name:      "results_total",
			Help:      "Total cache lookups, partitioned by namespace and hit/miss.",
		},
		[]string{"namespace", "result"},
	)

	observationCollectors sync.Map
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		rolloutExecutions,
		rolloutDuration,
		rolloutActive,
		orchestratorTransitions,
		orchestratorPollDuration,
		cacheResults,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordRolloutExecution records metrics for one completed rollout.
func RecordRolloutExecution(status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	rolloutExecutions.WithLabelValues(status).Inc()
	rolloutDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RolloutStarted/RolloutFinished track the number of rollouts currently
// executing, for the worker-pool utilization gauge.
func RolloutStarted()  { rolloutActive.Inc() }
func RolloutFinished() { rolloutActive.Dec() }

// RecordOrchestratorTransition records a run state-machine transition.
func RecordOrchestratorTransition(from, to string) {
	orchestratorTransitions.WithLabelValues(from, to).Inc()
}

// RecordOrchestratorPoll records one SyncMetadata poll's duration for a run.
func RecordOrchestratorPoll(runID string, duration time.Duration) {
	if runID == "" {
		runID = "unknown"
	}
	orchestratorPollDuration.WithLabelValues(runID).Observe(duration.Seconds())
}

// RecordCacheHit/RecordCacheMiss track hit/miss ratios per cache namespace
// (compiled-env, analysis, asset, rollout, model).
func RecordCacheHit(namespace string)  { cacheResults.WithLabelValues(namespace, "hit").Inc() }
func RecordCacheMiss(namespace string) { cacheResults.WithLabelValues(namespace, "miss").Inc() }

type observationCollector struct {
	gauge *prometheus.GaugeVec
	hist  *prometheus.HistogramVec
}

// ObservationHooks creates core observation hooks backed by Prometheus metrics.
func ObservationHooks(namespace, subsystem, name string) core.ObservationHooks {
	key := namespace + ":" + subsystem + ":" + name
	var collector observationCollector
	if entry, ok := observationCollectors.Load(key); ok {
		collector = entry.(observationCollector)
	} else {
		collector = createObservationCollector(namespace, subsystem, name)
		observationCollectors.Store(key, collector)
	}
	return core.ObservationHooks{
		OnStart: func(ctx context.Context, meta map[string]string) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Inc()
		},
		OnComplete: func(ctx context.Context, meta map[string]string, err error, duration time.Duration) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Dec()
			status := "success"
			if err != nil {
				status = "error"
			}
			collector.hist.WithLabelValues(label, status).Observe(duration.Seconds())
		},
	}
}

func createObservationCollector(namespace, subsystem, name string) observationCollector {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_in_flight",
			Help:      "Current operations in flight for " + subsystem,
		},
		[]string{"resource"},
	)
	hist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_duration_seconds",
			Help:      "Duration of operations for " + subsystem,
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"resource", "status"},
	)
	Registry.MustRegister(gauge, hist)
	return observationCollector{gauge: gauge, hist: hist}
}

func metaLabel(meta map[string]string) string {
	if meta == nil {
		return "unknown"
	}
	if id, ok := meta["resource"]; ok && id != "" {
		return id
	}
	if id, ok := meta["run_id"]; ok && id != "" {
		return id
	}
	return "unknown"
}

// RolloutHooks captures single-rollout execution attempts (RunRollout).
func RolloutHooks() core.ObservationHooks {
	return ObservationHooks("rlstudio", "rollout", "run")
}

// ParallelRolloutHooks captures batch rollout execution attempts (RunParallel).
func ParallelRolloutHooks() core.ObservationHooks {
	return ObservationHooks("rlstudio", "rollout", "batch")
}

// OrchestratorLaunchHooks captures run-launch attempts against the compute backend.
func OrchestratorLaunchHooks() core.ObservationHooks {
	return ObservationHooks("rlstudio", "orchestrator", "launch")
}

// OrchestratorPollHooks captures SyncMetadata poll ticks.
func OrchestratorPollHooks() core.ObservationHooks {
	return ObservationHooks("rlstudio", "orchestrator", "sync")
}

// IngestionMetricHooks captures metric-point ingestion calls.
func IngestionMetricHooks() core.ObservationHooks {
	return ObservationHooks("rlstudio", "ingestion", "metrics")
}

// IngestionLogHooks captures log-batch ingestion calls.
func IngestionLogHooks() core.ObservationHooks {
	return ObservationHooks("rlstudio", "ingestion", "logs")
}

// AnalysisHooks captures rollout/batch analysis invocations.
func AnalysisHooks() core.ObservationHooks {
	return ObservationHooks("rlstudio", "analysis", "compute")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 {
		return "/"
	}
	if parts[0] != "runs" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/runs"
	}
	if len(parts) == 2 {
		return "/runs/:jobId"
	}
	resource := parts[2]
	return "/runs/:jobId/" + resource
}
