// Package ingestion implements the metrics/log-batch callback path training
// jobs call back into while running: tolerant field parsing, per-runId rate
// limiting, and durable enqueue ahead of storage persistence.
package ingestion

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	core "github.com/r3e-labs/rlstudio/internal/app/core/service"
	domainanalysis "github.com/r3e-labs/rlstudio/internal/app/domain/analysis"
	"github.com/r3e-labs/rlstudio/internal/app/domain/runjob"
	"github.com/r3e-labs/rlstudio/internal/app/services/analysis"
	"github.com/r3e-labs/rlstudio/internal/app/storage"
	"github.com/r3e-labs/rlstudio/internal/app/system"
	"github.com/r3e-labs/rlstudio/pkg/apperrors"
	"github.com/r3e-labs/rlstudio/pkg/logger"
)

var _ system.Service = (*Service)(nil)

// Service receives metric points and log batches from running jobs,
// rate-limits per runId, and durably enqueues onto Redis ahead of a
// background consumer that drains into storage. Each runId has its own
// queue list, so per-run append order survives the fan-out.
type Service struct {
	redis   *redis.Client
	storage storage.Client
	log     *logger.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	diag     map[string]*analysis.DiagnosticsTracker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Limit is the per-runId ingestion rate (events/sec) before requests are
// rejected with TooManyRequests, without blocking other runIds.
const Limit = 50

// TruncationMarker is appended to an oversized log batch's message in place
// of the dropped excess, keeping the stored message within MaxLogBatchBytes.
const TruncationMarker = "\n... [log batch truncated]"

// NewService builds an ingestion service. redisClient may be nil, in which
// case points/batches are pushed directly to storage without the durable
// queue hop; acceptable for a single-node deployment.
func NewService(redisClient *redis.Client, store storage.Client, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ingestion")
	}
	return &Service{
		redis:    redisClient,
		storage:  store,
		log:      log,
		limiters: make(map[string]*rate.Limiter),
		diag:     make(map[string]*analysis.DiagnosticsTracker),
	}
}

// Name implements system.Service.
func (s *Service) Name() string { return "ingestion" }

// Descriptor advertises the ingestion service's architectural placement.
func (s *Service) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         "ingestion",
		Domain:       "training",
		Layer:        core.LayerIngress,
		Capabilities: []string{"metrics", "logs"},
	}
}

// Start launches the background consumers draining the Redis queues into
// storage. A nil redis client makes Start a no-op since ingestion then
// writes straight through.
func (s *Service) Start(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go s.consume(runCtx, "metrics", s.drainMetric)
	go s.consume(runCtx, "logs", s.drainLog)

	s.log.Info("ingestion consumers started")
	return nil
}

// Stop halts the background consumers.
func (s *Service) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("ingestion consumers stopped")
	return nil
}

func (s *Service) limiterFor(runID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[runID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(Limit), Limit)
		s.limiters[runID] = l
	}
	return l
}

func (s *Service) trackerFor(runID string) *analysis.DiagnosticsTracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.diag[runID]
	if !ok {
		t = &analysis.DiagnosticsTracker{}
		s.diag[runID] = t
	}
	return t
}

// Diagnostics returns the rolling training-diagnostics snapshot for a run,
// or false if the run has not reported any metric points yet.
func (s *Service) Diagnostics(runID string) (domainanalysis.Diagnostics, bool) {
	s.mu.Lock()
	t, ok := s.diag[runID]
	s.mu.Unlock()
	if !ok {
		return domainanalysis.Diagnostics{}, false
	}
	return t.Snapshot(), true
}

// observeDiagnostics folds one metric payload's optional training
// diagnostics into the run's rolling accumulators. Field names mirror what
// the training workers post; absent fields are skipped.
func (s *Service) observeDiagnostics(runID string, body []byte) {
	tracker := s.trackerFor(runID)
	if v := gjson.GetBytes(body, "tdError"); v.Exists() {
		tracker.TDError.Observe(v.Float())
	}
	if v := gjson.GetBytes(body, "valueEstimate"); v.Exists() {
		tracker.ValueEstimate.Observe(v.Float())
	}
	if v := gjson.GetBytes(body, "entropy"); v.Exists() {
		tracker.PolicyEntropy.Observe(v.Float())
	}
	if v := gjson.GetBytes(body, "klDivergence"); v.Exists() {
		tracker.KLDivergence.Observe(v.Float())
	}
	if v := gjson.GetBytes(body, "gradNorm"); v.Exists() {
		tracker.GradientNorm.Observe(v.Float())
	}
}

func queueKey(kind, runID string) string { return "ingest:" + kind + ":" + runID }
func queueIndex(kind string) string      { return "ingest:" + kind + ":index" }

// IngestMetric parses a tolerant JSON body into a MetricPoint and enqueues it.
func (s *Service) IngestMetric(ctx context.Context, body []byte) error {
	runID := gjson.GetBytes(body, "runId").String()
	if runID == "" {
		return apperrors.InvalidInput("runId", "required")
	}
	if !s.limiterFor(runID).Allow() {
		return apperrors.New(apperrors.ValidationError, "ingestion rate limit exceeded", 429).WithDetails("runId", runID)
	}

	point := runjob.MetricPoint{
		RunID:     runID,
		Step:      gjson.GetBytes(body, "step").Int(),
		Reward:    gjson.GetBytes(body, "reward").Float(),
		WallClock: time.Now().UTC(),
	}
	if v := gjson.GetBytes(body, "loss"); v.Exists() {
		val := v.Float()
		point.Loss = &val
	}
	if v := gjson.GetBytes(body, "entropy"); v.Exists() {
		val := v.Float()
		point.Entropy = &val
	}
	if v := gjson.GetBytes(body, "valueLoss"); v.Exists() {
		val := v.Float()
		point.ValueLoss = &val
	}

	s.observeDiagnostics(runID, body)

	return s.enqueueOrWrite(ctx, "metrics", runID, point, func() error {
		_, err := s.storage.Mutation(ctx, "runs/metrics/append", storage.Args{"point": point})
		return err
	})
}

// IngestLogs parses a tolerant JSON body into a LogBatch, classifies its
// level by keyword if unset, caps it at MaxLogBatchBytes, and enqueues it.
func (s *Service) IngestLogs(ctx context.Context, body []byte) error {
	runID := gjson.GetBytes(body, "runId").String()
	if runID == "" {
		return apperrors.InvalidInput("runId", "required")
	}
	if !s.limiterFor(runID).Allow() {
		return apperrors.New(apperrors.ValidationError, "ingestion rate limit exceeded", 429).WithDetails("runId", runID)
	}

	message := gjson.GetBytes(body, "message").String()
	truncated := false
	if len(message) > runjob.MaxLogBatchBytes {
		message = message[:runjob.MaxLogBatchBytes-len(TruncationMarker)] + TruncationMarker
		truncated = true
	}

	level := runjob.LogLevel(gjson.GetBytes(body, "logLevel").String())
	if level == "" {
		level = classifyLevel(message)
	}

	metadata := map[string]string{}
	gjson.GetBytes(body, "metadata").ForEach(func(k, v gjson.Result) bool {
		metadata[k.String()] = v.String()
		return true
	})

	batch := runjob.LogBatch{
		RunID:     runID,
		Level:     level,
		Message:   message,
		Metadata:  metadata,
		Truncated: truncated,
		WallClock: time.Now().UTC(),
	}

	return s.enqueueOrWrite(ctx, "logs", runID, batch, func() error {
		_, err := s.storage.Mutation(ctx, "runs/logs/append", storage.Args{"batch": batch})
		return err
	})
}

// classifyLevel buckets a log line into error/warning/debug/info by keyword.
func classifyLevel(message string) runjob.LogLevel {
	upper := strings.ToUpper(message)
	switch {
	case strings.Contains(upper, "ERROR"), strings.Contains(upper, "FATAL"), strings.Contains(upper, "PANIC"):
		return runjob.LogError
	case strings.Contains(upper, "WARN"):
		return runjob.LogWarn
	case strings.Contains(upper, "DEBUG"):
		return runjob.LogDebug
	default:
		return runjob.LogInfo
	}
}
