package ingestion_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-labs/rlstudio/internal/app/domain/runjob"
	"github.com/r3e-labs/rlstudio/internal/app/services/ingestion"
	"github.com/r3e-labs/rlstudio/internal/app/storage"
)

// TestIngestMetricRequiresRunID: parsing is tolerant of missing optional
// fields, but a missing runId is rejected outright rather than silently
// dropped.
func TestIngestMetricRequiresRunID(t *testing.T) {
	store := storage.NewMemory()
	svc := ingestion.NewService(nil, store, nil)

	err := svc.IngestMetric(context.Background(), []byte(`{"step": 1, "reward": 0.5}`))
	require.Error(t, err)
}

// TestIngestMetricWriteThroughWithoutRedis exercises the nil-Redis
// write-through path: a single-node deployment persists straight to storage.
func TestIngestMetricWriteThroughWithoutRedis(t *testing.T) {
	store := storage.NewMemory()
	svc := ingestion.NewService(nil, store, nil)

	body, _ := json.Marshal(map[string]interface{}{
		"runId":  "run-1",
		"step":   10,
		"reward": 1.5,
		"loss":   0.02,
	})
	require.NoError(t, svc.IngestMetric(context.Background(), body))

	got, err := store.Query(context.Background(), "runs/metrics/list", storage.Args{"runId": "run-1"})
	require.NoError(t, err)
	points := got.([]runjob.MetricPoint)
	require.Len(t, points, 1)
	assert.Equal(t, int64(10), points[0].Step)
	assert.InDelta(t, 1.5, points[0].Reward, 1e-9)
	require.NotNil(t, points[0].Loss)
	assert.InDelta(t, 0.02, *points[0].Loss, 1e-9)
}

// TestIngestMetricOmittedOptionalFieldsStayNil checks gjson's tolerant
// parsing leaves absent optional fields (loss/entropy/valueLoss) nil rather
// than coercing them to zero values that would be indistinguishable from a
// real zero report.
func TestIngestMetricOmittedOptionalFieldsStayNil(t *testing.T) {
	store := storage.NewMemory()
	svc := ingestion.NewService(nil, store, nil)

	body, _ := json.Marshal(map[string]interface{}{"runId": "run-2", "step": 1, "reward": 0})
	require.NoError(t, svc.IngestMetric(context.Background(), body))

	got, err := store.Query(context.Background(), "runs/metrics/list", storage.Args{"runId": "run-2"})
	require.NoError(t, err)
	points := got.([]runjob.MetricPoint)
	require.Len(t, points, 1)
	assert.Nil(t, points[0].Loss)
	assert.Nil(t, points[0].Entropy)
	assert.Nil(t, points[0].ValueLoss)
}

// TestIngestMetricPerRunRateLimit: a burst beyond the allowance on one
// run is rejected, but a fresh runId is
// unaffected.
func TestIngestMetricPerRunRateLimit(t *testing.T) {
	store := storage.NewMemory()
	svc := ingestion.NewService(nil, store, nil)

	body := func(runID string) []byte {
		b, _ := json.Marshal(map[string]interface{}{"runId": runID, "step": 1, "reward": 1})
		return b
	}

	var rejected bool
	for i := 0; i < ingestion.Limit+10; i++ {
		if err := svc.IngestMetric(context.Background(), body("hot-run")); err != nil {
			rejected = true
			break
		}
	}
	assert.True(t, rejected, "expected the burst to exceed the per-runId limiter")

	require.NoError(t, svc.IngestMetric(context.Background(), body("cold-run")))
}

// TestIngestLogsRequiresRunID mirrors TestIngestMetricRequiresRunID for the
// log-batch path.
func TestIngestLogsRequiresRunID(t *testing.T) {
	store := storage.NewMemory()
	svc := ingestion.NewService(nil, store, nil)

	err := svc.IngestLogs(context.Background(), []byte(`{"message": "hello"}`))
	require.Error(t, err)
}

// TestIngestLogsClassifiesLevelByKeyword covers the keyword heuristic
// used when logLevel is omitted.
func TestIngestLogsClassifiesLevelByKeyword(t *testing.T) {
	cases := []struct {
		message string
		want    runjob.LogLevel
	}{
		{"ERROR: training diverged", runjob.LogError},
		{"FATAL crash in worker", runjob.LogError},
		{"WARN: reward scale looks off", runjob.LogWarn},
		{"debug: step=10", runjob.LogDebug},
		{"episode complete", runjob.LogInfo},
	}

	for _, tc := range cases {
		store := storage.NewMemory()
		svc := ingestion.NewService(nil, store, nil)
		body, _ := json.Marshal(map[string]interface{}{"runId": "run-x", "message": tc.message})
		require.NoError(t, svc.IngestLogs(context.Background(), body))

		got, err := store.Query(context.Background(), "runs/logs/list", storage.Args{"runId": "run-x"})
		require.NoError(t, err)
		batches := got.([]runjob.LogBatch)
		require.Len(t, batches, 1)
		assert.Equal(t, tc.want, batches[0].Level, "message %q", tc.message)
	}
}

// TestIngestLogsRespectsExplicitLevel ensures an explicit logLevel field
// overrides the keyword heuristic.
func TestIngestLogsRespectsExplicitLevel(t *testing.T) {
	store := storage.NewMemory()
	svc := ingestion.NewService(nil, store, nil)

	body, _ := json.Marshal(map[string]interface{}{
		"runId":    "run-y",
		"message":  "ERROR looking message but explicitly tagged debug",
		"logLevel": "debug",
	})
	require.NoError(t, svc.IngestLogs(context.Background(), body))

	got, err := store.Query(context.Background(), "runs/logs/list", storage.Args{"runId": "run-y"})
	require.NoError(t, err)
	batches := got.([]runjob.LogBatch)
	require.Len(t, batches, 1)
	assert.Equal(t, runjob.LogDebug, batches[0].Level)
}

// TestIngestLogsTruncatesOversizedBatch covers the MaxLogBatchBytes cap
// and its truncation marker on the batch.
func TestIngestLogsTruncatesOversizedBatch(t *testing.T) {
	store := storage.NewMemory()
	svc := ingestion.NewService(nil, store, nil)

	huge := strings.Repeat("x", runjob.MaxLogBatchBytes+500)
	body, _ := json.Marshal(map[string]interface{}{"runId": "run-z", "message": huge})
	require.NoError(t, svc.IngestLogs(context.Background(), body))

	got, err := store.Query(context.Background(), "runs/logs/list", storage.Args{"runId": "run-z"})
	require.NoError(t, err)
	batches := got.([]runjob.LogBatch)
	require.Len(t, batches, 1)
	assert.True(t, batches[0].Truncated)
	assert.Len(t, batches[0].Message, runjob.MaxLogBatchBytes)
	assert.True(t, strings.HasSuffix(batches[0].Message, ingestion.TruncationMarker))
}

// TestIngestLogsCapturesMetadata checks arbitrary metadata keys survive the
// tolerant gjson walk into a string map.
func TestIngestLogsCapturesMetadata(t *testing.T) {
	store := storage.NewMemory()
	svc := ingestion.NewService(nil, store, nil)

	body, _ := json.Marshal(map[string]interface{}{
		"runId":   "run-meta",
		"message": "checkpoint saved",
		"metadata": map[string]interface{}{
			"worker": "0",
			"epoch":  "3",
		},
	})
	require.NoError(t, svc.IngestLogs(context.Background(), body))

	got, err := store.Query(context.Background(), "runs/logs/list", storage.Args{"runId": "run-meta"})
	require.NoError(t, err)
	batches := got.([]runjob.LogBatch)
	require.Len(t, batches, 1)
	assert.Equal(t, "0", batches[0].Metadata["worker"])
	assert.Equal(t, "3", batches[0].Metadata["epoch"])
}

// TestIngestAppendOnlyOrderingPerRun checks that multiple ingests for the
// same runId accumulate in call order rather than overwriting each other.
func TestIngestAppendOnlyOrderingPerRun(t *testing.T) {
	store := storage.NewMemory()
	svc := ingestion.NewService(nil, store, nil)

	for step := 1; step <= 3; step++ {
		body, _ := json.Marshal(map[string]interface{}{"runId": "run-order", "step": step, "reward": float64(step)})
		require.NoError(t, svc.IngestMetric(context.Background(), body))
	}

	got, err := store.Query(context.Background(), "runs/metrics/list", storage.Args{"runId": "run-order"})
	require.NoError(t, err)
	points := got.([]runjob.MetricPoint)
	require.Len(t, points, 3)
	for i, p := range points {
		assert.Equal(t, int64(i+1), p.Step)
	}
}

// Diagnostics fields posted alongside a metric point accumulate into the
// run's rolling tracker, readable via Diagnostics.
func TestIngestMetricAccumulatesDiagnostics(t *testing.T) {
	store := storage.NewMemory()
	svc := ingestion.NewService(nil, store, nil)

	for _, entropy := range []float64{1.0, 3.0} {
		body, _ := json.Marshal(map[string]interface{}{
			"runId":        "run-diag",
			"step":         1,
			"reward":       0.0,
			"entropy":      entropy,
			"klDivergence": 0.25,
			"gradNorm":     2.0,
		})
		require.NoError(t, svc.IngestMetric(context.Background(), body))
	}

	diag, ok := svc.Diagnostics("run-diag")
	require.True(t, ok)
	assert.Equal(t, 2, diag.PolicyEntropy.Count)
	assert.InDelta(t, 2.0, diag.PolicyEntropy.Mean, 1e-9)
	assert.InDelta(t, 0.25, diag.KLDivergence.Mean, 1e-9)
	assert.Equal(t, 2, diag.GradientNorm.Count)

	_, ok = svc.Diagnostics("run-unknown")
	assert.False(t, ok)
}
