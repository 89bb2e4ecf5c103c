package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/r3e-labs/rlstudio/internal/app/domain/runjob"
	"github.com/r3e-labs/rlstudio/pkg/apperrors"
)

// Memory is a thread-safe in-memory Client implementing the run/metric/log
// paths the orchestrator and ingestion services depend on. It is intended
// for tests and for a single-node deployment without Postgres configured.
type Memory struct {
	mu      sync.RWMutex
	runs    map[string]runjob.Run
	metrics map[string][]runjob.MetricPoint
	logs    map[string][]runjob.LogBatch
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		runs:    make(map[string]runjob.Run),
		metrics: make(map[string][]runjob.MetricPoint),
		logs:    make(map[string][]runjob.LogBatch),
	}
}

var _ Client = (*Memory)(nil)

// Query implements Client.
func (m *Memory) Query(_ context.Context, path string, args Args) (interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch path {
	case "runs/get":
		runID, _ := args["runId"].(string)
		run, ok := m.runs[runID]
		if !ok {
			return nil, apperrors.ResourceNotFound("run", runID)
		}
		return run, nil
	case "runs/list":
		out := make([]runjob.Run, 0, len(m.runs))
		for _, r := range m.runs {
			out = append(out, r)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
		return out, nil
	case "runs/metrics/list":
		runID, _ := args["runId"].(string)
		return append([]runjob.MetricPoint(nil), m.metrics[runID]...), nil
	case "runs/logs/list":
		runID, _ := args["runId"].(string)
		return append([]runjob.LogBatch(nil), m.logs[runID]...), nil
	default:
		return nil, apperrors.ResourceNotFound("query-path", path)
	}
}

// Mutation implements Client.
func (m *Memory) Mutation(_ context.Context, path string, args Args) (interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch path {
	case "runs/create":
		run, _ := args["run"].(runjob.Run)
		m.runs[run.RunID] = run
		return run, nil
	case "runs/update":
		run, _ := args["run"].(runjob.Run)
		if _, ok := m.runs[run.RunID]; !ok {
			return nil, apperrors.ResourceNotFound("run", run.RunID)
		}
		m.runs[run.RunID] = run
		return run, nil
	case "runs/metrics/append":
		point, _ := args["point"].(runjob.MetricPoint)
		m.metrics[point.RunID] = append(m.metrics[point.RunID], point)
		return nil, nil
	case "runs/logs/append":
		batch, _ := args["batch"].(runjob.LogBatch)
		m.logs[batch.RunID] = append(m.logs[batch.RunID], batch)
		return nil, nil
	default:
		return nil, apperrors.ResourceNotFound("mutation-path", path)
	}
}
