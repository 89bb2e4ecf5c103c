package storage

import (
	"context"
	"testing"
	"time"

	"github.com/r3e-labs/rlstudio/internal/app/domain/runjob"
)

func TestMemoryRunLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	run := runjob.Run{RunID: "run-1", Status: runjob.StatusPending, SubmittedAt: time.Now()}

	if _, err := m.Mutation(ctx, "runs/create", Args{"run": run}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := m.Query(ctx, "runs/get", Args{"runId": "run-1"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.(runjob.Run).Status != runjob.StatusPending {
		t.Fatalf("expected pending, got %v", got.(runjob.Run).Status)
	}

	run.Status = runjob.StatusRunning
	if _, err := m.Mutation(ctx, "runs/update", Args{"run": run}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ = m.Query(ctx, "runs/get", Args{"runId": "run-1"})
	if got.(runjob.Run).Status != runjob.StatusRunning {
		t.Fatalf("expected running after update, got %v", got.(runjob.Run).Status)
	}

	if _, err := m.Mutation(ctx, "runs/update", Args{"run": runjob.Run{RunID: "missing"}}); err == nil {
		t.Fatal("expected error updating unknown run")
	}

	list, err := m.Query(ctx, "runs/list", Args{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.([]runjob.Run)) != 1 {
		t.Fatalf("expected 1 run in list, got %d", len(list.([]runjob.Run)))
	}
}

func TestMemoryMetricsAndLogs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	point := runjob.MetricPoint{RunID: "run-1", Step: 10, Reward: 1.5, WallClock: time.Now()}
	if _, err := m.Mutation(ctx, "runs/metrics/append", Args{"point": point}); err != nil {
		t.Fatalf("append metric: %v", err)
	}

	batch := runjob.LogBatch{RunID: "run-1", Level: runjob.LogLevel("info"), Message: "hello", WallClock: time.Now()}
	if _, err := m.Mutation(ctx, "runs/logs/append", Args{"batch": batch}); err != nil {
		t.Fatalf("append log: %v", err)
	}

	metrics, err := m.Query(ctx, "runs/metrics/list", Args{"runId": "run-1"})
	if err != nil {
		t.Fatalf("list metrics: %v", err)
	}
	if len(metrics.([]runjob.MetricPoint)) != 1 {
		t.Fatalf("expected 1 metric point, got %d", len(metrics.([]runjob.MetricPoint)))
	}

	logs, err := m.Query(ctx, "runs/logs/list", Args{"runId": "run-1"})
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs.([]runjob.LogBatch)) != 1 {
		t.Fatalf("expected 1 log batch, got %d", len(logs.([]runjob.LogBatch)))
	}
}

func TestMemoryUnknownPaths(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Query(ctx, "bogus/path", Args{}); err == nil {
		t.Fatal("expected error for unknown query path")
	}
	if _, err := m.Mutation(ctx, "bogus/path", Args{}); err == nil {
		t.Fatal("expected error for unknown mutation path")
	}
}
