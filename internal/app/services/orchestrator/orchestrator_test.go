package orchestrator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-labs/rlstudio/internal/app/compute"
	"github.com/r3e-labs/rlstudio/internal/app/domain/runjob"
	"github.com/r3e-labs/rlstudio/internal/app/services/orchestrator"
	"github.com/r3e-labs/rlstudio/internal/app/storage"
)

// fakeBackend is an in-memory compute.Backend stand-in whose status can be
// driven step-by-step by the test, exercising the orchestrator's state
// machine without a real cloud dispatcher.
type fakeBackend struct {
	mu      sync.Mutex
	nextJob int
	status  map[string]compute.JobState
	cancels map[string]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{status: map[string]compute.JobState{}, cancels: map[string]bool{}}
}

func (f *fakeBackend) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextJob
}

func (f *fakeBackend) Submit(ctx context.Context, manifestPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextJob++
	jobID := "job-" + time.Now().Format("150405.000000") + string(rune('a'+f.nextJob))
	f.status[jobID] = compute.JobState{JobID: jobID, Status: compute.StatusQueued}
	return jobID, nil
}

func (f *fakeBackend) Status(ctx context.Context, jobID string) (compute.JobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status[jobID], nil
}

func (f *fakeBackend) Logs(ctx context.Context, jobID string, since time.Time) (string, error) {
	return "line1\nline2", nil
}

func (f *fakeBackend) Cancel(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels[jobID] = true
	f.status[jobID] = compute.JobState{JobID: jobID, Status: compute.StatusCancelled}
	return nil
}

func (f *fakeBackend) setStatus(jobID string, s compute.Status, progress float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.status[jobID]
	st.Status = s
	st.Progress = progress
	f.status[jobID] = st
}

func baseConfig() runjob.RunConfig {
	return runjob.RunConfig{
		Algorithm:       "ppo",
		EnvironmentSpec: "env-1",
		Accelerator:     "cpu",
		MetricsInterval: time.Second,
	}
}

// TestOrchestratorLifecycle checks the full happy path: a run advances
// pending -> running -> succeeded without going backward, ending at
// progress=1.0.
func TestOrchestratorLifecycle(t *testing.T) {
	backend := newFakeBackend()
	store := storage.NewMemory()
	svc := orchestrator.NewService(store, backend, nil)

	run, err := svc.Launch(context.Background(), "", baseConfig())
	require.NoError(t, err)
	assert.Equal(t, runjob.StatusPending, run.Status)

	backend.setStatus(run.JobID, compute.StatusRunning, 0.5)
	require.NoError(t, svc.SyncMetadata(context.Background(), run.RunID))
	got, err := svc.GetStatus(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, runjob.StatusRunning, got.Status)

	backend.setStatus(run.JobID, compute.StatusSucceeded, 1.0)
	require.NoError(t, svc.SyncMetadata(context.Background(), run.RunID))
	got, err = svc.GetStatus(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, runjob.StatusSucceeded, got.Status)
	assert.Equal(t, 1.0, got.Progress)
}

// Two anonymous launches of the same config never collide.
func TestLaunchAssignsDistinctRunIDs(t *testing.T) {
	backend := newFakeBackend()
	store := storage.NewMemory()
	svc := orchestrator.NewService(store, backend, nil)

	a, err := svc.Launch(context.Background(), "", baseConfig())
	require.NoError(t, err)
	b, err := svc.Launch(context.Background(), "", baseConfig())
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)
}

// A repeat Launch for a known runId returns the stored record instead of
// submitting a second backend job.
func TestLaunchIsIdempotentOverRunID(t *testing.T) {
	backend := newFakeBackend()
	store := storage.NewMemory()
	svc := orchestrator.NewService(store, backend, nil)

	a, err := svc.Launch(context.Background(), "run-fixed", baseConfig())
	require.NoError(t, err)
	require.Equal(t, "run-fixed", a.RunID)

	b, err := svc.Launch(context.Background(), "run-fixed", baseConfig())
	require.NoError(t, err)
	assert.Equal(t, a.JobID, b.JobID)
	assert.Equal(t, 1, backend.submitCount())
}

// TestCancelAfterSucceededIsNoOp: cancel on an already-terminal run is an
// ack, not an error.
func TestCancelAfterSucceededIsNoOp(t *testing.T) {
	backend := newFakeBackend()
	store := storage.NewMemory()
	svc := orchestrator.NewService(store, backend, nil)

	run, err := svc.Launch(context.Background(), "", baseConfig())
	require.NoError(t, err)

	backend.setStatus(run.JobID, compute.StatusSucceeded, 1.0)
	require.NoError(t, svc.SyncMetadata(context.Background(), run.RunID))

	err = svc.Cancel(context.Background(), run.RunID)
	assert.NoError(t, err)

	got, err := svc.GetStatus(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, runjob.StatusSucceeded, got.Status)
}

func TestCancelTransitionsRunningToCancelled(t *testing.T) {
	backend := newFakeBackend()
	store := storage.NewMemory()
	svc := orchestrator.NewService(store, backend, nil)

	run, err := svc.Launch(context.Background(), "", baseConfig())
	require.NoError(t, err)

	backend.setStatus(run.JobID, compute.StatusRunning, 0.2)
	require.NoError(t, svc.SyncMetadata(context.Background(), run.RunID))

	require.NoError(t, svc.Cancel(context.Background(), run.RunID))
	got, err := svc.GetStatus(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, runjob.StatusCancelled, got.Status)
}

func TestGetLogsTruncatesToMaxLines(t *testing.T) {
	backend := newFakeBackend()
	store := storage.NewMemory()
	svc := orchestrator.NewService(store, backend, nil)

	run, err := svc.Launch(context.Background(), "", baseConfig())
	require.NoError(t, err)

	logs, truncated, err := svc.GetLogs(context.Background(), run.RunID, 1)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Equal(t, "line2", logs)
}
