// Package orchestrator compiles a RunConfig into a workload manifest,
// launches it on a compute.Backend, and polls status/logs/progress until
// the run reaches a terminal state, with preemption recovery.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/r3e-labs/rlstudio/internal/app/compute"
	core "github.com/r3e-labs/rlstudio/internal/app/core/service"
	"github.com/r3e-labs/rlstudio/internal/app/domain/runjob"
	"github.com/r3e-labs/rlstudio/internal/app/metrics"
	"github.com/r3e-labs/rlstudio/internal/app/storage"
	"github.com/r3e-labs/rlstudio/internal/app/system"
	"github.com/r3e-labs/rlstudio/pkg/apperrors"
	"github.com/r3e-labs/rlstudio/pkg/logger"
)

var _ system.Service = (*Service)(nil)

// Service is the training-run orchestrator.
type Service struct {
	storage storage.Client
	backend compute.Backend
	log     *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	running bool
}

// NewService builds an orchestrator over the given storage/compute capabilities.
func NewService(store storage.Client, backend compute.Backend, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("orchestrator")
	}
	return &Service{
		storage: store,
		backend: backend,
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

// Name implements system.Service.
func (s *Service) Name() string { return "orchestrator" }

// Descriptor advertises the orchestrator's architectural placement.
func (s *Service) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         "orchestrator",
		Domain:       "training",
		Layer:        core.LayerEngine,
		Capabilities: []string{"launch", "poll", "cancel", "recover"},
	}
}

// Start begins the shared cron scheduler that drives SyncMetadata polling.
func (s *Service) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.cron = cron.New()
	s.cron.Start()
	s.running = true
	s.log.Info("orchestrator started")
	return nil
}

// Stop halts the scheduler and waits for in-flight jobs to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c := s.cron
	s.running = false
	s.cron = nil
	s.entries = make(map[string]cron.EntryID)
	s.mu.Unlock()

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("orchestrator stopped")
	return nil
}

// Launch compiles cfg into a workload manifest, submits it to the compute
// backend, and starts polling its status. Launch is idempotent over a
// caller-supplied runID: a repeat call for a known run returns the stored
// record without submitting a second job. An empty runID gets a fresh id.
func (s *Service) Launch(ctx context.Context, runID string, cfg runjob.RunConfig) (run runjob.Run, err error) {
	finish := core.StartObservation(ctx, metrics.OrchestratorLaunchHooks(), map[string]string{"run_id": runID})
	defer func() { finish(err) }()

	if runID == "" {
		runID = uuid.NewString()
	} else {
		existing, gerr := s.GetStatus(ctx, runID)
		switch {
		case gerr == nil:
			return existing, nil
		case apperrors.Get(gerr) == nil || apperrors.Get(gerr).Code != apperrors.NotFound:
			return runjob.Run{}, gerr
		}
	}

	manifest := compute.BuildManifest(runID, cfg)

	path, err := compute.WriteTempFile(manifest)
	if err != nil {
		return runjob.Run{}, err
	}
	defer os.Remove(path)

	jobID, err := s.backend.Submit(ctx, path)
	if err != nil {
		return runjob.Run{}, err
	}

	run = runjob.Run{
		RunID:       runID,
		JobID:       jobID,
		Status:      runjob.StatusPending,
		SubmittedAt: time.Now().UTC(),
		Config:      cfg,
	}
	if _, err := s.storage.Mutation(ctx, "runs/create", storage.Args{"run": run}); err != nil {
		return runjob.Run{}, err
	}

	s.schedulePoll(runID)
	return run, nil
}

// schedulePoll adds a cron entry that calls SyncMetadata for runID every
// few seconds, removed once the run reaches a terminal status.
func (s *Service) schedulePoll(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	id, err := s.cron.AddFunc("@every 10s", func() {
		if err := s.SyncMetadata(context.Background(), runID); err != nil {
			s.log.WithError(err).WithField("run_id", runID).Warn("sync metadata failed")
		}
	})
	if err != nil {
		s.log.WithError(err).WithField("run_id", runID).Warn("schedule poll failed")
		return
	}
	s.entries[runID] = id
}

func (s *Service) unschedulePoll(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	if id, ok := s.entries[runID]; ok {
		s.cron.Remove(id)
		delete(s.entries, runID)
	}
}

// GetStatus returns the stored Run record.
func (s *Service) GetStatus(ctx context.Context, runID string) (runjob.Run, error) {
	val, err := s.storage.Query(ctx, "runs/get", storage.Args{"runId": runID})
	if err != nil {
		return runjob.Run{}, err
	}
	run, ok := val.(runjob.Run)
	if !ok {
		return runjob.Run{}, apperrors.ResourceNotFound("run", runID)
	}
	return run, nil
}

// GetLogs fetches up to maxLines of log output for the run's backend job.
func (s *Service) GetLogs(ctx context.Context, runID string, maxLines int) (string, bool, error) {
	run, err := s.GetStatus(ctx, runID)
	if err != nil {
		return "", false, err
	}
	logs, err := s.backend.Logs(ctx, run.JobID, time.Time{})
	if err != nil {
		return "", false, err
	}
	lines := strings.Split(logs, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return logs, false, nil
	}
	return strings.Join(lines[len(lines)-maxLines:], "\n"), true, nil
}

// Cancel requests termination of a run. Cancelling an already-terminal run
// is a no-op ack, not an error.
func (s *Service) Cancel(ctx context.Context, runID string) error {
	run, err := s.GetStatus(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return nil
	}
	if err := s.backend.Cancel(ctx, run.JobID); err != nil {
		return err
	}
	run.Status = runjob.StatusCancelled
	if _, err := s.storage.Mutation(ctx, "runs/update", storage.Args{"run": run}); err != nil {
		return err
	}
	s.unschedulePoll(runID)
	return nil
}

// SyncMetadata is one poll tick: fetch backend status, advance the run's
// state machine, recover from preemption up to MaxRestarts, and persist.
func (s *Service) SyncMetadata(ctx context.Context, runID string) (err error) {
	finish := core.StartObservation(ctx, metrics.OrchestratorPollHooks(), map[string]string{"run_id": runID})
	defer func() { finish(err) }()

	run, err := s.GetStatus(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		s.unschedulePoll(runID)
		return nil
	}

	state, err := s.backend.Status(ctx, run.JobID)
	if err != nil {
		return apperrors.Orchestrator("sync-metadata", err)
	}

	if state.Status == compute.StatusPreempted {
		return s.recoverPreemption(ctx, run)
	}

	next := mapBackendStatus(state.Status)
	if err := run.Transition(next); err != nil {
		s.log.WithError(err).WithField("run_id", runID).Debug("ignored invalid status transition")
	} else {
		run.Status = next
	}

	run.Progress = state.Progress
	run.Resources.NumNodes = state.NumNodes
	run.Resources.SpotUsed = state.SpotUsed
	run.Resources.CostPerHour = state.CostPerHour
	if run.Resources.Accelerator == "" {
		run.Resources.Accelerator = string(run.Config.Accelerator)
	}
	run.Duration = time.Since(run.SubmittedAt)
	run.Cost = state.CostPerHour * run.Duration.Hours()
	run.LastLogUpdate = time.Now().UTC()
	if state.Error != "" {
		run.Error = state.Error
	}

	if _, err := s.storage.Mutation(ctx, "runs/update", storage.Args{"run": run}); err != nil {
		return err
	}
	if run.Status.Terminal() {
		s.unschedulePoll(runID)
	}
	return nil
}

// recoverPreemption resubmits a preempted job up to Config.MaxRestarts,
// failing the run once the budget is exhausted.
func (s *Service) recoverPreemption(ctx context.Context, run runjob.Run) error {
	maxRestarts := run.Config.MaxRestarts
	if maxRestarts <= 0 {
		maxRestarts = runjob.DefaultMaxRestarts
	}
	if run.Restarts >= maxRestarts {
		run.Status = runjob.StatusFailed
		run.Error = fmt.Sprintf("preempted after exhausting %d restarts", maxRestarts)
		_, err := s.storage.Mutation(ctx, "runs/update", storage.Args{"run": run})
		s.unschedulePoll(run.RunID)
		return err
	}

	manifest := compute.BuildManifest(run.RunID, run.Config)
	path, err := compute.WriteTempFile(manifest)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	jobID, err := s.backend.Submit(ctx, path)
	if err != nil {
		return apperrors.Orchestrator("recover-preemption", err)
	}

	run.JobID = jobID
	run.Restarts++
	run.Status = runjob.StatusRunning
	_, err = s.storage.Mutation(ctx, "runs/update", storage.Args{"run": run})
	return err
}

func mapBackendStatus(s compute.Status) runjob.Status {
	switch s {
	case compute.StatusQueued:
		return runjob.StatusPending
	case compute.StatusRunning:
		return runjob.StatusRunning
	case compute.StatusSucceeded:
		return runjob.StatusSucceeded
	case compute.StatusFailed:
		return runjob.StatusFailed
	case compute.StatusCancelled:
		return runjob.StatusCancelled
	default:
		return runjob.StatusRunning
	}
}
