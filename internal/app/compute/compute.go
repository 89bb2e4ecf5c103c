// Package compute defines the ComputeBackend capability the orchestrator
// submits workload manifests to, plus one concrete HTTP-based default
// implementation.
package compute

import (
	"context"
	"time"
)

// Status is the compute backend's native view of a submitted job, before
// the orchestrator maps it onto runjob.Status.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusPreempted Status = "preempted"
)

// JobState is the point-in-time status the backend reports for a jobId.
type JobState struct {
	JobID       string
	Status      Status
	Progress    float64
	CostPerHour float64
	NumNodes    int
	SpotUsed    bool
	Error       string
}

// Backend submits and manages compute jobs described by a workload
// manifest. HTTPBackend applies the per-op deadlines below on top of the
// caller's context.
type Backend interface {
	Submit(ctx context.Context, manifestPath string) (jobID string, err error)
	Status(ctx context.Context, jobID string) (JobState, error)
	Logs(ctx context.Context, jobID string, since time.Time) (string, error)
	Cancel(ctx context.Context, jobID string) error
}

// Deadlines for the four backend operations.
const (
	StatusDeadline = 30 * time.Second
	LogsDeadline   = 60 * time.Second
	LaunchDeadline = 300 * time.Second
	CancelDeadline = 30 * time.Second
)
