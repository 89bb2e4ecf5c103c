package service

import (
	"context"
	"time"
)

// ObservationHooks captures optional start/complete callbacks around an
// operation: a rollout run, an orchestrator launch, a poll tick. The
// metrics package builds hook instances that record Prometheus counters
// and durations; services stay free of any direct metrics dependency
// beyond calling StartObservation.
type ObservationHooks struct {
	OnStart    func(ctx context.Context, meta map[string]string)
	OnComplete func(ctx context.Context, meta map[string]string, err error, duration time.Duration)
}

// NoopObservationHooks is a safe default for services constructed without
// instrumentation.
var NoopObservationHooks = ObservationHooks{}

// StartObservation fires OnStart and returns the completion callback to
// invoke with the operation's final error (nil on success).
func StartObservation(ctx context.Context, hooks ObservationHooks, meta map[string]string) func(error) {
	if hooks.OnStart != nil {
		hooks.OnStart(ctx, meta)
	}
	start := time.Now()
	return func(err error) {
		if hooks.OnComplete != nil {
			hooks.OnComplete(ctx, meta, err, time.Since(start))
		}
	}
}
