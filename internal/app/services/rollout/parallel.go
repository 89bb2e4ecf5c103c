package rollout

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
)

// BatchOptions configures a parallel batch of rollouts.
type BatchOptions struct {
	Policy  Options
	N       int
	Workers int
	Seeds   []int64 // optional; defaults to Policy.Seed, +1, +2, ...
}

// defaultWorkers sizes the pool by physical cores: rollout workers are
// CPU-bound, so hyperthread siblings mostly add scheduling noise. Falls
// back to GOMAXPROCS-style logical count when the probe fails.
func defaultWorkers() int {
	if physical, err := cpu.Counts(false); err == nil && physical > 0 {
		return physical
	}
	return runtime.NumCPU()
}

// RunParallel runs N independent rollouts over a bounded worker pool
// (default one worker per physical core), honoring ctx cancellation: a
// cancelled run returns within the current in-flight step rather than
// waiting for every worker to reach MaxSteps.
func RunParallel(ctx context.Context, spec envspec.Spec, batch BatchOptions) ([]RunOutcome, error) {
	if batch.N <= 0 {
		return nil, nil
	}
	workers := batch.Workers
	if workers <= 0 {
		workers = defaultWorkers()
	}
	if workers > batch.N {
		workers = batch.N
	}

	seeds := batch.Seeds
	if len(seeds) < batch.N {
		seeds = make([]int64, batch.N)
		for i := range seeds {
			seeds[i] = batch.Policy.Seed + int64(i)
		}
	}

	results := make([]RunOutcome, batch.N)
	sem := semaphore.NewWeighted(int64(workers))

	// Workers are isolated: one rollout's error becomes that slot's failed
	// RunOutcome and never cancels siblings or aborts the batch, so the
	// group carries no error and shares the caller's ctx untouched.
	var group errgroup.Group

	for i := 0; i < batch.N; i++ {
		i := i
		if ctx.Err() != nil {
			results[i] = cancelledOutcome(seeds[i])
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = cancelledOutcome(seeds[i])
			continue
		}
		group.Go(func() error {
			defer sem.Release(1)
			opts := batch.Policy
			opts.Seed = seeds[i]
			out, err := runCtx(ctx, spec, opts)
			results[i] = RunOutcome{Seed: seeds[i], Rollout: out, Err: err}
			return nil
		})
	}

	_ = group.Wait()
	return results, nil
}

// RunVectorized runs B rollouts sharing one policy/seed-offset scheme.
// The kernel already isolates per-agent state into flat slices rather than
// a pointer graph, so a "vectorized" batch here is semantically identical
// to B independent RunRollouts with matched seeds. Hand-rolled
// SIMD-style array stacking buys nothing here for a slice of small
// structs, so the batch path reuses the parallel driver.
func RunVectorized(ctx context.Context, spec envspec.Spec, batch BatchOptions) ([]RunOutcome, error) {
	return RunParallel(ctx, spec, batch)
}
