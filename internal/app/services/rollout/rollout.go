// Package rollout drives the simulator kernel and policy layer through a
// complete episode, with bounded-parallel and cancellable batch variants.
package rollout

import (
	"context"
	"math"
	"math/rand"
	"strings"

	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
	"github.com/r3e-labs/rlstudio/internal/app/services/policy"
	"github.com/r3e-labs/rlstudio/internal/app/services/simulator"
	"github.com/r3e-labs/rlstudio/pkg/apperrors"
)

// Callback is invoked after every step of a rollout. A panic in it is
// recovered and swallowed: streaming is best-effort and never aborts the
// rollout.
type Callback func(step episode.StepRecord)

// Options configures a single rollout run.
type Options struct {
	Policy   policy.Kind
	Model    *policy.Model
	MaxSteps int
	Seed     int64
	Stream   Callback
}

// RunRollout simulates a single episode from spec.Init() to done or
// MaxSteps, returning the complete recorded trajectory. A cancelled ctx
// (e.g. a streaming consumer disconnecting) stops the episode at the next
// step boundary with terminationReason=cancelled.
func RunRollout(ctx context.Context, spec envspec.Spec, opts Options) (episode.Rollout, error) {
	return runCtx(ctx, spec, opts)
}

// runCtx is the shared rollout loop. A cancelled ctx stops the loop at the
// current step and marks the trajectory terminationReason=cancelled,
// without erroring: cancellation is a normal outcome for a batch caller
// , not a failure.
func runCtx(ctx context.Context, spec envspec.Spec, opts Options) (episode.Rollout, error) {
	// The [1, 10 000] ceiling binds the rollout/stream-rollout HTTP
	// request shape, not this driver: cancellation tests drive maxSteps
	// up to 1,000,000 directly against RunRollout/RunParallel. The façade
	// enforces the endpoint-level cap before it ever reaches here
	// (httpapi.decodeRolloutRequest).
	if opts.MaxSteps <= 0 {
		return episode.Rollout{}, apperrors.OutOfRange("maxSteps", 1, math.MaxInt32)
	}

	state, err := simulator.Init(spec)
	if err != nil {
		return episode.Rollout{}, err
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	result := episode.Rollout{Steps: make([]episode.StepRecord, 0, opts.MaxSteps)}

	for !state.Done && state.Step < opts.MaxSteps {
		select {
		case <-ctx.Done():
			state.Done = true
			state.TerminationReason = "cancelled"
		default:
		}
		if state.Done {
			break
		}

		action := policy.Select(opts.Policy, state, spec, rng, opts.Model)
		next := simulator.Step(state, action, spec, opts.MaxSteps)

		stepReward := next.TotalReward - state.TotalReward
		record := episode.StepRecord{State: next, Action: action, Reward: stepReward, Done: next.Done}
		result.Steps = append(result.Steps, record)

		if opts.Stream != nil {
			safeStream(opts.Stream, record)
		}

		state = next
	}

	result.TotalReward = state.TotalReward
	result.EpisodeLength = state.Step
	result.TerminationReason = state.TerminationReason
	result.Success = episodeSucceeded(&state, spec)
	return result, nil
}

// episodeSucceeded derives success from the terminal state itself: an agent
// ended within the proximity radius of a goal object, or a recorded event
// mentions "goal". The termination reason string is deliberately not
// consulted, so a custom-named rule firing on a goal tile still scores as a
// success.
func episodeSucceeded(state *episode.State, spec envspec.Spec) bool {
	if simulator.Evaluate(envspec.Condition{Kind: envspec.ConditionReachGoal}, state, spec) {
		return true
	}
	for _, ev := range state.Info.Events {
		if strings.Contains(strings.ToLower(ev), "goal") {
			return true
		}
	}
	return false
}

// safeStream recovers a panicking callback so a faulty consumer cannot
// crash the rollout it is observing.
func safeStream(cb Callback, record episode.StepRecord) {
	defer func() { _ = recover() }()
	cb(record)
}

// RunOutcome pairs a rollout with the seed that produced it, for batch
// callers that need to correlate results back to their seeds.
type RunOutcome struct {
	Seed    int64
	Rollout episode.Rollout
	Err     error
}

// cancelledOutcome builds a zero-length rollout flagged as cancelled, used
// by RunParallel when ctx is already done before a worker starts.
func cancelledOutcome(seed int64) RunOutcome {
	return RunOutcome{
		Seed: seed,
		Rollout: episode.Rollout{
			TerminationReason: "cancelled",
		},
	}
}
