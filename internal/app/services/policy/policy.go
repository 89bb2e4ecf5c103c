// Package policy implements action selection over an EpisodeState: random,
// greedy-with-obstacle-avoidance, and trained-model inference.
package policy

import (
	"math/rand"

	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
)

// Kind names one of the three supported policy families.
type Kind string

const (
	KindRandom       Kind = "random"
	KindGreedy       Kind = "greedy"
	KindTrainedModel Kind = "trained_model"
)

// Policy selects an action for the current state. Implementations must be
// deterministic given their injected RNG: seed handling is
// the caller's concern, not the policy's.
type Policy interface {
	Select(state episode.State, spec envspec.Spec) episode.Action
}

// Select dispatches to the named policy. rng drives the random policy and
// the trained_model fallback (greedy does not draw from it); model is
// required (and ignored otherwise) for trained_model.
func Select(kind Kind, state episode.State, spec envspec.Spec, rng *rand.Rand, model *Model) episode.Action {
	switch kind {
	case KindGreedy:
		return NewGreedy(rng).Select(state, spec)
	case KindTrainedModel:
		return NewTrainedModel(model, rng).Select(state, spec)
	default:
		return NewRandom(rng).Select(state, spec)
	}
}
