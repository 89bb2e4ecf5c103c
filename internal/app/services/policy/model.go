package policy

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
	"github.com/r3e-labs/rlstudio/pkg/apperrors"
)

// AlgorithmFamily names the detected training algorithm behind a serialized
// model, inferred from embedded metadata rather than a caller-supplied flag.
type AlgorithmFamily string

const (
	AlgorithmPPO     AlgorithmFamily = "ppo"
	AlgorithmDQN     AlgorithmFamily = "dqn"
	AlgorithmSAC     AlgorithmFamily = "sac"
	AlgorithmUnknown AlgorithmFamily = "unknown"
)

// Model is a loaded, ready-to-query trained policy. Model objects are
// cached with a 1-hour TTL; loading is the caller's
// concern (ModelLoader), not the Model type itself.
type Model struct {
	URL       string
	Algorithm AlgorithmFamily
	// Weights is a placeholder for the deserialized parameter blob; the
	// simulation core treats models as a black box that maps an observation
	// vector to either a discrete action index or a continuous delta.
	Weights []byte
	infer   func(obs []float64) []float64
}

// ModelMetadata is the small header every serialized model blob carries,
// used to detect the algorithm family without parsing the full weights.
type ModelMetadata struct {
	Algorithm AlgorithmFamily `json:"algorithm"`
}

// DecodeModel parses a serialized model blob's metadata header and builds a
// Model around a deterministic inference function. A real deployment would
// deserialize framework-specific weights here; this kernel only needs the
// shape of the inference boundary (observation vector in, action vector
// out).
func DecodeModel(url string, blob []byte) (*Model, error) {
	var meta ModelMetadata
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &meta); err != nil {
			return nil, apperrors.InvalidInput("model", fmt.Sprintf("could not parse model metadata: %v", err))
		}
	}
	if meta.Algorithm == "" {
		meta.Algorithm = AlgorithmUnknown
	}
	return &Model{
		URL:       url,
		Algorithm: meta.Algorithm,
		Weights:   blob,
		infer:     deterministicInference(blob),
	}, nil
}

// deterministicInference builds a tiny, deterministic stand-in policy
// function from the model bytes, so that loading "the same" model URL twice
// always produces the same action sequence.
func deterministicInference(blob []byte) func([]float64) []float64 {
	seed := int64(1)
	for _, b := range blob {
		seed = seed*31 + int64(b)
	}
	rng := rand.New(rand.NewSource(seed))
	weights := [4]float64{rng.Float64(), rng.Float64(), rng.Float64(), rng.Float64()}
	return func(obs []float64) []float64 {
		out := make([]float64, len(obs))
		for i, v := range obs {
			out[i] = v*weights[i%len(weights)] - weights[(i+1)%len(weights)]
		}
		return out
	}
}

// TrainedModel converts a loaded Model's raw output into the spec's action
// space: int→named discrete, vector→continuous list.
type TrainedModel struct {
	model *Model
	rng   *rand.Rand
}

// NewTrainedModel builds a TrainedModel policy. A nil model degrades to
// Random so a misconfigured rollout still produces a deterministic,
// non-panicking trajectory.
func NewTrainedModel(model *Model, rng *rand.Rand) *TrainedModel {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &TrainedModel{model: model, rng: rng}
}

// Select implements Policy.
func (p *TrainedModel) Select(state episode.State, spec envspec.Spec) episode.Action {
	if p.model == nil {
		return NewRandom(p.rng).Select(state, spec)
	}
	if len(spec.Agents) > 1 {
		out := make(map[string]episode.Action, len(spec.Agents))
		for _, a := range spec.Agents {
			out[a.ID] = p.selectFor(a.ID, state, spec)
		}
		return episode.MultiAction(out)
	}
	if len(spec.Agents) == 0 {
		return episode.DiscreteAction("up")
	}
	return p.selectFor(spec.Agents[0].ID, state, spec)
}

func (p *TrainedModel) selectFor(agentID string, state episode.State, spec envspec.Spec) episode.Action {
	idx := state.AgentIndex(agentID)
	obs := observationVector(state, idx)
	out := p.model.infer(obs)

	if spec.ActionSpace.Kind == envspec.ActionSpaceContinuous {
		dx, dy := 0.0, 0.0
		if len(out) > 0 {
			dx = clampUnit(out[0])
		}
		if len(out) > 1 {
			dy = clampUnit(out[1])
		}
		return episode.ContinuousAction(dx, dy)
	}

	actions := spec.ActionSpace.Actions
	if len(actions) == 0 {
		actions = []string{"up", "down", "left", "right"}
	}
	best := 0
	for i := 1; i < len(out) && i < len(actions); i++ {
		if out[i] > out[best] {
			best = i
		}
	}
	if best >= len(actions) {
		best = 0
	}
	return episode.DiscreteAction(actions[best])
}

func observationVector(state episode.State, agentIdx int) []float64 {
	if agentIdx < 0 || agentIdx >= len(state.Agents) {
		return []float64{0, 0}
	}
	a := state.Agents[agentIdx]
	return []float64{a.Position.X, a.Position.Y}
}

func clampUnit(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
