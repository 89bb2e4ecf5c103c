package policy_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
	"github.com/r3e-labs/rlstudio/internal/app/services/policy"
)

func discreteSpec() envspec.Spec {
	return envspec.Spec{
		WorldKind:   envspec.WorldGrid,
		Width:       5,
		Height:      5,
		CellSize:    1,
		Agents:      []envspec.Agent{{ID: "a0", Position: envspec.Position{X: 0, Y: 0}}},
		Objects:     []envspec.Object{{ID: "goal", Type: envspec.ObjectGoal, Position: envspec.Position{X: 4, Y: 4}}},
		ActionSpace: envspec.ActionSpace{Kind: envspec.ActionSpaceDiscrete, Actions: []string{"up", "down", "left", "right"}},
	}
}

func initState(t *testing.T, spec envspec.Spec) episode.State {
	t.Helper()
	return episode.State{
		Agents: []episode.AgentState{{ID: spec.Agents[0].ID, Position: spec.Agents[0].Position}},
	}
}

func TestRandomSelectsWithinActionSpace(t *testing.T) {
	spec := discreteSpec()
	rng := rand.New(rand.NewSource(7))
	p := policy.NewRandom(rng)
	state := initState(t, spec)

	for i := 0; i < 20; i++ {
		action := p.Select(state, spec)
		require.Equal(t, episode.ActionDiscrete, action.Kind)
		assert.Contains(t, spec.ActionSpace.Actions, action.Discrete)
	}
}

func TestRandomIsDeterministicGivenSeed(t *testing.T) {
	spec := discreteSpec()
	state := initState(t, spec)

	run := func() []episode.Action {
		rng := rand.New(rand.NewSource(42))
		p := policy.NewRandom(rng)
		var out []episode.Action
		for i := 0; i < 10; i++ {
			out = append(out, p.Select(state, spec))
		}
		return out
	}

	assert.Equal(t, run(), run())
}

func TestRandomMultiAgentReturnsMap(t *testing.T) {
	spec := discreteSpec()
	spec.Agents = append(spec.Agents, envspec.Agent{ID: "a1", Position: envspec.Position{X: 1, Y: 1}})
	state := episode.State{Agents: []episode.AgentState{
		{ID: "a0", Position: envspec.Position{X: 0, Y: 0}},
		{ID: "a1", Position: envspec.Position{X: 1, Y: 1}},
	}}

	rng := rand.New(rand.NewSource(1))
	action := policy.NewRandom(rng).Select(state, spec)
	require.Equal(t, episode.ActionMulti, action.Kind)
	assert.Len(t, action.Multi, 2)
}

func TestRandomContinuousReturnsUnitBoxVector(t *testing.T) {
	spec := discreteSpec()
	spec.ActionSpace = envspec.ActionSpace{Kind: envspec.ActionSpaceContinuous, Dims: 2, Range: [2]float64{-1, 1}}
	state := initState(t, spec)

	rng := rand.New(rand.NewSource(3))
	p := policy.NewRandom(rng)
	for i := 0; i < 20; i++ {
		action := p.Select(state, spec)
		require.Equal(t, episode.ActionContinuous, action.Kind)
		assert.GreaterOrEqual(t, action.Continuous[0], -1.0)
		assert.LessOrEqual(t, action.Continuous[0], 1.0)
	}
}

func TestGreedyMovesTowardGoal(t *testing.T) {
	spec := discreteSpec()
	state := initState(t, spec)

	g := policy.NewGreedy(rand.New(rand.NewSource(1)))
	action := g.Select(state, spec)
	require.Equal(t, episode.ActionDiscrete, action.Kind)
	assert.Contains(t, []string{"right", "down"}, action.Discrete)
}

func TestGreedyAvoidsObstacle(t *testing.T) {
	spec := discreteSpec()
	spec.Objects = append(spec.Objects, envspec.Object{ID: "wall", Type: envspec.ObjectWall, Position: envspec.Position{X: 1, Y: 0}})
	state := initState(t, spec)

	g := policy.NewGreedy(rand.New(rand.NewSource(1)))
	action := g.Select(state, spec)
	// "right" would walk straight into the wall; greedy must try a
	// perpendicular alternative instead.
	assert.NotEqual(t, "right", action.Discrete)
}

func TestGreedyContinuousUnitVectorTowardGoal(t *testing.T) {
	spec := envspec.Spec{
		WorldKind:   envspec.WorldContinuous2D,
		Width:       10,
		Height:      10,
		Agents:      []envspec.Agent{{ID: "a0", Position: envspec.Position{X: 0, Y: 0}}},
		Objects:     []envspec.Object{{ID: "goal", Type: envspec.ObjectGoal, Position: envspec.Position{X: 5, Y: 0}}},
		ActionSpace: envspec.ActionSpace{Kind: envspec.ActionSpaceContinuous, Dims: 2, Range: [2]float64{-1, 1}},
	}
	state := initState(t, spec)

	g := policy.NewGreedy(rand.New(rand.NewSource(1)))
	action := g.Select(state, spec)
	require.Equal(t, episode.ActionContinuous, action.Kind)
	assert.InDelta(t, 1.0, action.Continuous[0], 1e-9)
	assert.InDelta(t, 0.0, action.Continuous[1], 1e-9)
}

func TestGreedyContinuousZeroVectorWithinTolerance(t *testing.T) {
	spec := envspec.Spec{
		WorldKind:   envspec.WorldContinuous2D,
		Width:       10,
		Height:      10,
		Agents:      []envspec.Agent{{ID: "a0", Position: envspec.Position{X: 4.95, Y: 0}}},
		Objects:     []envspec.Object{{ID: "goal", Type: envspec.ObjectGoal, Position: envspec.Position{X: 5, Y: 0}}},
		ActionSpace: envspec.ActionSpace{Kind: envspec.ActionSpaceContinuous, Dims: 2, Range: [2]float64{-1, 1}},
	}
	state := episode.State{Agents: []episode.AgentState{{ID: "a0", Position: envspec.Position{X: 4.95, Y: 0}}}}

	g := policy.NewGreedy(rand.New(rand.NewSource(1)))
	action := g.Select(state, spec)
	assert.Equal(t, episode.ContinuousAction(0, 0), action)
}

func TestTrainedModelFallsBackToRandomWithoutModel(t *testing.T) {
	spec := discreteSpec()
	state := initState(t, spec)

	tm := policy.NewTrainedModel(nil, rand.New(rand.NewSource(1)))
	action := tm.Select(state, spec)
	require.Equal(t, episode.ActionDiscrete, action.Kind)
	assert.Contains(t, spec.ActionSpace.Actions, action.Discrete)
}

func TestDecodeModelDetectsAlgorithmFamily(t *testing.T) {
	blob := []byte(`{"algorithm":"ppo"}`)
	model, err := policy.DecodeModel("file://model.bin", blob)
	require.NoError(t, err)
	assert.Equal(t, policy.AlgorithmPPO, model.Algorithm)
}

func TestDecodeModelDefaultsToUnknownAlgorithm(t *testing.T) {
	model, err := policy.DecodeModel("file://model.bin", nil)
	require.NoError(t, err)
	assert.Equal(t, policy.AlgorithmUnknown, model.Algorithm)
}

func TestDecodeModelIsDeterministicGivenSameBlob(t *testing.T) {
	blob := []byte(`{"algorithm":"dqn"}`)
	a, err := policy.DecodeModel("u", blob)
	require.NoError(t, err)
	b, err := policy.DecodeModel("u", blob)
	require.NoError(t, err)

	spec := discreteSpec()
	state := initState(t, spec)
	tmA := policy.NewTrainedModel(a, rand.New(rand.NewSource(1)))
	tmB := policy.NewTrainedModel(b, rand.New(rand.NewSource(1)))
	assert.Equal(t, tmA.Select(state, spec), tmB.Select(state, spec))
}

func TestSelectDispatchesByKind(t *testing.T) {
	spec := discreteSpec()
	state := initState(t, spec)
	rng := rand.New(rand.NewSource(1))

	action := policy.Select(policy.KindGreedy, state, spec, rng, nil)
	assert.Equal(t, episode.ActionDiscrete, action.Kind)

	action = policy.Select(policy.KindRandom, state, spec, rng, nil)
	assert.Equal(t, episode.ActionDiscrete, action.Kind)
}
