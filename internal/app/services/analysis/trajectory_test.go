package analysis_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
	"github.com/r3e-labs/rlstudio/internal/app/services/analysis"
)

func trajectorySpec() envspec.Spec {
	return envspec.Spec{
		Agents: []envspec.Agent{{ID: "a0", Position: envspec.Position{X: 0, Y: 0}}},
	}
}

func stepAt(x, y float64, action string) episode.StepRecord {
	return episode.StepRecord{
		State: episode.State{
			Agents: []episode.AgentState{{ID: "a0", Position: envspec.Position{X: x, Y: y}}},
		},
		Action: episode.Action{Kind: episode.ActionDiscrete, Discrete: action},
	}
}

func TestAnalyzeTrajectoryStraightPathIsEfficient(t *testing.T) {
	steps := []episode.StepRecord{
		stepAt(1, 0, "right"),
		stepAt(2, 0, "right"),
		stepAt(3, 0, "right"),
	}
	out := analysis.AnalyzeTrajectory(steps, trajectorySpec())
	assert.InDelta(t, 1.0, out.PathEfficiency, 1e-9)
	assert.InDelta(t, 0.0, out.Entropy, 1e-9) // single action, zero entropy
}

func TestAnalyzeTrajectoriesAggregatesAcrossEpisodes(t *testing.T) {
	// Episode A walks right along y=0; episode B walks up along x=0. Their
	// per-episode entropies are both zero (one action each), so the batch
	// mean is zero with zero std, while the per-step ensemble entropy is 1
	// bit (two equally likely actions at every tick).
	a := episode.Rollout{Steps: []episode.StepRecord{
		stepAt(1, 0, "right"),
		stepAt(2, 0, "right"),
	}}
	b := episode.Rollout{Steps: []episode.StepRecord{
		stepAt(0, 1, "up"),
		stepAt(0, 2, "up"),
	}}

	out := analysis.AnalyzeTrajectories([]episode.Rollout{a, b}, trajectorySpec())
	assert.InDelta(t, 0.0, out.MeanEntropy, 1e-9)
	assert.InDelta(t, 0.0, out.StdEntropy, 1e-9)
	require.Len(t, out.EntropyCurve, 2)
	assert.InDelta(t, 1.0, out.EntropyCurve[0], 1e-9)
	assert.InDelta(t, 1.0, out.EntropyCurve[1], 1e-9)

	// Aligned per-step distances: step 0 is |(1,0)-(0,1)| = sqrt2, step 1 is
	// |(2,0)-(0,2)| = 2*sqrt2; one pair, so the mean is their average.
	assert.InDelta(t, (1.4142135624+2.8284271247)/2, out.MeanDiversity, 1e-6)
}

func TestAnalyzeTrajectoriesEmptyInputIsSafe(t *testing.T) {
	out := analysis.AnalyzeTrajectories(nil, trajectorySpec())
	assert.NotEmpty(t, out.Warnings)
	assert.Empty(t, out.EntropyCurve)
}
