package analysis_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/r3e-labs/rlstudio/internal/app/domain/analysis"
	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
	"github.com/r3e-labs/rlstudio/internal/app/services/analysis"
)

func rewardSpec() envspec.Spec {
	return envspec.Spec{
		Rules: envspec.Rules{
			Rewards: []envspec.RewardRule{
				{ID: "step_penalty", Reward: -0.1, Condition: envspec.Condition{Kind: envspec.ConditionStep}},
				{ID: "unreachable", Reward: 5, Condition: envspec.Condition{Kind: envspec.ConditionReachGoal}},
			},
		},
	}
}

func stepsWithRewards() []episode.StepRecord {
	return []episode.StepRecord{
		{State: episode.State{Info: episode.Info{Rewards: []episode.RewardEvent{{RuleID: "step_penalty", Value: -0.1}}}}},
		{State: episode.State{Info: episode.Info{Rewards: []episode.RewardEvent{{RuleID: "step_penalty", Value: -0.1}}}}},
		{State: episode.State{Info: episode.Info{Rewards: []episode.RewardEvent{{RuleID: "step_penalty", Value: -0.1}}}}},
	}
}

func TestAnalyzeRolloutCreditsFiringRule(t *testing.T) {
	out := analysis.AnalyzeRollout(stepsWithRewards(), rewardSpec())
	credit := findRuleCredit(t, out, "step_penalty")
	assert.Equal(t, 3, credit.FireCount)
	assert.InDelta(t, -0.3, credit.Total, 1e-9)
	assert.InDelta(t, -0.1, credit.Mean, 1e-9)
	assert.InDelta(t, 1.0, credit.FireRate, 1e-9)
}

func TestAnalyzeRolloutFlagsUnreachableRule(t *testing.T) {
	out := analysis.AnalyzeRollout(stepsWithRewards(), rewardSpec())
	found := false
	for _, w := range out.Warnings {
		if w == "rule unreachable never fired: unreachable?" {
			found = true
		}
	}
	assert.True(t, found, "expected unreachable-rule warning, got %v", out.Warnings)
}

func TestAnalyzeRolloutEmptyInputIsSafe(t *testing.T) {
	out := analysis.AnalyzeRollout(nil, rewardSpec())
	assert.NotEmpty(t, out.Warnings)
	assert.Empty(t, out.Rules)
}

func TestAnalyzeTerminationsEmptyInputIsSafe(t *testing.T) {
	out := analysis.AnalyzeTerminations(nil)
	assert.NotEmpty(t, out.Warnings)
	assert.Empty(t, out.Counts)
}

func TestAnalyzeTerminationsCountsByReason(t *testing.T) {
	rollouts := []episode.Rollout{
		{TerminationReason: "goal_reached", EpisodeLength: 5},
		{TerminationReason: "goal_reached", EpisodeLength: 7},
		{TerminationReason: "max_steps", EpisodeLength: 50},
	}
	out := analysis.AnalyzeTerminations(rollouts)
	assert.Equal(t, 2, out.Counts["goal_reached"])
	assert.Equal(t, 1, out.Counts["max_steps"])
}

func TestAnalyzeTerminationsDetectsConflictingReasons(t *testing.T) {
	var rollouts []episode.Rollout
	for i := 0; i < 4; i++ {
		rollouts = append(rollouts, episode.Rollout{TerminationReason: "goal_reached", EpisodeLength: 5})
	}
	for i := 0; i < 4; i++ {
		rollouts = append(rollouts, episode.Rollout{TerminationReason: "hit_trap", EpisodeLength: 6})
	}
	out := analysis.AnalyzeTerminations(rollouts)
	assert.NotEmpty(t, out.ConflictingPairs)
}

func TestAnalyzeTrajectoryEmptyInputIsSafe(t *testing.T) {
	out := analysis.AnalyzeTrajectory(nil, envspec.Spec{})
	assert.NotEmpty(t, out.Warnings)
}

// findRuleCredit locates the RuleCredit for id, failing the test if absent.
func findRuleCredit(t *testing.T, out domain.RolloutAnalysis, id string) domain.RuleCredit {
	t.Helper()
	for _, r := range out.Rules {
		if r.RuleID == id {
			return r
		}
	}
	require.Failf(t, "rule not found", "no RuleCredit for %q in %v", id, out.Rules)
	return domain.RuleCredit{}
}

// TopRules ranks active rules by fire count (capped at 10) and never lists
// a rule that fired zero times.
func TestAnalyzeRolloutTopRulesRankedByFireCount(t *testing.T) {
	spec := envspec.Spec{
		Rules: envspec.Rules{
			Rewards: []envspec.RewardRule{
				{ID: "rare_big", Reward: 100, Condition: envspec.Condition{Kind: envspec.ConditionReachGoal}},
				{ID: "frequent_small", Reward: -0.1, Condition: envspec.Condition{Kind: envspec.ConditionStep}},
				{ID: "silent", Reward: 5, Condition: envspec.Condition{Kind: envspec.ConditionHitTrap}},
			},
		},
	}
	steps := []episode.StepRecord{
		{State: episode.State{Info: episode.Info{Rewards: []episode.RewardEvent{
			{RuleID: "frequent_small", Value: -0.1},
		}}}},
		{State: episode.State{Info: episode.Info{Rewards: []episode.RewardEvent{
			{RuleID: "frequent_small", Value: -0.1},
		}}}},
		{State: episode.State{Info: episode.Info{Rewards: []episode.RewardEvent{
			{RuleID: "frequent_small", Value: -0.1},
			{RuleID: "rare_big", Value: 100},
		}}}},
	}

	out := analysis.AnalyzeRollout(steps, spec)
	// Fire count, not reward magnitude, decides the order; "silent" never
	// fired and must not appear.
	require.Equal(t, []string{"frequent_small", "rare_big"}, out.TopRules)
}
