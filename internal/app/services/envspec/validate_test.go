package envspec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/services/envspec"
)

func validSpec() domain.Spec {
	return domain.Spec{
		WorldKind:        domain.WorldGrid,
		Width:            5,
		Height:           5,
		CoordinateSystem: domain.CoordGrid,
		CellSize:         1,
		Agents:           []domain.Agent{{ID: "a0", Position: domain.Position{X: 0, Y: 0}}},
		Objects:          []domain.Object{{ID: "goal", Type: domain.ObjectGoal, Position: domain.Position{X: 4, Y: 4}}},
		ActionSpace:      domain.ActionSpace{Kind: domain.ActionSpaceDiscrete, Actions: []string{"up", "down", "left", "right"}},
		Rules: domain.Rules{
			Rewards:      []domain.RewardRule{{ID: "reach_goal", Reward: 10, Condition: domain.Condition{Kind: domain.ConditionReachGoal}}},
			Terminations: []domain.TerminationRule{{ID: "timeout", Condition: domain.Condition{Kind: domain.ConditionTimeout}}},
		},
	}
}

func TestValidateAcceptsWellFormedSpec(t *testing.T) {
	assert.NoError(t, envspec.Validate(validSpec()))
}

func TestValidateRejectsNoAgents(t *testing.T) {
	spec := validSpec()
	spec.Agents = nil
	assert.Error(t, envspec.Validate(spec))
}

func TestValidateRejectsOutOfBoundsAgent(t *testing.T) {
	spec := validSpec()
	spec.Agents[0].Position = domain.Position{X: 100, Y: 100}
	assert.Error(t, envspec.Validate(spec))
}

func TestValidateRejectsDuplicateAgentIDs(t *testing.T) {
	spec := validSpec()
	spec.Agents = append(spec.Agents, domain.Agent{ID: "a0", Position: domain.Position{X: 1, Y: 1}})
	assert.Error(t, envspec.Validate(spec))
}

func TestValidateRejectsDuplicateRuleIDs(t *testing.T) {
	spec := validSpec()
	spec.Rules.Terminations = append(spec.Rules.Terminations, domain.TerminationRule{
		ID:        "reach_goal",
		Condition: domain.Condition{Kind: domain.ConditionTimeout},
	})
	assert.Error(t, envspec.Validate(spec))
}

func TestValidateRequiresAtLeastOneRewardAndTermination(t *testing.T) {
	noRewards := validSpec()
	noRewards.Rules.Rewards = nil
	assert.Error(t, envspec.Validate(noRewards))

	noTerminations := validSpec()
	noTerminations.Rules.Terminations = nil
	assert.Error(t, envspec.Validate(noTerminations))
}

func TestValidateRejectsUnknownObjectType(t *testing.T) {
	spec := validSpec()
	spec.Objects[0].Type = "bogus"
	assert.Error(t, envspec.Validate(spec))
}

func TestValidateRejectsUnknownConditionKind(t *testing.T) {
	spec := validSpec()
	spec.Rules.Rewards[0].Condition.Kind = "bogus"
	assert.Error(t, envspec.Validate(spec))
}

func TestStructuralGuardRejectsOversizedWorld(t *testing.T) {
	spec := validSpec()
	spec.Width = 2000
	spec.Height = 2000
	err := envspec.StructuralGuard(spec)
	require.Error(t, err)
}

func TestStructuralGuardRejectsTooManyAgents(t *testing.T) {
	spec := validSpec()
	agents := make([]domain.Agent, domain.MaxAgents+1)
	for i := range agents {
		agents[i] = domain.Agent{ID: "x", Position: domain.Position{}}
	}
	spec.Agents = agents
	assert.Error(t, envspec.StructuralGuard(spec))
}

// TestSanitizeIsIdempotent: Sanitize(Sanitize(x)) == Sanitize(x).
func TestSanitizeIsIdempotent(t *testing.T) {
	spec := validSpec()
	spec.ID = "  weird\x01id\n"
	spec.Width = -5

	once := envspec.Sanitize(spec)
	twice := envspec.Sanitize(once)
	assert.Equal(t, once, twice)
}

func TestSanitizeClampsNonPositiveDimensions(t *testing.T) {
	spec := validSpec()
	spec.Width = -1
	spec.Height = 0
	out := envspec.Sanitize(spec)
	assert.Greater(t, out.Width, float64(0))
	assert.Greater(t, out.Height, float64(0))
}

func TestSanitizeStripsControlCharacters(t *testing.T) {
	spec := validSpec()
	spec.Name = "abc\x00def"
	out := envspec.Sanitize(spec)
	assert.Equal(t, "abcdef", out.Name)
}

func TestSanitizeTruncatesObjectsToCap(t *testing.T) {
	spec := validSpec()
	objects := make([]domain.Object, domain.MaxObjects+10)
	for i := range objects {
		objects[i] = domain.Object{ID: "o", Type: domain.ObjectObstacle, Position: domain.Position{}}
	}
	spec.Objects = objects
	out := envspec.Sanitize(spec)
	assert.LessOrEqual(t, len(out.Objects), domain.MaxObjects)
}

func TestHashIsStableAndSensitiveToContent(t *testing.T) {
	a := validSpec()
	b := validSpec()
	assert.Equal(t, envspec.Hash(a), envspec.Hash(b))

	b.Width = 6
	assert.NotEqual(t, envspec.Hash(a), envspec.Hash(b))
}
