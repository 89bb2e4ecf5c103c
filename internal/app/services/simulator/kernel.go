// Package simulator is the pure, deterministic kernel: (State, Action,
// EnvSpec) -> next State. No I/O, no clocks.
package simulator

import (
	"fmt"
	"math"

	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
	"github.com/r3e-labs/rlstudio/pkg/apperrors"
)

// Init builds the starting EpisodeState from a spec's agents and objects.
// It assumes spec already passed envspec.Validate; a spec violating the
// invariants there is an apperrors.ValidationError signal from the caller,
// not from Init itself.
func Init(spec envspec.Spec) (episode.State, error) {
	if len(spec.Agents) == 0 {
		return episode.State{}, apperrors.InvalidInput("agents", "at least one agent is required")
	}

	agents := make([]episode.AgentState, len(spec.Agents))
	for i, a := range spec.Agents {
		agents[i] = episode.AgentState{
			ID:       a.ID,
			Position: a.Position,
			Rotation: a.Rotation,
		}
	}

	objects := make([]episode.ObjectState, len(spec.Objects))
	for i, o := range spec.Objects {
		objects[i] = episode.ObjectState{
			ID:       o.ID,
			Type:     o.Type,
			Position: o.Position,
		}
	}

	state := episode.State{
		Agents:      agents,
		Objects:     objects,
		Step:        0,
		TotalReward: 0,
		Done:        false,
		Info: episode.Info{
			Events: []string{"Episode started"},
		},
	}
	applySensors(&state, spec)
	return state, nil
}

// Step applies one action to state under spec, producing the next state.
// Step never fails: malformed actions degrade to a no-op with a recorded
// event.
func Step(state episode.State, action episode.Action, spec envspec.Spec, maxSteps int) episode.State {
	if state.Done {
		return state
	}

	next := state.Clone()
	next.Info.Events = nil
	next.Info.Rewards = nil

	applyAction(&next, action, spec)
	applyRewards(&next, spec)
	applyTermination(&next, spec, maxSteps)
	applySensors(&next, spec)

	return next
}

// applyAction dispatches on the action's tag. The switch is exhaustive
// over ActionKind; malformed actions degrade to a recorded no-op.
func applyAction(state *episode.State, action episode.Action, spec envspec.Spec) {
	switch action.Kind {
	case episode.ActionMulti:
		for _, a := range spec.Agents {
			if act, ok := action.Multi[a.ID]; ok {
				applyAgentAction(state, spec, a.ID, act)
			}
		}
	case episode.ActionDiscrete:
		if len(spec.Agents) > 0 {
			applyAgentAction(state, spec, spec.Agents[0].ID, action)
		}
	case episode.ActionContinuous:
		if len(spec.Agents) > 0 {
			applyAgentAction(state, spec, spec.Agents[0].ID, action)
		}
	default:
		state.Info.Events = append(state.Info.Events, "no-op: unrecognized action")
	}
}

func applyAgentAction(state *episode.State, spec envspec.Spec, agentID string, action episode.Action) {
	idx := state.AgentIndex(agentID)
	if idx < 0 {
		state.Info.Events = append(state.Info.Events, "no-op: unknown agent "+agentID)
		return
	}

	var candidate envspec.Position
	var label string
	switch {
	case spec.WorldKind == envspec.WorldGrid && action.Kind == episode.ActionDiscrete:
		candidate, label = gridCandidate(state.Agents[idx].Position, action.Discrete, spec)
	case spec.WorldKind == envspec.WorldGrid && action.Kind == episode.ActionContinuous:
		dir := directionFromVector(action.Continuous[0], action.Continuous[1])
		candidate, label = gridCandidate(state.Agents[idx].Position, dir, spec)
	case action.Kind == episode.ActionContinuous:
		candidate, label = continuousCandidate(state.Agents[idx].Position, action.Continuous, spec)
	case action.Kind == episode.ActionDiscrete:
		dx, dy := vectorFromDirection(action.Discrete)
		candidate, label = continuousCandidate(state.Agents[idx].Position, [2]float64{dx, dy}, spec)
	default:
		state.Info.Events = append(state.Info.Events, "hit obstacle")
		return
	}

	if collides(candidate, agentID, idx, state, spec) {
		state.Info.Events = append(state.Info.Events, "hit obstacle")
		return
	}

	state.Agents[idx].Position = candidate
	state.Info.Events = append(state.Info.Events,
		fmt.Sprintf("moved %s to (%g, %g)", label, candidate.X, candidate.Y))
}

func gridCandidate(pos envspec.Position, direction string, spec envspec.Spec) (envspec.Position, string) {
	cell := spec.CellSize
	if cell <= 0 {
		cell = envspec.DefaultCellSize
	}
	dx, dy := vectorFromDirection(direction)
	candidate := envspec.Position{X: pos.X + dx*cell, Y: pos.Y + dy*cell}
	candidate.X = math.Round(clampF(candidate.X, 0, spec.Width-1))
	candidate.Y = math.Round(clampF(candidate.Y, 0, spec.Height-1))
	return candidate, direction
}

func continuousCandidate(pos envspec.Position, vec [2]float64, spec envspec.Spec) (envspec.Position, string) {
	norm := math.Hypot(vec[0], vec[1])
	if norm == 0 {
		return pos, "stay"
	}
	ux, uy := vec[0]/norm, vec[1]/norm
	candidate := envspec.Position{
		X: pos.X + ux*envspec.DefaultMaxSpeed,
		Y: pos.Y + uy*envspec.DefaultMaxSpeed,
	}
	loX, hiX := worldBoxX(spec)
	loY, hiY := worldBoxY(spec)
	candidate.X = clampF(candidate.X, loX, hiX)
	candidate.Y = clampF(candidate.Y, loY, hiY)
	return candidate, fmt.Sprintf("(%.2f, %.2f)", ux, uy)
}

func worldBoxX(spec envspec.Spec) (float64, float64) {
	switch spec.CoordinateSystem {
	case envspec.CoordCartesian:
		return -spec.Width / 2, spec.Width / 2
	default:
		return 0, spec.Width
	}
}

func worldBoxY(spec envspec.Spec) (float64, float64) {
	switch spec.CoordinateSystem {
	case envspec.CoordCartesian:
		return -spec.Height / 2, spec.Height / 2
	default:
		return 0, spec.Height
	}
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func vectorFromDirection(direction string) (float64, float64) {
	switch direction {
	case "up":
		return 0, -1
	case "down":
		return 0, 1
	case "left":
		return -1, 0
	case "right":
		return 1, 0
	default:
		return 0, 0
	}
}

func directionFromVector(dx, dy float64) string {
	if math.Abs(dx) >= math.Abs(dy) {
		if dx >= 0 {
			return "right"
		}
		return "left"
	}
	if dy >= 0 {
		return "down"
	}
	return "up"
}

// collides reports whether a candidate position is blocked by a
// wall/obstacle (radius 1.0) or, in multi-agent episodes, by another agent
// (radius 0.5).
func collides(candidate envspec.Position, agentID string, agentIdx int, state *episode.State, spec envspec.Spec) bool {
	for _, o := range spec.Objects {
		if o.Type != envspec.ObjectWall && o.Type != envspec.ObjectObstacle {
			continue
		}
		if distance(candidate, o.Position) < envspec.CollisionRadius {
			return true
		}
	}
	if len(spec.Agents) > 1 {
		for i, a := range state.Agents {
			if i == agentIdx || a.ID == agentID {
				continue
			}
			if distance(candidate, a.Position) < envspec.AgentProximityRadius {
				return true
			}
		}
	}
	return false
}

func distance(a, b envspec.Position) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func applyRewards(state *episode.State, spec envspec.Spec) {
	for _, rule := range spec.Rules.Rewards {
		if Evaluate(rule.Condition, state, spec) {
			reason := string(rule.Condition.Kind)
			state.Info.Rewards = append(state.Info.Rewards, episode.RewardEvent{
				RuleID: rule.ID,
				Value:  rule.Reward,
				Reason: reason,
			})
			state.TotalReward += rule.Reward
		}
	}
}

func applyTermination(state *episode.State, spec envspec.Spec, maxSteps int) {
	for _, rule := range spec.Rules.Terminations {
		if rule.Condition.Kind == envspec.ConditionTimeout {
			continue // timeout is applied below via maxSteps
		}
		if Evaluate(rule.Condition, state, spec) {
			state.Done = true
			state.TerminationReason = rule.ID
			break
		}
	}

	if !state.Done {
		if atGoal, _ := nearestObjectOfType(state, spec, envspec.ObjectGoal); atGoal {
			state.Done = true
			state.TerminationReason = "goal_reached"
		}
	}

	state.Step++
	if maxSteps > 0 && state.Step >= maxSteps && !state.Done {
		state.Done = true
		state.TerminationReason = "max_steps"
	}
}

// nearestObjectOfType reports whether any agent is within the proximity
// radius of any object of the given type.
func nearestObjectOfType(state *episode.State, spec envspec.Spec, kind envspec.ObjectType) (bool, string) {
	for _, a := range state.Agents {
		for _, o := range spec.Objects {
			if o.Type != kind {
				continue
			}
			if distance(a.Position, o.Position) <= envspec.AgentProximityRadius {
				return true, o.ID
			}
		}
	}
	return false, ""
}
