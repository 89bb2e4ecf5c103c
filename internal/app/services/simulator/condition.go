package simulator

import (
	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
)

// Evaluate is the visitor over the tagged Condition variant: adding a
// new condition is a new ConditionKind plus a new arm here.
func Evaluate(c envspec.Condition, state *episode.State, spec envspec.Spec) bool {
	switch c.Kind {
	case envspec.ConditionStep:
		return true
	case envspec.ConditionTimeout:
		return false // the rollout driver owns timeout handling
	case envspec.ConditionAgentAtPosition:
		idx := state.AgentIndex(c.AgentID)
		if idx < 0 {
			return false
		}
		tol := c.Tolerance
		if tol <= 0 {
			tol = envspec.AgentProximityRadius
		}
		return distance(state.Agents[idx].Position, c.Position) <= tol
	case envspec.ConditionAgentAtObject:
		return agentAtObject(state, spec, c.AgentID, c.ObjectID, envspec.AgentProximityRadius)
	case envspec.ConditionCollision:
		idx := state.AgentIndex(c.AgentID)
		if idx < 0 {
			return false
		}
		return nearWallOrObstacle(state.Agents[idx].Position, spec)
	case envspec.ConditionReachGoal:
		return agentNearType(state, spec, c.AgentID, envspec.ObjectGoal)
	case envspec.ConditionHitTrap:
		return agentNearType(state, spec, c.AgentID, envspec.ObjectTrap)
	case envspec.ConditionCollectKey:
		return agentNearType(state, spec, c.AgentID, envspec.ObjectKey)
	case envspec.ConditionEvent:
		return hasEvent(state, c.EventName)
	default:
		return false
	}
}

func agentAtObject(state *episode.State, spec envspec.Spec, agentID, objectID string, tolerance float64) bool {
	idx := state.AgentIndex(agentID)
	if idx < 0 {
		return false
	}
	for _, o := range spec.Objects {
		if o.ID != objectID {
			continue
		}
		return distance(state.Agents[idx].Position, o.Position) <= tolerance
	}
	return false
}

// agentNearType reports whether the given agent (or, if agentID is empty,
// any agent) is within the proximity radius of any object of kind.
func agentNearType(state *episode.State, spec envspec.Spec, agentID string, kind envspec.ObjectType) bool {
	agents := state.Agents
	if agentID != "" {
		idx := state.AgentIndex(agentID)
		if idx < 0 {
			return false
		}
		agents = state.Agents[idx : idx+1]
	}
	for _, a := range agents {
		for _, o := range spec.Objects {
			if o.Type != kind {
				continue
			}
			if distance(a.Position, o.Position) <= envspec.AgentProximityRadius {
				return true
			}
		}
	}
	return false
}

func nearWallOrObstacle(pos envspec.Position, spec envspec.Spec) bool {
	for _, o := range spec.Objects {
		if o.Type != envspec.ObjectWall && o.Type != envspec.ObjectObstacle {
			continue
		}
		if distance(pos, o.Position) < envspec.CollisionRadius {
			return true
		}
	}
	return false
}

func hasEvent(state *episode.State, name string) bool {
	for _, e := range state.Info.Events {
		if e == name {
			return true
		}
	}
	return false
}
