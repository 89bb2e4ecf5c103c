package simulator

import (
	"fmt"

	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
)

// PreflightCheck runs static reward/termination-rule analysis once, at
// validation time, in place of the original's verification/reward_verification.py
// and verification/safety_checker.py. It flags reward rules that cannot
// possibly fire given the spec's objects, and specs that have reward rules
// but no reachable way to terminate. It does not mutate the spec; its caller
// (envspec.ValidateWithWarnings) turns the no-termination finding into a
// ValidationError and returns the other findings as advisory warnings.
func PreflightCheck(spec envspec.Spec) []string {
	var warnings []string

	objectTypes := make(map[envspec.ObjectType]int)
	objectIDs := make(map[string]bool, len(spec.Objects))
	for _, o := range spec.Objects {
		objectTypes[o.Type]++
		objectIDs[o.ID] = true
	}
	agentIDs := make(map[string]bool, len(spec.Agents))
	for _, a := range spec.Agents {
		agentIDs[a.ID] = true
	}

	for _, rule := range spec.Rules.Rewards {
		if w := unreachableReason(rule.Condition, objectTypes, objectIDs, agentIDs); w != "" {
			warnings = append(warnings, fmt.Sprintf("reward rule %q can never fire: %s", rule.ID, w))
		}
	}

	hasTimeoutOrStep := false
	hasReachableTermination := false
	for _, rule := range spec.Rules.Terminations {
		if rule.Condition.Kind == envspec.ConditionTimeout || rule.Condition.Kind == envspec.ConditionStep {
			hasTimeoutOrStep = true
			continue
		}
		if unreachableReason(rule.Condition, objectTypes, objectIDs, agentIDs) == "" {
			hasReachableTermination = true
		}
	}
	if !hasTimeoutOrStep && !hasReachableTermination && len(spec.Rules.Rewards) > 0 {
		warnings = append(warnings, "no reachable termination rule and no timeout configured; episodes may never end")
	}

	return warnings
}

func unreachableReason(c envspec.Condition, objectTypes map[envspec.ObjectType]int, objectIDs, agentIDs map[string]bool) string {
	switch c.Kind {
	case envspec.ConditionReachGoal:
		if objectTypes[envspec.ObjectGoal] == 0 {
			return "no goal object exists in the environment"
		}
	case envspec.ConditionHitTrap:
		if objectTypes[envspec.ObjectTrap] == 0 {
			return "no trap object exists in the environment"
		}
	case envspec.ConditionCollectKey:
		if objectTypes[envspec.ObjectKey] == 0 {
			return "no key object exists in the environment"
		}
	case envspec.ConditionAgentAtObject:
		if c.ObjectID != "" && !objectIDs[c.ObjectID] {
			return fmt.Sprintf("object %q does not exist", c.ObjectID)
		}
		if c.AgentID != "" && !agentIDs[c.AgentID] {
			return fmt.Sprintf("agent %q does not exist", c.AgentID)
		}
	case envspec.ConditionAgentAtPosition, envspec.ConditionCollision:
		if c.AgentID != "" && !agentIDs[c.AgentID] {
			return fmt.Sprintf("agent %q does not exist", c.AgentID)
		}
	}
	return ""
}
