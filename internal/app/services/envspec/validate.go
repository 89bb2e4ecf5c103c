// Package envspec validates and sanitizes declarative environment
// descriptions before they reach the simulator kernel.
package envspec

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/services/simulator"
	"github.com/r3e-labs/rlstudio/pkg/apperrors"
)

// StructuralGuard rejects specs whose dimensions, object count, agent count,
// or action cardinality exceed the structural caps. It is a cheap,
// field-count-only pre-check meant to run before the more expensive
// semantic Validate walk, so adversarial payloads are rejected before
// any per-element work happens.
func StructuralGuard(spec envspec.Spec) error {
	if spec.Width <= 0 || spec.Height <= 0 {
		return apperrors.Security("width/height", "must be positive")
	}
	if spec.Width*spec.Height > envspec.MaxCells {
		return apperrors.Security("width*height", fmt.Sprintf("exceeds cap of %d cells", envspec.MaxCells))
	}
	if len(spec.Objects) > envspec.MaxObjects {
		return apperrors.Security("objects", fmt.Sprintf("exceeds cap of %d objects", envspec.MaxObjects))
	}
	if len(spec.Agents) > envspec.MaxAgents {
		return apperrors.Security("agents", fmt.Sprintf("exceeds cap of %d agents", envspec.MaxAgents))
	}
	if spec.ActionSpace.Kind == envspec.ActionSpaceDiscrete && len(spec.ActionSpace.Actions) > envspec.MaxDiscreteActions {
		return apperrors.Security("actionSpace.actions", fmt.Sprintf("exceeds cap of %d actions", envspec.MaxDiscreteActions))
	}
	return nil
}

// Validate checks every Spec invariant and returns the first
// violation found, reporting the offending field path.
func Validate(spec envspec.Spec) error {
	if err := StructuralGuard(spec); err != nil {
		return err
	}

	switch spec.WorldKind {
	case envspec.WorldGrid, envspec.WorldContinuous2D:
	default:
		return apperrors.InvalidInput("worldKind", "must be grid or continuous2d")
	}

	switch spec.CoordinateSystem {
	case envspec.CoordGrid, envspec.CoordCartesian, envspec.CoordOther, "":
	default:
		return apperrors.InvalidInput("coordinateSystem", "must be grid, cartesian, or other")
	}

	if len(spec.Agents) == 0 {
		return apperrors.InvalidInput("agents", "at least one agent is required")
	}

	seenAgents := make(map[string]bool, len(spec.Agents))
	for i, a := range spec.Agents {
		field := fmt.Sprintf("agents[%d]", i)
		if strings.TrimSpace(a.ID) == "" {
			return apperrors.InvalidInput(field+".id", "must not be empty")
		}
		if seenAgents[a.ID] {
			return apperrors.InvalidInput(field+".id", "duplicate agent id")
		}
		seenAgents[a.ID] = true
		if !inBounds(spec, a.Position) {
			return apperrors.InvalidInput(field+".position", "out of world bounds")
		}
		if !finite(a.Position) {
			return apperrors.InvalidInput(field+".position", "must be finite")
		}
	}

	seenObjects := make(map[string]bool, len(spec.Objects))
	for i, o := range spec.Objects {
		field := fmt.Sprintf("objects[%d]", i)
		if strings.TrimSpace(o.ID) == "" {
			return apperrors.InvalidInput(field+".id", "must not be empty")
		}
		if seenObjects[o.ID] {
			return apperrors.InvalidInput(field+".id", "duplicate object id")
		}
		seenObjects[o.ID] = true
		switch o.Type {
		case envspec.ObjectWall, envspec.ObjectObstacle, envspec.ObjectGoal,
			envspec.ObjectTrap, envspec.ObjectKey, envspec.ObjectDoor, envspec.ObjectCustom:
		default:
			return apperrors.InvalidInput(field+".type", "unknown object type")
		}
		if !inBounds(spec, o.Position) {
			return apperrors.InvalidInput(field+".position", "out of world bounds")
		}
		if !finite(o.Position) {
			return apperrors.InvalidInput(field+".position", "must be finite")
		}
	}

	switch spec.ActionSpace.Kind {
	case envspec.ActionSpaceDiscrete:
		if len(spec.ActionSpace.Actions) == 0 {
			return apperrors.InvalidInput("actionSpace.actions", "discrete action space requires at least one action")
		}
	case envspec.ActionSpaceContinuous:
		if spec.ActionSpace.Dims <= 0 {
			return apperrors.InvalidInput("actionSpace.dims", "continuous action space requires dims > 0")
		}
		if spec.ActionSpace.Range[0] >= spec.ActionSpace.Range[1] {
			return apperrors.InvalidInput("actionSpace.range", "lo must be less than hi")
		}
	default:
		return apperrors.InvalidInput("actionSpace.kind", "must be discrete or continuous")
	}

	if len(spec.Rules.Rewards) == 0 {
		return apperrors.InvalidInput("rules.rewards", "at least one reward rule is required before rollout")
	}
	if len(spec.Rules.Terminations) == 0 {
		return apperrors.InvalidInput("rules.terminations", "at least one termination rule is required before rollout")
	}

	seenRuleIDs := make(map[string]bool)
	for i, r := range spec.Rules.Rewards {
		field := fmt.Sprintf("rules.rewards[%d]", i)
		if strings.TrimSpace(r.ID) == "" {
			return apperrors.InvalidInput(field+".id", "must not be empty")
		}
		if seenRuleIDs[r.ID] {
			return apperrors.InvalidInput(field+".id", "duplicate rule id")
		}
		seenRuleIDs[r.ID] = true
		if err := validateCondition(field+".condition", r.Condition); err != nil {
			return err
		}
	}
	for i, r := range spec.Rules.Terminations {
		field := fmt.Sprintf("rules.terminations[%d]", i)
		if strings.TrimSpace(r.ID) == "" {
			return apperrors.InvalidInput(field+".id", "must not be empty")
		}
		if seenRuleIDs[r.ID] {
			return apperrors.InvalidInput(field+".id", "duplicate rule id")
		}
		seenRuleIDs[r.ID] = true
		if err := validateCondition(field+".condition", r.Condition); err != nil {
			return err
		}
	}

	return nil
}

// ValidateWithWarnings runs Validate and then the simulator's preflight
// reward/termination analysis. A spec with reward rules but no reachable
// way to terminate fails the same way a structural invariant violation
// does; other preflight findings are returned as advisory warnings.
func ValidateWithWarnings(spec envspec.Spec) ([]string, error) {
	if err := Validate(spec); err != nil {
		return nil, err
	}
	warnings := simulator.PreflightCheck(spec)
	for _, w := range warnings {
		if strings.Contains(w, "no reachable termination rule") {
			return warnings, apperrors.InvalidInput("rules.terminations", w)
		}
	}
	return warnings, nil
}

func validateCondition(field string, c envspec.Condition) error {
	switch c.Kind {
	case envspec.ConditionAgentAtPosition, envspec.ConditionAgentAtObject,
		envspec.ConditionCollision, envspec.ConditionStep, envspec.ConditionTimeout,
		envspec.ConditionReachGoal, envspec.ConditionHitTrap, envspec.ConditionCollectKey,
		envspec.ConditionEvent:
		return nil
	default:
		return apperrors.InvalidInput(field+".kind", "unknown condition kind")
	}
}

func inBounds(spec envspec.Spec, p envspec.Position) bool {
	lo, hi := worldBoxX(spec)
	if p.X < lo || p.X > hi {
		return false
	}
	lo, hi = worldBoxY(spec)
	return p.Y >= lo && p.Y <= hi
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

func finite(p envspec.Position) bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Sanitize clamps numeric fields into allowed ranges, strips control
// characters from string fields, replaces non-finite position coordinates
// with 0, and truncates agent, object and action lists to the structural caps. It is idempotent:
// Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(spec envspec.Spec) envspec.Spec {
	out := spec
	out.ID = sanitizeString(spec.ID)
	out.Name = sanitizeString(spec.Name)

	if out.Width <= 0 {
		out.Width = 1
	}
	if out.Height <= 0 {
		out.Height = 1
	}
	if out.Width*out.Height > envspec.MaxCells {
		scale := math.Sqrt(envspec.MaxCells / (out.Width * out.Height))
		out.Width *= scale
		out.Height *= scale
	}
	if out.WorldKind == envspec.WorldGrid && out.CellSize <= 0 {
		out.CellSize = envspec.DefaultCellSize
	}

	agents := make([]envspec.Agent, 0, len(spec.Agents))
	for _, a := range spec.Agents {
		if len(agents) >= envspec.MaxAgents {
			break
		}
		a.ID = sanitizeString(a.ID)
		a.Position = sanitizePosition(a.Position, out)
		agents = append(agents, a)
	}
	out.Agents = agents

	objects := make([]envspec.Object, 0, len(spec.Objects))
	for _, o := range spec.Objects {
		if len(objects) >= envspec.MaxObjects {
			break
		}
		o.ID = sanitizeString(o.ID)
		o.Position = sanitizePosition(o.Position, out)
		objects = append(objects, o)
	}
	out.Objects = objects

	if out.ActionSpace.Kind == envspec.ActionSpaceDiscrete && len(out.ActionSpace.Actions) > envspec.MaxDiscreteActions {
		out.ActionSpace.Actions = out.ActionSpace.Actions[:envspec.MaxDiscreteActions]
	}

	rewards := make([]envspec.RewardRule, len(spec.Rules.Rewards))
	for i, r := range spec.Rules.Rewards {
		r.ID = sanitizeString(r.ID)
		rewards[i] = r
	}
	out.Rules.Rewards = rewards

	terminations := make([]envspec.TerminationRule, len(spec.Rules.Terminations))
	for i, r := range spec.Rules.Terminations {
		r.ID = sanitizeString(r.ID)
		terminations[i] = r
	}
	out.Rules.Terminations = terminations

	return out
}

func sanitizeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func sanitizePosition(p envspec.Position, spec envspec.Spec) envspec.Position {
	if math.IsNaN(p.X) || math.IsInf(p.X, 0) {
		p.X = 0
	}
	if math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
		p.Y = 0
	}
	loX, hiX := worldBoxX(spec)
	loY, hiY := worldBoxY(spec)
	p.X = clamp(p.X, loX, hiX)
	p.Y = clamp(p.Y, loY, hiY)
	return p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Hash returns a stable, deterministic hash of the sanitized spec, used as
// the compiled-environment / rollout cache key.
func Hash(spec envspec.Spec) string {
	sanitized := Sanitize(spec)
	// Field order in the JSON encoding is stable for struct types, which is
	// sufficient determinism for a cache key derived from one process's
	// in-memory representation.
	b, _ := json.Marshal(sanitized)
	sum := blake2b.Sum256(b)
	return fmt.Sprintf("%x", sum)
}
