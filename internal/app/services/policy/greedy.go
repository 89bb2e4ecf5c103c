package policy

import (
	"math"
	"math/rand"

	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
	"github.com/r3e-labs/rlstudio/internal/app/services/simulator"
)

// Greedy pathfinds each agent toward its nearest goal object, probing
// candidate moves for bounds/collision before committing.
type Greedy struct {
	rng *rand.Rand
}

// NewGreedy builds a Greedy policy.
func NewGreedy(rng *rand.Rand) *Greedy {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Greedy{rng: rng}
}

// Select implements Policy.
func (p *Greedy) Select(state episode.State, spec envspec.Spec) episode.Action {
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

func (p *Greedy) selectFor(agentID string, state episode.State, spec envspec.Spec) episode.Action {
	idx := state.AgentIndex(agentID)
	if idx < 0 {
		return episode.DiscreteAction("up")
	}
	pos := state.Agents[idx].Position
	goal, ok := nearestGoal(pos, spec)
	if !ok {
		return episode.DiscreteAction(preferredDirections(pos, pos)[0])
	}

	if spec.WorldKind != envspec.WorldGrid {
		dx, dy := goal.X-pos.X, goal.Y-pos.Y
		if math.Hypot(dx, dy) < 0.1 {
			return episode.ContinuousAction(0, 0)
		}
		norm := math.Hypot(dx, dy)
		return episode.ContinuousAction(dx/norm, dy/norm)
	}

	for _, dir := range preferredDirections(pos, goal) {
		candidate := simulator.CandidateFor(pos, dir, spec)
		if !simulator.InBounds(candidate, spec) {
			continue
		}
		if simulator.WouldCollide(candidate, agentID, &state, spec) {
			continue
		}
		return episode.DiscreteAction(dir)
	}
	// All tested directions blocked: emit the preferred direction anyway
	// and let the kernel record the no-op, rather than substituting a
	// sentinel "stay" action. Keeps the action sequence deterministic.
	// TODO: revisit emitting a stay action once consumers can handle it.
	return episode.DiscreteAction(preferredDirections(pos, goal)[0])
}

// nearestGoal returns the closest goal object's position, if any exist.
func nearestGoal(pos envspec.Position, spec envspec.Spec) (envspec.Position, bool) {
	best := math.Inf(1)
	var bestPos envspec.Position
	found := false
	for _, o := range spec.Objects {
		if o.Type != envspec.ObjectGoal {
			continue
		}
		d := simulator.Distance(pos, o.Position)
		if d < best {
			best = d
			bestPos = o.Position
			found = true
		}
	}
	return bestPos, found
}

// preferredDirections orders the four compass directions by how well each
// advances toward goal: the dominant axis first, then its perpendiculars,
// then the remaining direction.
func preferredDirections(pos, goal envspec.Position) []string {
	dx, dy := goal.X-pos.X, goal.Y-pos.Y

	primary, secondary := "right", "down"
	if dx < 0 {
		primary = "left"
	}
	if dy < 0 {
		secondary = "up"
	}

	order := []string{primary, secondary}
	if math.Abs(dy) > math.Abs(dx) {
		order = []string{secondary, primary}
	}

	all := []string{"up", "down", "left", "right"}
	for _, d := range all {
		if d != order[0] && d != order[1] {
			order = append(order, d)
		}
	}
	return order
}
