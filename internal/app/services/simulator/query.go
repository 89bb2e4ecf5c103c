package simulator

import (
	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
)

// CandidateFor computes the candidate position and event label a discrete
// direction would produce for an agent, without mutating state. The policy
// layer uses this to simulate moves before committing to one when probing
// for an unblocked direction.
func CandidateFor(pos envspec.Position, direction string, spec envspec.Spec) envspec.Position {
	if spec.WorldKind == envspec.WorldGrid {
		p, _ := gridCandidate(pos, direction, spec)
		return p
	}
	dx, dy := vectorFromDirection(direction)
	p, _ := continuousCandidate(pos, [2]float64{dx, dy}, spec)
	return p
}

// WouldCollide reports whether the candidate position is blocked for the
// given agent under spec/state, using the same rule Step applies.
func WouldCollide(candidate envspec.Position, agentID string, state *episode.State, spec envspec.Spec) bool {
	idx := state.AgentIndex(agentID)
	return collides(candidate, agentID, idx, state, spec)
}

// InBounds reports whether pos lies within the spec's world box.
func InBounds(pos envspec.Position, spec envspec.Spec) bool {
	loX, hiX := worldBoxX(spec)
	loY, hiY := worldBoxY(spec)
	return pos.X >= loX && pos.X <= hiX && pos.Y >= loY && pos.Y <= hiY
}

// Distance is the Euclidean distance between two positions, exported for
// callers outside this package (policy, analysis) that need the exact
// metric the kernel uses for proximity checks.
func Distance(a, b envspec.Position) float64 {
	return distance(a, b)
}
