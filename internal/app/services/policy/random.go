package policy

import (
	"math/rand"

	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
)

// Random selects actions uniformly at random. It never inspects the world;
// it is deterministic given its injected *rand.Rand.
type Random struct {
	rng *rand.Rand
}

// NewRandom builds a Random policy. rng must not be nil in production code;
// a package-level default is never consulted so two rollouts sharing a seed
// are byte-identical.
func NewRandom(rng *rand.Rand) *Random {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Random{rng: rng}
}

// Select implements Policy.
func (p *Random) Select(state episode.State, spec envspec.Spec) episode.Action {
	if len(spec.Agents) > 1 {
		out := make(map[string]episode.Action, len(spec.Agents))
		for _, a := range spec.Agents {
			out[a.ID] = p.selectOne(spec)
		}
		return episode.MultiAction(out)
	}
	return p.selectOne(spec)
}

func (p *Random) selectOne(spec envspec.Spec) episode.Action {
	if spec.ActionSpace.Kind == envspec.ActionSpaceContinuous {
		dx := p.rng.Float64()*2 - 1
		dy := p.rng.Float64()*2 - 1
		return episode.ContinuousAction(dx, dy)
	}
	actions := spec.ActionSpace.Actions
	if len(actions) == 0 {
		actions = []string{"up", "down", "left", "right"}
	}
	return episode.DiscreteAction(actions[p.rng.Intn(len(actions))])
}
