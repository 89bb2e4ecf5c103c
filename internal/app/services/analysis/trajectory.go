package analysis

import (
	"math"

	domain "github.com/r3e-labs/rlstudio/internal/app/domain/analysis"
	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
)

// OscillationWindow is the sliding window used for back-and-forth counting.
const OscillationWindow = 5

// AttractorRadius and AttractorMinSamples parameterize the density-based
// spatial clustering used for attractor detection.
const (
	AttractorRadius     = 1.0
	AttractorMinSamples = 5
)

// AnalyzeTrajectory computes per-episode trajectory structure for the
// primary agent's path (the first agent in spec.Agents); the paths of any
// other agents are not analyzed.
func AnalyzeTrajectory(steps []episode.StepRecord, spec envspec.Spec) domain.TrajectoryAnalysis {
	if len(steps) == 0 || len(spec.Agents) == 0 {
		return domain.TrajectoryAnalysis{ActionDistribution: map[string]float64{}, Warnings: []string{"no steps to analyze"}}
	}
	agentID := spec.Agents[0].ID

	positions := make([]envspec.Position, 0, len(steps)+1)
	actions := make([]string, 0, len(steps))

	for _, step := range steps {
		idx := step.State.AgentIndex(agentID)
		if idx < 0 {
			continue
		}
		positions = append(positions, step.State.Agents[idx].Position)
		actions = append(actions, actionLabel(step.Action, agentID))
	}
	if len(positions) == 0 {
		return domain.TrajectoryAnalysis{ActionDistribution: map[string]float64{}, Warnings: []string{"agent not found in any step"}}
	}

	dist, entropy := actionDistribution(actions)
	efficiency := pathEfficiency(positions)
	oscillation, backAndForth := oscillationScore(positions)
	attractors := detectAttractors(positions)

	return domain.TrajectoryAnalysis{
		ActionDistribution: dist,
		Entropy:            entropy,
		PathEfficiency:     efficiency,
		OscillationScore:   oscillation,
		BackAndForthCount:  backAndForth,
		Attractors:         attractors,
	}
}

// AnalyzeTrajectories aggregates trajectory structure across episodes:
// mean/std of per-episode action entropy, a per-step entropy curve over the
// aligned episodes, and mean pairwise trajectory diversity.
func AnalyzeTrajectories(rollouts []episode.Rollout, spec envspec.Spec) domain.BatchTrajectoryAnalysis {
	if len(rollouts) == 0 || len(spec.Agents) == 0 {
		return domain.BatchTrajectoryAnalysis{Warnings: []string{"no rollouts to analyze"}}
	}
	agentID := spec.Agents[0].ID

	entropies := make([]float64, 0, len(rollouts))
	maxLen := 0
	for _, r := range rollouts {
		per := AnalyzeTrajectory(r.Steps, spec)
		entropies = append(entropies, per.Entropy)
		if len(r.Steps) > maxLen {
			maxLen = len(r.Steps)
		}
	}
	_, meanEntropy, stdEntropy, _, _ := summarize(entropies)

	// Per-step entropy over the episode ensemble: how varied the batch's
	// action choice is at each tick.
	curve := make([]float64, 0, maxLen)
	for t := 0; t < maxLen; t++ {
		labels := make([]string, 0, len(rollouts))
		for _, r := range rollouts {
			if t < len(r.Steps) {
				labels = append(labels, actionLabel(r.Steps[t].Action, agentID))
			}
		}
		_, entropy := actionDistribution(labels)
		curve = append(curve, entropy)
	}

	return domain.BatchTrajectoryAnalysis{
		MeanEntropy:   meanEntropy,
		StdEntropy:    stdEntropy,
		EntropyCurve:  curve,
		MeanDiversity: pairwiseDiversity(rollouts, agentID),
	}
}

// pairwiseDiversity is the average per-step position distance between every
// pair of trajectories, aligned over their shared step prefix.
func pairwiseDiversity(rollouts []episode.Rollout, agentID string) float64 {
	var total float64
	pairs := 0
	for i := 0; i < len(rollouts); i++ {
		for j := i + 1; j < len(rollouts); j++ {
			if d, ok := trajectoryDistance(rollouts[i].Steps, rollouts[j].Steps, agentID); ok {
				total += d
				pairs++
			}
		}
	}
	if pairs == 0 {
		return 0
	}
	return total / float64(pairs)
}

func trajectoryDistance(a, b []episode.StepRecord, agentID string) (float64, bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	count := 0
	for t := 0; t < n; t++ {
		ia := a[t].State.AgentIndex(agentID)
		ib := b[t].State.AgentIndex(agentID)
		if ia < 0 || ib < 0 {
			continue
		}
		sum += euclid(a[t].State.Agents[ia].Position, b[t].State.Agents[ib].Position)
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

func actionLabel(a episode.Action, agentID string) string {
	switch a.Kind {
	case episode.ActionDiscrete:
		return a.Discrete
	case episode.ActionContinuous:
		return quadrant(a.Continuous[0], a.Continuous[1])
	case episode.ActionMulti:
		if sub, ok := a.Multi[agentID]; ok {
			return actionLabel(sub, agentID)
		}
	}
	return "unknown"
}

func quadrant(dx, dy float64) string {
	switch {
	case dx >= 0 && dy >= 0:
		return "quadrant_pp"
	case dx < 0 && dy >= 0:
		return "quadrant_np"
	case dx >= 0 && dy < 0:
		return "quadrant_pn"
	default:
		return "quadrant_nn"
	}
}

func actionDistribution(actions []string) (map[string]float64, float64) {
	counts := make(map[string]int, len(actions))
	for _, a := range actions {
		counts[a]++
	}
	dist := make(map[string]float64, len(counts))
	n := float64(len(actions))
	var entropy float64
	for a, c := range counts {
		p := float64(c) / n
		dist[a] = p
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}
	return dist, entropy
}

// pathEfficiency is ‖end−start‖ / Σ step displacements, clamped to [0, 1].
func pathEfficiency(positions []envspec.Position) float64 {
	if len(positions) < 2 {
		return 0
	}
	start, end := positions[0], positions[len(positions)-1]
	straightLine := euclid(start, end)

	var traveled float64
	for i := 1; i < len(positions); i++ {
		traveled += euclid(positions[i-1], positions[i])
	}
	if traveled == 0 {
		return 0
	}
	eff := straightLine / traveled
	if eff > 1 {
		eff = 1
	}
	if eff < 0 {
		eff = 0
	}
	return eff
}

func euclid(a, b envspec.Position) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// oscillationScore is the lag-1 autocorrelation of step-displacement
// magnitudes, plus a count of direction reversals within a sliding window.
func oscillationScore(positions []envspec.Position) (float64, int) {
	if len(positions) < 3 {
		return 0, 0
	}
	mags := make([]float64, 0, len(positions)-1)
	for i := 1; i < len(positions); i++ {
		mags = append(mags, euclid(positions[i-1], positions[i]))
	}

	autocorr := lag1Autocorrelation(mags)

	backAndForth := 0
	for i := OscillationWindow; i < len(positions); i++ {
		window := positions[i-OscillationWindow : i+1]
		if revisitsStart(window) {
			backAndForth++
		}
	}
	return autocorr, backAndForth
}

func lag1Autocorrelation(mags []float64) float64 {
	n := len(mags)
	if n < 2 {
		return 0
	}
	_, mean, _, _, _ := summarize(mags)

	var num, denom float64
	for i := 0; i < n; i++ {
		d := mags[i] - mean
		denom += d * d
	}
	for i := 0; i < n-1; i++ {
		num += (mags[i] - mean) * (mags[i+1] - mean)
	}
	if denom == 0 {
		return 0
	}
	return num / denom
}

// revisitsStart reports whether the last position in window returns close
// to the first, signaling a back-and-forth within the window.
func revisitsStart(window []envspec.Position) bool {
	first, last := window[0], window[len(window)-1]
	return euclid(first, last) < envspec.AgentProximityRadius
}
