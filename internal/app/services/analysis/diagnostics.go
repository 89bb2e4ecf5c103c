package analysis

import (
	"math"
	"sync"

	domain "github.com/r3e-labs/rlstudio/internal/app/domain/analysis"
)

// RollingAccumulator is a streaming mean/std/min/max accumulator using
// Welford's online algorithm, so the training loop can poll summaries
// without re-scanning history on every sample.
type RollingAccumulator struct {
	mu    sync.Mutex
	count int
	mean  float64
	m2    float64
	min   float64
	max   float64
}

// Observe folds one new sample into the accumulator.
func (r *RollingAccumulator) Observe(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.count++
	if r.count == 1 {
		r.min, r.max = v, v
	} else {
		if v < r.min {
			r.min = v
		}
		if v > r.max {
			r.max = v
		}
	}
	delta := v - r.mean
	r.mean += delta / float64(r.count)
	r.m2 += delta * (v - r.mean)
}

// Snapshot returns the current rolling summary.
func (r *RollingAccumulator) Snapshot() domain.RollingSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	var std float64
	if r.count > 1 {
		std = math.Sqrt(r.m2 / float64(r.count))
	}
	return domain.RollingSummary{Count: r.count, Mean: r.mean, Std: std, Min: r.min, Max: r.max}
}

// DiagnosticsTracker holds the five rolling accumulators the training loop
// streams updates into: TD-error, value estimate, policy entropy, KL
// divergence, and gradient norm.
type DiagnosticsTracker struct {
	TDError       RollingAccumulator
	ValueEstimate RollingAccumulator
	PolicyEntropy RollingAccumulator
	KLDivergence  RollingAccumulator
	GradientNorm  RollingAccumulator
}

// Snapshot bundles all five accumulators' current summaries.
func (t *DiagnosticsTracker) Snapshot() domain.Diagnostics {
	return domain.Diagnostics{
		TDError:       t.TDError.Snapshot(),
		ValueEstimate: t.ValueEstimate.Snapshot(),
		PolicyEntropy: t.PolicyEntropy.Snapshot(),
		KLDivergence:  t.KLDivergence.Snapshot(),
		GradientNorm:  t.GradientNorm.Snapshot(),
	}
}

// PolicyEntropyOf computes the Shannon entropy (base 2) of an action
// probability vector, for feeding DiagnosticsTracker.PolicyEntropy.Observe.
func PolicyEntropyOf(probs []float64) float64 {
	var entropy float64
	for _, p := range probs {
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

// KLDivergenceOf computes KL(oldProbs || newProbs), zero-safe against
// mismatched lengths or zero probabilities.
func KLDivergenceOf(oldProbs, newProbs []float64) float64 {
	if len(oldProbs) != len(newProbs) {
		return 0
	}
	var kl float64
	for i, p := range oldProbs {
		q := newProbs[i]
		if p <= 0 || q <= 0 {
			continue
		}
		kl += p * math.Log2(p/q)
	}
	return kl
}
