package analysis

import (
	"math"
	"sort"

	domain "github.com/r3e-labs/rlstudio/internal/app/domain/analysis"
	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
)

// PrematurePercentile and LatePercentile bound the step-distribution
// thresholds used to flag premature/late terminations.
const (
	PrematurePercentile = 0.10
	LatePercentile      = 0.90
	ConflictShare       = 0.30
	TrimFraction        = 0.1 // 10% trimmed mean/std, each tail
)

// AnalyzeTerminations summarizes the termination-step distribution of a
// batch of rollouts, grouped by reason.
func AnalyzeTerminations(rollouts []episode.Rollout) domain.TerminationAnalysis {
	stepsByReason := make(map[string][]float64)
	counts := make(map[string]int)

	for _, r := range rollouts {
		reason := r.TerminationReason
		counts[reason]++
		stepsByReason[reason] = append(stepsByReason[reason], float64(r.EpisodeLength))
	}

	reasons := make([]string, 0, len(stepsByReason))
	for reason := range stepsByReason {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)

	stats := make([]domain.ReasonStats, 0, len(reasons))
	for _, reason := range reasons {
		stats = append(stats, reasonStats(reason, counts[reason], stepsByReason[reason]))
	}

	allSteps := make([]float64, 0, len(rollouts))
	for _, r := range rollouts {
		allSteps = append(allSteps, float64(r.EpisodeLength))
	}
	sort.Float64s(allSteps)

	var premature, late []string
	total := len(rollouts)
	if total > 0 {
		globalP10 := percentile(allSteps, PrematurePercentile)
		globalP90 := percentile(allSteps, LatePercentile)
		for _, reason := range reasons {
			vs := stepsByReason[reason]
			if len(vs) == 0 {
				continue
			}
			if mean(vs) <= globalP10 {
				premature = append(premature, reason)
			}
			if mean(vs) >= globalP90 {
				late = append(late, reason)
			}
		}
	}

	var conflicting [][2]string
	for i := 0; i < len(reasons); i++ {
		for j := i + 1; j < len(reasons); j++ {
			shareI := float64(counts[reasons[i]]) / float64(maxInt(total, 1))
			shareJ := float64(counts[reasons[j]]) / float64(maxInt(total, 1))
			if shareI >= ConflictShare && shareJ >= ConflictShare {
				conflicting = append(conflicting, [2]string{reasons[i], reasons[j]})
			}
		}
	}

	var warnings []string
	if total == 0 {
		warnings = append(warnings, "no rollouts provided")
	}

	return domain.TerminationAnalysis{
		Counts:           counts,
		ReasonStats:      stats,
		PrematureReasons: premature,
		LateReasons:      late,
		ConflictingPairs: conflicting,
		Warnings:         warnings,
	}
}

func reasonStats(reason string, count int, vs []float64) domain.ReasonStats {
	if len(vs) == 0 {
		return domain.ReasonStats{Reason: reason, Count: count}
	}
	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)

	trimmedMean, trimmedStd := trimmedMeanStd(sorted, TrimFraction)
	return domain.ReasonStats{
		Reason:   reason,
		Count:    count,
		Mean:     trimmedMean,
		Median:   percentile(sorted, 0.5),
		Std:      trimmedStd,
		Min:      sorted[0],
		Max:      sorted[len(sorted)-1],
		Skewness: skewness(vs),
		Kurtosis: kurtosis(vs),
	}
}

// trimmedMeanStd computes the mean/std after discarding frac of values from
// each tail of a pre-sorted slice.
func trimmedMeanStd(sorted []float64, frac float64) (float64, float64) {
	n := len(sorted)
	trim := int(float64(n) * frac)
	if 2*trim >= n {
		trim = 0
	}
	core := sorted[trim : n-trim]
	_, m, s, _, _ := summarize(core)
	return m, s
}

func mean(vs []float64) float64 {
	_, m, _, _, _ := summarize(vs)
	return m
}

// percentile linearly interpolates the p-th percentile (0..1) of a
// pre-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func skewness(vs []float64) float64 {
	n := float64(len(vs))
	if n < 3 {
		return 0
	}
	_, m, std, _, _ := summarize(vs)
	if std == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		d := (v - m) / std
		sum += d * d * d
	}
	return sum / n
}

func kurtosis(vs []float64) float64 {
	n := float64(len(vs))
	if n < 4 {
		return 0
	}
	_, m, std, _, _ := summarize(vs)
	if std == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		d := (v - m) / std
		sum += d * d * d * d
	}
	return sum/n - 3 // excess kurtosis
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
