package analysis

import (
	"sort"

	domain "github.com/r3e-labs/rlstudio/internal/app/domain/analysis"
	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
)

// Consistency thresholds for a rule's cross-episode fire-rate std.
const (
	consistencyHighMax   = 0.1
	consistencyMediumMax = 0.3
)

// AnalyzeRollouts aggregates reward/termination statistics across a batch
// of episodes produced by the same EnvSpec.
func AnalyzeRollouts(rollouts []episode.Rollout, spec envspec.Spec) domain.BatchAnalysis {
	totals := make([]float64, 0, len(rollouts))
	fireRatesByRule := make(map[string][]float64)
	causeCounts := make(map[string]int)

	for _, r := range rollouts {
		totals = append(totals, r.TotalReward)
		causeCounts[r.TerminationReason]++

		perEpisode := AnalyzeRollout(r.Steps, spec)
		for _, rc := range perEpisode.Rules {
			fireRatesByRule[rc.RuleID] = append(fireRatesByRule[rc.RuleID], rc.FireRate)
		}
	}

	var meanTotal, stdTotal float64
	if len(totals) > 0 {
		_, meanTotal, stdTotal, _, _ = summarize(totals)
	}

	ruleIDs := make([]string, 0, len(fireRatesByRule))
	for id := range fireRatesByRule {
		ruleIDs = append(ruleIDs, id)
	}
	sort.Strings(ruleIDs)

	consistency := make([]domain.RuleConsistency, 0, len(ruleIDs))
	for _, id := range ruleIDs {
		_, _, std, _, _ := summarize(fireRatesByRule[id])
		consistency = append(consistency, domain.RuleConsistency{
			RuleID: id,
			Std:    std,
			Level:  consistencyLevel(std),
		})
	}

	causes := make([]domain.CauseCount, 0, len(causeCounts))
	for reason, count := range causeCounts {
		causes = append(causes, domain.CauseCount{Reason: reason, Count: count})
	}
	sort.Slice(causes, func(i, j int) bool { return causes[i].Count > causes[j].Count })

	var warnings []string
	if len(rollouts) == 0 {
		warnings = append(warnings, "no rollouts provided")
	}

	return domain.BatchAnalysis{
		MeanTotalReward:      meanTotal,
		StdTotalReward:       stdTotal,
		RuleConsistency:      consistency,
		TopTerminationCauses: causes,
		Warnings:             warnings,
	}
}

func consistencyLevel(std float64) domain.ConsistencyLevel {
	switch {
	case std <= consistencyHighMax:
		return domain.ConsistencyHigh
	case std <= consistencyMediumMax:
		return domain.ConsistencyMedium
	default:
		return domain.ConsistencyLow
	}
}
