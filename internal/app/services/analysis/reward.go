// Package analysis mines recorded rollouts for reward attribution,
// trajectory structure, and termination distributions. All
// routines are pure functions over []episode.StepRecord / []episode.Rollout.
package analysis

import (
	"math"
	"sort"

	domain "github.com/r3e-labs/rlstudio/internal/app/domain/analysis"
	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
)

// DenseShapingThreshold flags a rollout whose reward events per step exceed
// this rate as "dense shaping".
const DenseShapingThreshold = 10.0

// RareFireRate flags a rule whose fire rate falls below this as rarely firing.
const RareFireRate = 0.01

// ConflictingRuleCount is the number of positive- and negative-mean rules
// that must coexist to flag the ruleset as conflicting.
const ConflictingRuleCount = 5

// AnalyzeRollout computes reward-rule attribution for one episode, given
// the EnvSpec that produced it (so unreachable rules with zero fires are
// still reported).
func AnalyzeRollout(steps []episode.StepRecord, spec envspec.Spec) domain.RolloutAnalysis {
	if len(steps) == 0 {
		return domain.RolloutAnalysis{Warnings: []string{"no steps to analyze"}}
	}

	ruleIDs := make([]string, 0, len(spec.Rules.Rewards))
	for _, r := range spec.Rules.Rewards {
		ruleIDs = append(ruleIDs, r.ID)
	}

	values := make(map[string][]float64, len(ruleIDs))
	cumulative := make(map[string][]float64, len(ruleIDs))
	var heatmap []domain.HeatmapEntry
	totalFireEvents := 0

	running := make(map[string]float64, len(ruleIDs))
	for _, id := range ruleIDs {
		cumulative[id] = make([]float64, 0, len(steps))
	}

	for i, step := range steps {
		fired := make(map[string]bool)
		for _, ev := range step.State.Info.Rewards {
			values[ev.RuleID] = append(values[ev.RuleID], ev.Value)
			running[ev.RuleID] += ev.Value
			heatmap = append(heatmap, domain.HeatmapEntry{Step: i, Rule: ev.RuleID, Value: ev.Value})
			fired[ev.RuleID] = true
			totalFireEvents++
		}
		for _, id := range ruleIDs {
			cumulative[id] = append(cumulative[id], running[id])
		}
	}

	rules := make([]domain.RuleCredit, 0, len(ruleIDs))
	var warnings []string
	positiveMean, negativeMean := 0, 0

	for _, id := range ruleIDs {
		vs := values[id]
		credit := domain.RuleCredit{RuleID: id, FireCount: len(vs)}
		if len(steps) > 0 {
			credit.FireRate = float64(len(vs)) / float64(len(steps))
		}
		if len(vs) > 0 {
			credit.Total, credit.Mean, credit.Std, credit.Min, credit.Max = summarize(vs)
			if credit.Mean > 0 {
				positiveMean++
			} else if credit.Mean < 0 {
				negativeMean++
			}
		}
		rules = append(rules, credit)

		switch {
		case credit.FireCount == 0:
			warnings = append(warnings, "rule "+id+" never fired: unreachable?")
		case credit.FireRate < RareFireRate:
			warnings = append(warnings, "rule "+id+" fires rarely")
		}
	}

	if len(steps) > 0 && float64(totalFireEvents)/float64(len(steps)) > DenseShapingThreshold {
		warnings = append(warnings, "reward density exceeds threshold: dense shaping")
	}
	if positiveMean > ConflictingRuleCount && negativeMean > ConflictingRuleCount {
		warnings = append(warnings, "conflicting reward rules: many positive- and negative-mean rules present")
	}

	// Top-10 active rules by fire count; Rules itself stays in declaration
	// order so it lines up with the spec's rule list.
	byFire := make([]domain.RuleCredit, len(rules))
	copy(byFire, rules)
	sort.SliceStable(byFire, func(i, j int) bool { return byFire[i].FireCount > byFire[j].FireCount })
	top := make([]string, 0, 10)
	for _, rc := range byFire {
		if rc.FireCount == 0 || len(top) == 10 {
			break
		}
		top = append(top, rc.RuleID)
	}

	return domain.RolloutAnalysis{
		Rules:         rules,
		CumulativeSum: cumulative,
		TopRules:      top,
		Heatmap:       heatmap,
		Warnings:      warnings,
	}
}

// summarize returns total, mean, std (population), min, max of vs.
func summarize(vs []float64) (total, mean, std, min, max float64) {
	if len(vs) == 0 {
		return 0, 0, 0, 0, 0
	}
	min, max = vs[0], vs[0]
	for _, v := range vs {
		total += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean = total / float64(len(vs))
	var variance float64
	for _, v := range vs {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(vs))
	std = math.Sqrt(variance)
	return total, mean, std, min, max
}
