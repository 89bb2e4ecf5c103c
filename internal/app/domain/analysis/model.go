// Package analysis holds the result types produced by the analysis
// pipeline (reward crediting, trajectory metrics, termination analysis,
// streaming diagnostics). All analysis routines are pure functions over
// recorded step sequences; see internal/app/services/analysis.
package analysis

// RuleCredit summarizes one reward rule's activity across an episode (or a
// batch of episodes, for cross-episode aggregation).
type RuleCredit struct {
	RuleID    string  `json:"ruleId"`
	Total     float64 `json:"total"`
	Mean      float64 `json:"mean"`
	Std       float64 `json:"std"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	FireCount int     `json:"fireCount"`
	FireRate  float64 `json:"fireRate"`
}

// HeatmapEntry is one reward-rule firing event, keyed for plotting.
type HeatmapEntry struct {
	Step  int     `json:"step"`
	Rule  string  `json:"rule"`
	Value float64 `json:"value"`
}

// RolloutAnalysis is the output of AnalyzeRollout (single episode).
type RolloutAnalysis struct {
	Rules         []RuleCredit         `json:"rules"`
	CumulativeSum map[string][]float64 `json:"cumulativeSum"`
	TopRules      []string             `json:"topRules"`
	Heatmap       []HeatmapEntry       `json:"heatmap"`
	Warnings      []string             `json:"warnings,omitempty"`
}

// ConsistencyLevel buckets a rule's cross-episode fire-rate stability.
type ConsistencyLevel string

const (
	ConsistencyHigh   ConsistencyLevel = "high"
	ConsistencyMedium ConsistencyLevel = "medium"
	ConsistencyLow    ConsistencyLevel = "low"
)

// RuleConsistency reports cross-episode stability of one rule's fire rate.
type RuleConsistency struct {
	RuleID string           `json:"ruleId"`
	Std    float64          `json:"std"`
	Level  ConsistencyLevel `json:"level"`
}

// BatchAnalysis is the output of AnalyzeRollouts (cross-episode aggregation).
type BatchAnalysis struct {
	MeanTotalReward      float64           `json:"meanTotalReward"`
	StdTotalReward       float64           `json:"stdTotalReward"`
	RuleConsistency      []RuleConsistency `json:"ruleConsistency"`
	TopTerminationCauses []CauseCount      `json:"topTerminationCauses"`
	Warnings             []string          `json:"warnings,omitempty"`
}

// CauseCount pairs a termination reason with its observed count.
type CauseCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// Attractor is a spatial cluster where an agent spent a disproportionate
// share of its steps (density-based clustering, radius 1.0, min-samples 5).
type Attractor struct {
	Center     [2]float64 `json:"center"`
	VisitCount int        `json:"visitCount"`
	DwellSteps int        `json:"dwellSteps"`
}

// TrajectoryAnalysis is the per-episode trajectory-structure summary.
type TrajectoryAnalysis struct {
	ActionDistribution map[string]float64 `json:"actionDistribution"`
	Entropy            float64            `json:"entropy"`
	PathEfficiency     float64            `json:"pathEfficiency"`
	OscillationScore   float64            `json:"oscillationScore"`
	BackAndForthCount  int                `json:"backAndForthCount"`
	Attractors         []Attractor        `json:"attractors"`
	Warnings           []string           `json:"warnings,omitempty"`
}

// BatchTrajectoryAnalysis is the cross-episode trajectory-structure summary.
type BatchTrajectoryAnalysis struct {
	MeanEntropy   float64   `json:"meanEntropy"`
	StdEntropy    float64   `json:"stdEntropy"`
	EntropyCurve  []float64 `json:"entropyCurve"`
	MeanDiversity float64   `json:"meanDiversity"`
	Warnings      []string  `json:"warnings,omitempty"`
}

// ReasonStats summarizes one termination reason's step-distribution.
type ReasonStats struct {
	Reason   string  `json:"reason"`
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	Std      float64 `json:"std"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
}

// TerminationAnalysis is the output of the termination-pattern analysis.
type TerminationAnalysis struct {
	Counts           map[string]int `json:"counts"`
	ReasonStats      []ReasonStats  `json:"reasonStats"`
	PrematureReasons []string       `json:"prematureReasons,omitempty"`
	LateReasons      []string       `json:"lateReasons,omitempty"`
	ConflictingPairs [][2]string    `json:"conflictingPairs,omitempty"`
	Warnings         []string       `json:"warnings,omitempty"`
}

// RollingSummary is a streaming mean/std/min/max accumulator snapshot.
type RollingSummary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Diagnostics bundles the rolling summaries the training loop can poll for.
type Diagnostics struct {
	TDError       RollingSummary `json:"tdError"`
	ValueEstimate RollingSummary `json:"valueEstimate"`
	PolicyEntropy RollingSummary `json:"policyEntropy"`
	KLDivergence  RollingSummary `json:"klDivergence"`
	GradientNorm  RollingSummary `json:"gradientNorm"`
}
