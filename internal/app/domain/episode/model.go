// Package episode holds the mutable per-rollout state the simulator kernel
// produces and consumes, plus the recorded trajectory types built on top of it.
package episode

import "github.com/r3e-labs/rlstudio/internal/app/domain/envspec"

// ActionKind tags the Action sum type so the kernel can dispatch
// exhaustively over single-agent discrete, continuous, and multi-agent
// shapes.
type ActionKind string

const (
	ActionDiscrete   ActionKind = "discrete"
	ActionContinuous ActionKind = "continuous"
	ActionMulti      ActionKind = "multi"
)

// Action is the tagged union the simulator kernel applies each Step. Only
// the field matching Kind is meaningful.
type Action struct {
	Kind       ActionKind        `json:"kind"`
	Discrete   string            `json:"discrete,omitempty"`
	Continuous [2]float64        `json:"continuous,omitempty"`
	Multi      map[string]Action `json:"multi,omitempty"`
}

// DiscreteAction builds a single-agent discrete action.
func DiscreteAction(name string) Action {
	return Action{Kind: ActionDiscrete, Discrete: name}
}

// ContinuousAction builds a single-agent continuous action.
func ContinuousAction(dx, dy float64) Action {
	return Action{Kind: ActionContinuous, Continuous: [2]float64{dx, dy}}
}

// MultiAction builds a multi-agent action map.
func MultiAction(byAgent map[string]Action) Action {
	return Action{Kind: ActionMulti, Multi: byAgent}
}

// SensorReading is the post-step value of one agent sensor.
type SensorReading struct {
	SensorID string  `json:"sensorId"`
	Value    float64 `json:"value"`
}

// AgentState is one agent's mutable per-episode state.
type AgentState struct {
	ID             string           `json:"id"`
	Position       envspec.Position `json:"position"`
	Rotation       float64          `json:"rotation"`
	SensorReadings []SensorReading  `json:"sensorReadings,omitempty"`
}

// ObjectState is one object's mutable per-episode state. Most object types
// never change; keys/doors may flip Collected/Open as events fire.
type ObjectState struct {
	ID        string             `json:"id"`
	Type      envspec.ObjectType `json:"type"`
	Position  envspec.Position   `json:"position"`
	Collected bool               `json:"collected,omitempty"`
}

// RewardEvent records one reward rule firing on one step.
type RewardEvent struct {
	RuleID string  `json:"ruleId"`
	Value  float64 `json:"value"`
	Reason string  `json:"reason"`
}

// Info carries the per-step side channel of events and reward attributions.
type Info struct {
	Events  []string      `json:"events"`
	Rewards []RewardEvent `json:"rewards"`
}

// State is the mutable per-rollout episode state. It is owned by a single
// rollout driver and mutated only via the simulator kernel's Step function.
type State struct {
	Agents            []AgentState  `json:"agents"`
	Objects           []ObjectState `json:"objects"`
	Step              int           `json:"step"`
	TotalReward       float64       `json:"totalReward"`
	Done              bool          `json:"done"`
	Info              Info          `json:"info"`
	TerminationReason string        `json:"terminationReason,omitempty"`
}

// AgentIndex returns the slice index of the agent with the given id, or -1.
func (s *State) AgentIndex(id string) int {
	for i := range s.Agents {
		if s.Agents[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers (vectorized batches, parallel
// workers) can safely mutate independent copies of a shared initial state.
func (s State) Clone() State {
	out := s
	out.Agents = append([]AgentState(nil), s.Agents...)
	for i := range out.Agents {
		out.Agents[i].SensorReadings = append([]SensorReading(nil), s.Agents[i].SensorReadings...)
	}
	out.Objects = append([]ObjectState(nil), s.Objects...)
	out.Info.Events = append([]string(nil), s.Info.Events...)
	out.Info.Rewards = append([]RewardEvent(nil), s.Info.Rewards...)
	return out
}

// StepRecord is one entry in a recorded Rollout.
type StepRecord struct {
	State  State   `json:"state"`
	Action Action  `json:"action"`
	Reward float64 `json:"reward"`
	Done   bool    `json:"done"`
}

// Rollout is the finite recorded trajectory of one episode.
type Rollout struct {
	EnvID             string       `json:"envId,omitempty"`
	RolloutID         string       `json:"rolloutId,omitempty"`
	Steps             []StepRecord `json:"steps"`
	TotalReward       float64      `json:"totalReward"`
	EpisodeLength     int          `json:"episodeLength"`
	Success           bool         `json:"success"`
	TerminationReason string       `json:"terminationReason"`
	Error             string       `json:"error,omitempty"`
}
