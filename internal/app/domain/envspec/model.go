// Package envspec holds the declarative world/agent/rule model that the
// simulator kernel interprets. Values are treated as immutable once loaded;
// mutation happens only through Sanitize, which returns a new value.
package envspec

// WorldKind selects the coordinate/geometry family of the environment.
type WorldKind string

const (
	WorldGrid         WorldKind = "grid"
	WorldContinuous2D WorldKind = "continuous2d"
)

// CoordinateSystem selects how the world box is laid out around the origin.
type CoordinateSystem string

const (
	CoordGrid      CoordinateSystem = "grid"
	CoordCartesian CoordinateSystem = "cartesian"
	CoordOther     CoordinateSystem = "other"
)

// ObjectType enumerates the fixed vocabulary of world items.
type ObjectType string

const (
	ObjectWall     ObjectType = "wall"
	ObjectObstacle ObjectType = "obstacle"
	ObjectGoal     ObjectType = "goal"
	ObjectTrap     ObjectType = "trap"
	ObjectKey      ObjectType = "key"
	ObjectDoor     ObjectType = "door"
	ObjectCustom   ObjectType = "custom"
)

// Position is a point in ℝ².
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SensorKind enumerates the sensor models an agent may carry.
type SensorKind string

const (
	SensorProximity SensorKind = "proximity"
	SensorRay       SensorKind = "ray"
)

// Sensor describes one ray/proximity sensor attached to an agent. Readings
// are computed by the simulator after every Step and are not part of the
// declarative spec itself.
type Sensor struct {
	ID         string     `json:"id"`
	Kind       SensorKind `json:"kind"`
	HeadingDeg float64    `json:"headingDeg"`
	MaxRange   float64    `json:"maxRange"`
}

// Agent is one controllable actor in the world.
type Agent struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	Rotation float64  `json:"rotation"`
	Sensors  []Sensor `json:"sensors,omitempty"`
}

// Object is one static or semi-static world item.
type Object struct {
	ID       string     `json:"id"`
	Type     ObjectType `json:"type"`
	Position Position   `json:"position"`
}

// ActionSpaceKind selects between a discrete or continuous action vocabulary.
type ActionSpaceKind string

const (
	ActionSpaceDiscrete   ActionSpaceKind = "discrete"
	ActionSpaceContinuous ActionSpaceKind = "continuous"
)

// ActionSpace describes the legal actions agents in this environment may take.
type ActionSpace struct {
	Kind    ActionSpaceKind `json:"kind"`
	Actions []string        `json:"actions,omitempty"` // discrete
	Dims    int             `json:"dims,omitempty"`    // continuous
	Range   [2]float64      `json:"range,omitempty"`   // continuous: [lo, hi]
}

// ConditionKind is the tag of the Condition sum type.
type ConditionKind string

const (
	ConditionAgentAtPosition ConditionKind = "agent_at_position"
	ConditionAgentAtObject   ConditionKind = "agent_at_object"
	ConditionCollision       ConditionKind = "collision"
	ConditionStep            ConditionKind = "step"
	ConditionTimeout         ConditionKind = "timeout"
	ConditionReachGoal       ConditionKind = "reach_goal"
	ConditionHitTrap         ConditionKind = "hit_trap"
	ConditionCollectKey      ConditionKind = "collect_key"
	ConditionEvent           ConditionKind = "event"
)

// Condition is the tagged variant shared by reward and termination rules.
// Exactly one set of fields is meaningful per Kind; see the visitor in
// internal/app/services/simulator.
type Condition struct {
	Kind ConditionKind `json:"kind"`

	AgentID   string   `json:"agentId,omitempty"`
	Position  Position `json:"position,omitempty"`
	Tolerance float64  `json:"tolerance,omitempty"`
	ObjectID  string   `json:"objectId,omitempty"`
	EventName string   `json:"eventName,omitempty"`
}

// RewardRule binds a Condition to a scalar reward, evaluated in order.
type RewardRule struct {
	ID        string    `json:"id"`
	Condition Condition `json:"condition"`
	Reward    float64   `json:"reward"`
}

// TerminationRule binds a Condition to episode termination, evaluated in order.
type TerminationRule struct {
	ID        string    `json:"id"`
	Condition Condition `json:"condition"`
}

// EventRule is an extensible hook point; the kernel does not interpret it
// beyond recording that it exists.
type EventRule struct {
	ID   string            `json:"id"`
	Name string            `json:"name"`
	Meta map[string]string `json:"meta,omitempty"`
}

// Rules bundles the ordered reward/termination/event rule lists.
type Rules struct {
	Rewards      []RewardRule      `json:"rewards"`
	Terminations []TerminationRule `json:"terminations"`
	Events       []EventRule       `json:"events,omitempty"`
}

// Spec is the full declarative environment description.
type Spec struct {
	ID               string           `json:"id,omitempty"`
	Name             string           `json:"name,omitempty"`
	WorldKind        WorldKind        `json:"worldKind"`
	Width            float64          `json:"width"`
	Height           float64          `json:"height"`
	CoordinateSystem CoordinateSystem `json:"coordinateSystem"`
	CellSize         float64          `json:"cellSize,omitempty"`
	Agents           []Agent          `json:"agents"`
	Objects          []Object         `json:"objects"`
	ActionSpace      ActionSpace      `json:"actionSpace"`
	Rules            Rules            `json:"rules"`
}

// Caps are the structural limits every Spec must satisfy.
const (
	MaxCells           = 1_000_000
	MaxObjects         = 10_000
	MaxAgents          = 100
	MaxDiscreteActions = 1_000
)

// DefaultCellSize is used by the simulator when a grid spec omits CellSize.
const DefaultCellSize = 1.0

// DefaultMaxSpeed bounds the displacement of one continuous-world step.
const DefaultMaxSpeed = 0.1

// CollisionRadius is the distance at which a candidate position collides
// with a wall/obstacle.
const CollisionRadius = 1.0

// AgentProximityRadius is the distance at which two agents are considered
// adjacent (multi-agent collision) and at which an agent is "at" an object.
const AgentProximityRadius = 0.5
