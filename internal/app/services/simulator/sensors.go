package simulator

import (
	"math"

	"github.com/r3e-labs/rlstudio/internal/app/domain/envspec"
	"github.com/r3e-labs/rlstudio/internal/app/domain/episode"
)

// applySensors computes each agent's sensor readings after a step. Sensors
// are pure, deterministic, and have no invariant beyond reading in
// [0, maxRange].
func applySensors(state *episode.State, spec envspec.Spec) {
	agentByID := make(map[string]envspec.Agent, len(spec.Agents))
	for _, a := range spec.Agents {
		agentByID[a.ID] = a
	}

	for i := range state.Agents {
		def, ok := agentByID[state.Agents[i].ID]
		if !ok || len(def.Sensors) == 0 {
			state.Agents[i].SensorReadings = nil
			continue
		}
		readings := make([]episode.SensorReading, 0, len(def.Sensors))
		for _, sensor := range def.Sensors {
			readings = append(readings, episode.SensorReading{
				SensorID: sensor.ID,
				Value:    sense(state.Agents[i].Position, sensor, spec),
			})
		}
		state.Agents[i].SensorReadings = readings
	}
}

// sense evaluates one ray/proximity sensor: the distance to the nearest
// wall/obstacle along the sensor's heading, clamped to maxRange. A proximity
// sensor is modeled the same way (it is a zero-width ray), matching the
// original's sensor_models.py.
func sense(pos envspec.Position, sensor envspec.Sensor, spec envspec.Spec) float64 {
	maxRange := sensor.MaxRange
	if maxRange <= 0 {
		maxRange = 1.0
	}

	rad := sensor.HeadingDeg * math.Pi / 180
	dx, dy := math.Cos(rad), math.Sin(rad)

	best := maxRange
	for _, o := range spec.Objects {
		if o.Type != envspec.ObjectWall && o.Type != envspec.ObjectObstacle {
			continue
		}
		d := projectedDistance(pos, dx, dy, o.Position)
		if d >= 0 && d < best {
			best = d
		}
	}
	return best
}

// projectedDistance returns the along-ray distance from pos to target if
// target lies within a narrow cone around the ray direction (dx, dy), or -1
// if it does not intersect the sensor's cone.
func projectedDistance(pos envspec.Position, dx, dy float64, target envspec.Position) float64 {
	const coneHalfWidth = 0.5 // world units of perpendicular slack

	tx, ty := target.X-pos.X, target.Y-pos.Y
	along := tx*dx + ty*dy
	if along < 0 {
		return -1
	}
	perp := math.Abs(tx*dy - ty*dx)
	if perp > coneHalfWidth {
		return -1
	}
	return along
}
