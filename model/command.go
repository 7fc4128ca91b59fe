package model

import "time"

// Command types understood by the robot.
const (
	CommandVelocity      = "velocity"
	CommandJointPosition = "joint_position"
)

// Command data keys.
const (
	keyLinear    = "linear"
	keyAngular   = "angular"
	keyPositions = "positions"
)

// Command flows operator -> robot. Data is interpreted according to Type;
// the link layer never looks inside it.
type Command struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewVelocityCommand builds a planar velocity command (m/s, rad/s).
func NewVelocityCommand(linear, angular float64, ts time.Time) Command {
	return Command{
		Type:      CommandVelocity,
		Data:      map[string]any{keyLinear: linear, keyAngular: angular},
		Timestamp: ts,
	}
}

// NewJointPositionCommand builds a joint target command. The slice is copied.
func NewJointPositionCommand(positions []float64, ts time.Time) Command {
	return Command{
		Type:      CommandJointPosition,
		Data:      map[string]any{keyPositions: append([]float64(nil), positions...)},
		Timestamp: ts,
	}
}

// Velocity returns the linear and angular components of a velocity command.
// ok is false when either component is missing or not numeric.
func (c Command) Velocity() (linear, angular float64, ok bool) {
	linear, okL := toFloat(c.Data[keyLinear])
	angular, okA := toFloat(c.Data[keyAngular])
	return linear, angular, okL && okA
}

// JointPositions returns the joint targets of a joint_position command.
func (c Command) JointPositions() ([]float64, bool) {
	switch v := c.Data[keyPositions].(type) {
	case []float64:
		return v, true
	case []any:
		out := make([]float64, 0, len(v))
		for _, item := range v {
			f, ok := toFloat(item)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	default:
		return nil, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
