package model

import "time"

// JointState is the state of a single robot joint.
type JointState struct {
	Name     string  `json:"name"`
	Position float64 `json:"position"`
	Velocity float64 `json:"velocity"`
	Effort   float64 `json:"effort"`
}

// RobotState flows robot -> operator.
type RobotState struct {
	RobotID     string       `json:"robot_id"`
	JointStates []JointState `json:"joint_states"`
	Pose        *Pose        `json:"pose,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Clone returns a deep copy so a snapshot in flight never aliases robot memory.
func (s RobotState) Clone() RobotState {
	out := s
	if s.JointStates != nil {
		out.JointStates = append([]JointState(nil), s.JointStates...)
	}
	if s.Pose != nil {
		p := *s.Pose
		out.Pose = &p
	}
	return out
}

// Age reports how old the snapshot is at now.
func (s RobotState) Age(now time.Time) time.Duration {
	if s.Timestamp.IsZero() {
		return 0
	}
	return now.Sub(s.Timestamp)
}
