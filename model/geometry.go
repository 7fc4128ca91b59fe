package model

import "math"

// Vector3 is a position or direction in metres, robot base frame.
type Vector3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Add returns v + o.
func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Quaternion is a unit rotation in (w, x, y, z) order.
type Quaternion struct {
	W float64 `json:"w" yaml:"w"`
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Identity returns the no-rotation quaternion.
func Identity() Quaternion { return Quaternion{W: 1} }

// QuaternionFromYaw builds a rotation about the Z axis.
func QuaternionFromYaw(yaw float64) Quaternion {
	half := yaw / 2
	return Quaternion{W: math.Cos(half), Z: math.Sin(half)}
}

// Yaw extracts the rotation about the Z axis in radians.
func (q Quaternion) Yaw() float64 {
	return math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))
}

// Pose is a position plus orientation.
type Pose struct {
	Position    Vector3    `json:"position" yaml:"position"`
	Orientation Quaternion `json:"orientation" yaml:"orientation"`
}
