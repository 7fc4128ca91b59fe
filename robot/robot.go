// Package robot provides the kinematic robot that sits at the far end of the
// emulated link. It accepts commands and publishes state snapshots.
package robot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/signalsfoundry/teleop-linksim/internal/logging"
	"github.com/signalsfoundry/teleop-linksim/model"
)

// Supported robot types.
const (
	TypeArm6DOF        = "arm_6dof"
	TypeMobilePlatform = "mobile_platform"
)

// Differential drive geometry of the mobile platform, in metres.
const (
	wheelRadius = 0.1
	trackWidth  = 0.4
)

var (
	// ErrUnknownType is returned by New for an unsupported robot type.
	ErrUnknownType = errors.New("robot: unknown robot type")
	// ErrUnknownCommand is returned by ApplyCommand for an unsupported command type.
	ErrUnknownCommand = errors.New("robot: unknown command type")
	// ErrMalformedCommand is returned when a command lacks the data its type needs.
	ErrMalformedCommand = errors.New("robot: malformed command")
)

// Types lists the supported robot types.
func Types() []string {
	return []string{TypeArm6DOF, TypeMobilePlatform}
}

// Option customises a Robot.
type Option func(*Robot)

// WithLogger injects the structured logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Robot) {
		r.log = logging.OrNoop(l)
	}
}

// Robot is a simple kinematic model. It is safe for concurrent use.
type Robot struct {
	id        string
	robotType string
	log       logging.Logger

	mu      sync.Mutex
	joints  []model.JointState
	pose    model.Pose
	linear  float64
	angular float64
	applied uint64
}

// New builds a robot of the given type in its home configuration.
func New(id, robotType string, opts ...Option) (*Robot, error) {
	r := &Robot{
		id:        id,
		robotType: robotType,
		log:       logging.Noop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logging.String("robot_id", id), logging.String("robot_type", robotType))

	switch robotType {
	case TypeArm6DOF:
		r.joints = namedJoints("joint1", "joint2", "joint3", "joint4", "joint5", "joint6")
		r.pose = model.Pose{Position: model.Vector3{Z: 0.5}, Orientation: model.Identity()}
	case TypeMobilePlatform:
		r.joints = namedJoints("left_wheel", "right_wheel")
		r.pose = model.Pose{Position: model.Vector3{Z: 0.1}, Orientation: model.Identity()}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, robotType)
	}

	r.log.Info(context.Background(), "initialized robot", logging.Int("joints", len(r.joints)))
	return r, nil
}

func namedJoints(names ...string) []model.JointState {
	joints := make([]model.JointState, len(names))
	for i, name := range names {
		joints[i] = model.JointState{Name: name}
	}
	return joints
}

// ID returns the robot identifier.
func (r *Robot) ID() string { return r.id }

// Type returns the robot type.
func (r *Robot) Type() string { return r.robotType }

// ApplyCommand applies cmd. Joint targets beyond the robot's joint count are
// ignored.
func (r *Robot) ApplyCommand(cmd model.Command) error {
	ctx := context.Background()

	switch cmd.Type {
	case model.CommandJointPosition:
		positions, ok := cmd.JointPositions()
		if !ok {
			r.log.Warn(ctx, "joint position command missing positions")
			return fmt.Errorf("%w: joint_position without positions", ErrMalformedCommand)
		}
		r.mu.Lock()
		for i, p := range positions {
			if i >= len(r.joints) {
				break
			}
			r.joints[i].Position = p
		}
		r.applied++
		r.mu.Unlock()
		r.log.Debug(ctx, "applied joint positions", logging.Int("count", len(positions)))
		return nil

	case model.CommandVelocity:
		linear, angular, ok := cmd.Velocity()
		if !ok {
			r.log.Warn(ctx, "velocity command missing linear or angular")
			return fmt.Errorf("%w: velocity without linear/angular", ErrMalformedCommand)
		}
		r.mu.Lock()
		r.linear, r.angular = linear, angular
		r.applied++
		r.mu.Unlock()
		r.log.Debug(ctx, "set velocity", logging.Float64("linear", linear), logging.Float64("angular", angular))
		return nil

	default:
		r.log.Warn(ctx, "unknown command type", logging.String("type", cmd.Type))
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
}

// Update advances the robot by dt. The mobile platform integrates its
// commanded planar velocity; the arm holds its joint targets.
func (r *Robot) Update(dt time.Duration) {
	if dt <= 0 {
		return
	}
	secs := dt.Seconds()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.robotType != TypeMobilePlatform {
		return
	}

	yaw := r.pose.Orientation.Yaw() + r.angular*secs
	r.pose.Orientation = model.QuaternionFromYaw(yaw)
	r.pose.Position.X += r.linear * math.Cos(yaw) * secs
	r.pose.Position.Y += r.linear * math.Sin(yaw) * secs

	left := (r.linear - r.angular*trackWidth/2) / wheelRadius
	right := (r.linear + r.angular*trackWidth/2) / wheelRadius
	for i, w := range []float64{left, right} {
		r.joints[i].Velocity = w
		r.joints[i].Position += w * secs
	}
}

// State returns a snapshot stamped with now. The snapshot shares no memory
// with the robot.
func (r *Robot) State(now time.Time) model.RobotState {
	r.mu.Lock()
	defer r.mu.Unlock()
	pose := r.pose
	return model.RobotState{
		RobotID:     r.id,
		JointStates: r.joints,
		Pose:        &pose,
		Timestamp:   now,
	}.Clone()
}

// Applied returns the number of commands applied successfully.
func (r *Robot) Applied() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied
}
