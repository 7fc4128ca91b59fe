package robot

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/signalsfoundry/teleop-linksim/model"
)

func TestNewHomeConfiguration(t *testing.T) {
	tests := []struct {
		robotType string
		joints    []string
		z         float64
	}{
		{TypeArm6DOF, []string{"joint1", "joint2", "joint3", "joint4", "joint5", "joint6"}, 0.5},
		{TypeMobilePlatform, []string{"left_wheel", "right_wheel"}, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.robotType, func(t *testing.T) {
			r, err := New("r1", tt.robotType)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			st := r.State(time.Unix(10, 0))
			var names []string
			for _, j := range st.JointStates {
				names = append(names, j.Name)
			}
			if diff := cmp.Diff(tt.joints, names); diff != "" {
				t.Fatalf("joints mismatch (-want +got):\n%s", diff)
			}
			if st.Pose == nil || st.Pose.Position.Z != tt.z || st.Pose.Orientation != model.Identity() {
				t.Fatalf("pose = %+v, want z=%v identity", st.Pose, tt.z)
			}
			if st.RobotID != "r1" || !st.Timestamp.Equal(time.Unix(10, 0)) {
				t.Fatalf("state header = %q %v", st.RobotID, st.Timestamp)
			}
		})
	}
}

func TestNewUnknownType(t *testing.T) {
	if _, err := New("r1", "hexapod"); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("New() error = %v, want ErrUnknownType", err)
	}
}

func TestApplyJointPositionIgnoresExtraTargets(t *testing.T) {
	r, _ := New("arm", TypeArm6DOF)
	targets := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}
	if err := r.ApplyCommand(model.NewJointPositionCommand(targets, time.Now())); err != nil {
		t.Fatalf("ApplyCommand: %v", err)
	}
	st := r.State(time.Now())
	for i, j := range st.JointStates {
		if j.Position != targets[i] {
			t.Fatalf("%s position = %v, want %v", j.Name, j.Position, targets[i])
		}
	}
	if r.Applied() != 1 {
		t.Fatalf("Applied() = %d, want 1", r.Applied())
	}
}

func TestApplyCommandErrors(t *testing.T) {
	r, _ := New("arm", TypeArm6DOF)
	tests := []struct {
		name string
		cmd  model.Command
		want error
	}{
		{"unknown type", model.Command{Type: "gripper"}, ErrUnknownCommand},
		{"joint without positions", model.Command{Type: model.CommandJointPosition}, ErrMalformedCommand},
		{"velocity without angular", model.Command{Type: model.CommandVelocity, Data: map[string]any{"linear": 1.0}}, ErrMalformedCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.ApplyCommand(tt.cmd); !errors.Is(err, tt.want) {
				t.Fatalf("ApplyCommand() error = %v, want %v", err, tt.want)
			}
		})
	}
	if r.Applied() != 0 {
		t.Fatalf("Applied() = %d after failures, want 0", r.Applied())
	}
}

func TestMobilePlatformIntegratesVelocity(t *testing.T) {
	r, _ := New("rover", TypeMobilePlatform)
	if err := r.ApplyCommand(model.NewVelocityCommand(0.5, 0, time.Now())); err != nil {
		t.Fatalf("ApplyCommand: %v", err)
	}
	for i := 0; i < 100; i++ {
		r.Update(10 * time.Millisecond)
	}

	st := r.State(time.Now())
	if math.Abs(st.Pose.Position.X-0.5) > 1e-9 || math.Abs(st.Pose.Position.Y) > 1e-9 {
		t.Fatalf("position = %+v, want x=0.5 y=0", st.Pose.Position)
	}
	for _, j := range st.JointStates {
		if math.Abs(j.Velocity-5) > 1e-9 {
			t.Fatalf("%s velocity = %v, want 5 rad/s", j.Name, j.Velocity)
		}
	}
}

func TestMobilePlatformTurnsInPlace(t *testing.T) {
	r, _ := New("rover", TypeMobilePlatform)
	_ = r.ApplyCommand(model.NewVelocityCommand(0, math.Pi/2, time.Now()))
	r.Update(time.Second)

	st := r.State(time.Now())
	if yaw := st.Pose.Orientation.Yaw(); math.Abs(yaw-math.Pi/2) > 1e-9 {
		t.Fatalf("yaw = %v, want pi/2", yaw)
	}
	left, right := st.JointStates[0].Velocity, st.JointStates[1].Velocity
	if left >= 0 || right <= 0 || math.Abs(left+right) > 1e-9 {
		t.Fatalf("wheel velocities = %v, %v, want opposite", left, right)
	}
}

func TestArmHoldsPoseOnUpdate(t *testing.T) {
	r, _ := New("arm", TypeArm6DOF)
	_ = r.ApplyCommand(model.NewVelocityCommand(1, 1, time.Now()))
	before := r.State(time.Unix(0, 0))
	r.Update(time.Second)
	after := r.State(time.Unix(0, 0))
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("arm moved on Update (-before +after):\n%s", diff)
	}
}

func TestStateIsDetached(t *testing.T) {
	r, _ := New("arm", TypeArm6DOF)
	st := r.State(time.Now())
	st.JointStates[0].Position = 42
	st.Pose.Position.Z = 9

	again := r.State(time.Now())
	if again.JointStates[0].Position != 0 || again.Pose.Position.Z != 0.5 {
		t.Fatalf("snapshot mutation leaked into robot: %+v", again)
	}
}
