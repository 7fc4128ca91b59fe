package model

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestVelocityCommandRoundTrip(t *testing.T) {
	cmd := NewVelocityCommand(0.5, -0.25, time.Unix(10, 0))
	if cmd.Type != CommandVelocity {
		t.Fatalf("Type = %q, want %q", cmd.Type, CommandVelocity)
	}
	linear, angular, ok := cmd.Velocity()
	if !ok || linear != 0.5 || angular != -0.25 {
		t.Fatalf("Velocity() = (%v, %v, %v), want (0.5, -0.25, true)", linear, angular, ok)
	}
}

func TestVelocityMissingComponent(t *testing.T) {
	cmd := Command{Type: CommandVelocity, Data: map[string]any{"linear": 1.0}}
	if _, _, ok := cmd.Velocity(); ok {
		t.Fatalf("Velocity() ok = true for missing angular")
	}
}

func TestJointPositionsAcceptsGenericSlices(t *testing.T) {
	cmd := Command{Type: CommandJointPosition, Data: map[string]any{"positions": []any{1.0, 2, 3.5}}}
	got, ok := cmd.JointPositions()
	if !ok {
		t.Fatalf("JointPositions() ok = false")
	}
	if diff := cmp.Diff([]float64{1, 2, 3.5}, got); diff != "" {
		t.Fatalf("JointPositions() mismatch (-want +got):\n%s", diff)
	}

	bad := Command{Type: CommandJointPosition, Data: map[string]any{"positions": []any{"x"}}}
	if _, ok := bad.JointPositions(); ok {
		t.Fatalf("JointPositions() ok = true for non-numeric entry")
	}
}

func TestNewJointPositionCommandCopiesInput(t *testing.T) {
	in := []float64{0.1, 0.2}
	cmd := NewJointPositionCommand(in, time.Time{})
	in[0] = 9
	got, _ := cmd.JointPositions()
	if got[0] != 0.1 {
		t.Fatalf("positions[0] = %v, want 0.1", got[0])
	}
}

func TestRobotStateCloneIsDeep(t *testing.T) {
	orig := RobotState{
		RobotID:     "r1",
		JointStates: []JointState{{Name: "j1", Position: 1}},
		Pose:        &Pose{Position: Vector3{X: 1}, Orientation: Identity()},
	}
	clone := orig.Clone()
	clone.JointStates[0].Position = 5
	clone.Pose.Position.X = 7

	if orig.JointStates[0].Position != 1 {
		t.Fatalf("original joint mutated: %v", orig.JointStates[0].Position)
	}
	if orig.Pose.Position.X != 1 {
		t.Fatalf("original pose mutated: %v", orig.Pose.Position.X)
	}
}

func TestQuaternionYawRoundTrip(t *testing.T) {
	for _, yaw := range []float64{0, 0.5, -1.2, math.Pi / 2} {
		if got := QuaternionFromYaw(yaw).Yaw(); math.Abs(got-yaw) > 1e-9 {
			t.Fatalf("Yaw(%v) = %v", yaw, got)
		}
	}
}

func TestRobotStateAge(t *testing.T) {
	ts := time.Unix(100, 0)
	s := RobotState{Timestamp: ts}
	if got := s.Age(ts.Add(30 * time.Millisecond)); got != 30*time.Millisecond {
		t.Fatalf("Age = %v, want 30ms", got)
	}
	if got := (RobotState{}).Age(ts); got != 0 {
		t.Fatalf("zero timestamp Age = %v, want 0", got)
	}
}
