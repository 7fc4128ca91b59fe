package teleop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/teleop-linksim/model"
	"github.com/signalsfoundry/teleop-linksim/netem"
	"github.com/signalsfoundry/teleop-linksim/operator"
	"github.com/signalsfoundry/teleop-linksim/robot"
	"github.com/signalsfoundry/teleop-linksim/timectrl"
)

// loopback delivers instantly, in order.
type loopback struct {
	commands []model.Command
	states   []model.RobotState
	shutdown bool
}

func (l *loopback) SendCommand(c model.Command)  { l.commands = append(l.commands, c) }
func (l *loopback) SendState(s model.RobotState) { l.states = append(l.states, s) }
func (l *loopback) Shutdown()                    { l.shutdown = true }
func (l *loopback) Stats() netem.LinkStats       { return netem.LinkStats{} }

func (l *loopback) ReceiveCommand() (model.Command, bool) {
	if len(l.commands) == 0 {
		return model.Command{}, false
	}
	c := l.commands[0]
	l.commands = l.commands[1:]
	return c, true
}

func (l *loopback) ReceiveState() (model.RobotState, bool) {
	if len(l.states) == 0 {
		return model.RobotState{}, false
	}
	s := l.states[0]
	l.states = l.states[1:]
	return s, true
}

type ageRecorder struct {
	mu   sync.Mutex
	ages []time.Duration
}

func (a *ageRecorder) ObserveStateAge(d time.Duration) {
	a.mu.Lock()
	a.ages = append(a.ages, d)
	a.mu.Unlock()
}

func newRover(t *testing.T) *robot.Robot {
	t.Helper()
	r, err := robot.New("rover", robot.TypeMobilePlatform)
	if err != nil {
		t.Fatalf("robot.New: %v", err)
	}
	return r
}

func TestStepRunsFullCycle(t *testing.T) {
	link := &loopback{}
	r := newRover(t)
	op := operator.New("rover", operator.ModeSimple)
	ages := &ageRecorder{}
	s := NewSession(op, link, r,
		WithStateAgeObserver(ages),
		WithScript([]operator.ScriptStep{
			{At: 0, Input: operator.Input{Type: operator.InputKeyboard, Key: "w"}},
			{At: 20 * time.Millisecond, Input: operator.Input{Type: operator.InputJoystick}},
			{At: 20 * time.Millisecond, Input: operator.Input{Type: operator.InputKeyboard, Key: "q"}},
		}),
	)

	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s.Step(context.Background(), start.Add(time.Duration(i)*10*time.Millisecond), 10*time.Millisecond)
	}

	rep := s.Report()
	want := Counters{
		Steps:           3,
		CommandsSent:    1,
		CommandsApplied: 1,
		InputErrors:     1,
		StatesSent:      3,
		StatesDisplayed: 3,
	}
	if rep.Counters != want {
		t.Fatalf("Counters = %+v, want %+v", rep.Counters, want)
	}
	if r.Applied() != 1 {
		t.Fatalf("robot applied %d commands, want 1", r.Applied())
	}

	fb := op.Feedback()
	if fb.LastState == nil || fb.LastState.Pose.Position.X <= 0 {
		t.Fatalf("operator never saw the rover move: %+v", fb.LastState)
	}
	if len(ages.ages) != 3 || rep.StateAge.Count != 3 {
		t.Fatalf("state ages observed = %d, summary count = %d, want 3", len(ages.ages), rep.StateAge.Count)
	}
}

func TestStepCountsRejectedCommands(t *testing.T) {
	link := &loopback{}
	s := NewSession(operator.New("rover", operator.ModeSimple), link, newRover(t))

	link.SendCommand(model.Command{Type: "teleport"})
	s.Step(context.Background(), time.Now(), 0)

	if got := s.Report().CommandsRejected; got != 1 {
		t.Fatalf("CommandsRejected = %d, want 1", got)
	}
}

func TestRunOverEmulatedLink(t *testing.T) {
	link := NewLink(netem.WithRandom(netem.SeededSources(5)))
	link.SetNetworkConditions(20*time.Millisecond, 0, netem.Unbounded)

	r := newRover(t)
	s := NewSession(operator.New("rover", operator.ModeSimple), link, r,
		WithScript([]operator.ScriptStep{
			{At: 0, Input: operator.Input{Type: operator.InputKeyboard, Key: "w"}},
		}),
	)

	tc := timectrl.NewTimeController(time.Now(), 5*time.Millisecond, timectrl.RealTime)
	rep, err := s.Run(context.Background(), tc, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if rep.SessionID == "" {
		t.Fatalf("report has no session id")
	}
	if rep.Steps != 60 || rep.StatesSent != 60 {
		t.Fatalf("steps/states sent = %d/%d, want 60/60", rep.Steps, rep.StatesSent)
	}
	if rep.CommandsSent != 1 || rep.CommandsApplied != 1 {
		t.Fatalf("commands sent/applied = %d/%d, want 1/1", rep.CommandsSent, rep.CommandsApplied)
	}
	if rep.StatesDisplayed == 0 || rep.StatesDisplayed >= rep.StatesSent {
		t.Fatalf("StatesDisplayed = %d, want some but fewer than sent", rep.StatesDisplayed)
	}
	// Ages are in loop time, so they are at least one tick even if the
	// ticker stalls.
	if rep.StateAge.Min < 5*time.Millisecond {
		t.Fatalf("state age min = %v, want at least one tick", rep.StateAge.Min)
	}
	if link.Running() {
		t.Fatalf("link still running after Run")
	}
	if rep.Link.States.Sent != 60 {
		t.Fatalf("link states sent = %d, want 60", rep.Link.States.Sent)
	}

	if _, err := s.Run(context.Background(), tc, time.Millisecond); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Run error = %v, want ErrAlreadyRunning", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	link := &loopback{}
	s := NewSession(operator.New("arm", operator.ModeAdvanced), link, newRover(t))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	tc := timectrl.NewTimeController(time.Now(), 5*time.Millisecond, timectrl.RealTime)
	done := make(chan Report, 1)
	go func() {
		rep, _ := s.Run(ctx, tc, 0)
		done <- rep
	}()

	select {
	case rep := <-done:
		if rep.Steps == 0 {
			t.Fatalf("no steps ran before cancel")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if !link.shutdown {
		t.Fatalf("link not shut down after cancel")
	}
}
