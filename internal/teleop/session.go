// Package teleop runs the teleoperation control loop: operator input travels
// to the robot over the emulated link, and robot state travels back.
package teleop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/teleop-linksim/internal/analysis"
	"github.com/signalsfoundry/teleop-linksim/internal/logging"
	"github.com/signalsfoundry/teleop-linksim/internal/observability"
	"github.com/signalsfoundry/teleop-linksim/model"
	"github.com/signalsfoundry/teleop-linksim/netem"
	"github.com/signalsfoundry/teleop-linksim/operator"
	"github.com/signalsfoundry/teleop-linksim/robot"
	"github.com/signalsfoundry/teleop-linksim/timectrl"
)

// ErrAlreadyRunning is returned when Run is called on a session that has
// already been started.
var ErrAlreadyRunning = errors.New("teleop: session already running")

// Link is the link pair as seen by the control loop.
type Link interface {
	SendCommand(model.Command)
	ReceiveCommand() (model.Command, bool)
	SendState(model.RobotState)
	ReceiveState() (model.RobotState, bool)
	Shutdown()
	Stats() netem.LinkStats
}

// NewLink builds the link pair carrying commands and robot states.
func NewLink(opts ...netem.Option) *netem.Link[model.Command, model.RobotState] {
	return netem.NewLink[model.Command, model.RobotState](opts...)
}

// StateAgeObserver records how old displayed states are.
type StateAgeObserver interface {
	ObserveStateAge(age time.Duration)
}

// Option customises a Session.
type Option func(*Session)

// WithLogger injects the structured logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Session) { s.log = logging.OrNoop(l) }
}

// WithScript replays scripted operator inputs.
func WithScript(steps []operator.ScriptStep) Option {
	return func(s *Session) { s.script = operator.NewScript(steps) }
}

// WithStateAgeObserver reports every displayed state's age, typically to
// observability.LinkCollector.
func WithStateAgeObserver(o StateAgeObserver) Option {
	return func(s *Session) { s.ages = o }
}

// Session couples an operator station, a link pair and a robot.
type Session struct {
	operator *operator.Operator
	link     Link
	robot    *robot.Robot
	script   *operator.Script
	log      logging.Logger
	ages     StateAgeObserver
	tracer   trace.Tracer

	started atomic.Bool

	mu        sync.Mutex
	id        string
	start     time.Time
	counters  Counters
	stateAges []time.Duration
}

// Counters tallies what the loop has done.
type Counters struct {
	Steps            uint64
	CommandsSent     uint64
	CommandsApplied  uint64
	CommandsRejected uint64
	InputErrors      uint64
	StatesSent       uint64
	StatesDisplayed  uint64
}

// Report summarises a finished or running session.
type Report struct {
	SessionID string
	Counters
	StateAge analysis.Summary
	Link     netem.LinkStats
}

// NewSession wires the three parties together.
func NewSession(op *operator.Operator, link Link, r *robot.Robot, opts ...Option) *Session {
	s := &Session{
		operator: op,
		link:     link,
		robot:    r,
		log:      logging.Noop(),
		tracer:   observability.Tracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Step runs one control cycle at now, dt after the previous one: the robot
// advances, due inputs become commands, commands that have arrived are
// applied, a state snapshot is sent, and states that have arrived are
// displayed. Step must not be called concurrently.
func (s *Session) Step(ctx context.Context, now time.Time, dt time.Duration) {
	ctx, span := s.tracer.Start(ctx, "teleop/step")
	defer span.End()

	s.mu.Lock()
	if s.start.IsZero() {
		s.start = now
	}
	elapsed := now.Sub(s.start)
	s.mu.Unlock()

	var c Counters
	c.Steps = 1

	s.robot.Update(dt)

	for _, in := range s.script.Due(elapsed) {
		cmd, ok, err := s.operator.ProcessInput(in, now)
		if err != nil {
			c.InputErrors++
			s.log.Warn(ctx, "operator input rejected", logging.Err(err))
			continue
		}
		if !ok {
			continue
		}
		s.link.SendCommand(cmd)
		c.CommandsSent++
	}

	for {
		cmd, ok := s.link.ReceiveCommand()
		if !ok {
			break
		}
		if err := s.robot.ApplyCommand(cmd); err != nil {
			c.CommandsRejected++
			s.log.Warn(ctx, "robot rejected command", logging.String("type", cmd.Type), logging.Err(err))
			continue
		}
		c.CommandsApplied++
	}

	s.link.SendState(s.robot.State(now))
	c.StatesSent++

	var ages []time.Duration
	for {
		st, ok := s.link.ReceiveState()
		if !ok {
			break
		}
		s.operator.UpdateDisplay(st, now)
		age := st.Age(now)
		ages = append(ages, age)
		if s.ages != nil {
			s.ages.ObserveStateAge(age)
		}
	}
	c.StatesDisplayed = uint64(len(ages))

	s.mu.Lock()
	s.counters.add(c)
	s.stateAges = append(s.stateAges, ages...)
	s.mu.Unlock()

	span.SetAttributes(
		attribute.Int64("commands_sent", int64(c.CommandsSent)),
		attribute.Int64("commands_applied", int64(c.CommandsApplied)),
		attribute.Int64("states_displayed", int64(c.StatesDisplayed)),
	)
}

func (c *Counters) add(o Counters) {
	c.Steps += o.Steps
	c.CommandsSent += o.CommandsSent
	c.CommandsApplied += o.CommandsApplied
	c.CommandsRejected += o.CommandsRejected
	c.InputErrors += o.InputErrors
	c.StatesSent += o.StatesSent
	c.StatesDisplayed += o.StatesDisplayed
}

// Run drives Step from tc until ctx is cancelled or duration elapses (zero
// runs until cancelled), then shuts the link down. A session runs once.
func (s *Session) Run(ctx context.Context, tc *timectrl.TimeController, duration time.Duration) (Report, error) {
	if !s.started.CompareAndSwap(false, true) {
		return Report{}, ErrAlreadyRunning
	}

	ctx, log := logging.WithSessionLogger(ctx, s.log)
	s.mu.Lock()
	s.id = logging.SessionIDFromContext(ctx)
	s.start = tc.StartTime
	s.mu.Unlock()

	log.Info(ctx, "teleoperation session started",
		logging.Duration("tick", tc.Tick),
		logging.String("clock_mode", tc.Mode.String()),
		logging.Duration("duration", duration),
		logging.Int("scripted_inputs", s.script.Remaining()),
	)

	prev := tc.StartTime
	tc.AddListener(func(now time.Time) {
		dt := now.Sub(prev)
		prev = now
		s.Step(ctx, now, dt)
	})
	<-tc.StartContext(ctx, duration)

	s.link.Shutdown()
	report := s.Report()
	log.Info(context.WithoutCancel(ctx), "teleoperation session stopped",
		logging.Uint64("steps", report.Steps),
		logging.Uint64("commands_sent", report.CommandsSent),
		logging.Uint64("commands_applied", report.CommandsApplied),
		logging.Uint64("states_displayed", report.StatesDisplayed),
		logging.Duration("state_age_p50", report.StateAge.P50),
		logging.Duration("state_age_p99", report.StateAge.P99),
	)
	return report, nil
}

// Report returns the counters gathered so far.
func (s *Session) Report() Report {
	s.mu.Lock()
	r := Report{
		SessionID: s.id,
		Counters:  s.counters,
		StateAge:  analysis.Summarize(s.stateAges),
	}
	s.mu.Unlock()
	r.Link = s.link.Stats()
	return r
}
