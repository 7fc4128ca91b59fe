// Package operator turns operator input events into robot commands and keeps
// the operator's view of the robot state received over the link.
package operator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/teleop-linksim/internal/logging"
	"github.com/signalsfoundry/teleop-linksim/model"
)

// UI modes.
const (
	ModeSimple   = "simple"
	ModeAdvanced = "advanced"
	ModeVR       = "vr"
)

// Input types.
const (
	InputKeyboard          = "keyboard"
	InputMouse             = "mouse"
	InputJoystick          = "joystick"
	InputJointTargets      = "joint_targets"
	InputVRControllerLeft  = "vr_controller_left"
	InputVRControllerRight = "vr_controller_right"
	InputVRHeadset         = "vr_headset"
)

const (
	keyboardSpeed     = 0.5
	defaultStaleAfter = 500 * time.Millisecond
)

// Feedback statuses.
const (
	StatusNormal  = "normal"
	StatusStale   = "stale"
	StatusNoState = "no_state"
)

// ErrNoHandler is returned for an input type the current mode does not handle.
var ErrNoHandler = errors.New("operator: no handler for input type")

// Input is one operator event.
type Input struct {
	Type   string    `json:"type" yaml:"type"`
	Key    string    `json:"key,omitempty" yaml:"key,omitempty"`
	Axes   []float64 `json:"axes,omitempty" yaml:"axes,omitempty"`
	Joints []float64 `json:"joints,omitempty" yaml:"joints,omitempty"`
}

// Feedback summarises what the operator currently sees.
type Feedback struct {
	Status          string
	Alerts          []string
	LastState       *model.RobotState
	StatesDisplayed uint64
	LastStateAge    time.Duration
}

type handler func(in Input, now time.Time) (model.Command, bool)

// Option customises an Operator.
type Option func(*Operator)

// WithLogger injects the structured logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Operator) { o.log = logging.OrNoop(l) }
}

// WithStaleAfter sets the state age beyond which feedback reports a stale view.
func WithStaleAfter(d time.Duration) Option {
	return func(o *Operator) {
		if d > 0 {
			o.staleAfter = d
		}
	}
}

// Operator is the operator station. It is safe for concurrent use.
type Operator struct {
	robotID    string
	mode       string
	log        logging.Logger
	staleAfter time.Duration
	handlers   map[string]handler

	mu        sync.Mutex
	last      *model.RobotState
	displayed uint64
	lastAge   time.Duration
}

// New builds an operator station for robotID. An unknown mode falls back to
// ModeSimple.
func New(robotID, mode string, opts ...Option) *Operator {
	o := &Operator{
		robotID:    robotID,
		log:        logging.Noop(),
		staleAfter: defaultStaleAfter,
	}
	for _, opt := range opts {
		opt(o)
	}

	if !ValidMode(mode) {
		o.log.Warn(context.Background(), "unknown ui mode, using simple", logging.String("mode", mode))
		mode = ModeSimple
	}
	o.mode = mode
	o.log = o.log.With(logging.String("robot_id", robotID), logging.String("ui_mode", mode))
	o.handlers = o.handlersFor(mode)

	o.log.Info(context.Background(), "operator station initialized", logging.Int("input_handlers", len(o.handlers)))
	return o
}

// ValidMode reports whether mode is a known UI mode.
func ValidMode(mode string) bool {
	switch mode {
	case ModeSimple, ModeAdvanced, ModeVR:
		return true
	}
	return false
}

func (o *Operator) handlersFor(mode string) map[string]handler {
	h := map[string]handler{InputJointTargets: jointTargets}
	switch mode {
	case ModeAdvanced:
		h[InputKeyboard] = keyboard
		h[InputMouse] = ignore
		h[InputJoystick] = joystick
	case ModeVR:
		h[InputVRControllerLeft] = ignore
		h[InputVRControllerRight] = ignore
		h[InputVRHeadset] = ignore
	default:
		h[InputKeyboard] = keyboard
		h[InputMouse] = ignore
	}
	return h
}

// Mode returns the active UI mode.
func (o *Operator) Mode() string { return o.mode }

// ProcessInput maps in to a command. ok is false when the input produces no
// command, such as an unmapped key.
func (o *Operator) ProcessInput(in Input, now time.Time) (cmd model.Command, ok bool, err error) {
	h, found := o.handlers[in.Type]
	if !found {
		o.log.Warn(context.Background(), "no handler for input type", logging.String("type", in.Type))
		return model.Command{}, false, fmt.Errorf("%w: %q in %s mode", ErrNoHandler, in.Type, o.mode)
	}
	cmd, ok = h(in, now)
	if ok {
		o.log.Debug(context.Background(), "input mapped to command", logging.String("input", in.Type), logging.String("command", cmd.Type))
	}
	return cmd, ok, nil
}

func keyboard(in Input, now time.Time) (model.Command, bool) {
	switch in.Key {
	case "w":
		return model.NewVelocityCommand(keyboardSpeed, 0, now), true
	case "s":
		return model.NewVelocityCommand(-keyboardSpeed, 0, now), true
	case "a":
		return model.NewVelocityCommand(0, keyboardSpeed, now), true
	case "d":
		return model.NewVelocityCommand(0, -keyboardSpeed, now), true
	case " ", "space":
		return model.NewVelocityCommand(0, 0, now), true
	}
	return model.Command{}, false
}

// joystick reads axes as [linear, angular], each clamped to [-1, 1].
func joystick(in Input, now time.Time) (model.Command, bool) {
	if len(in.Axes) < 2 {
		return model.Command{}, false
	}
	return model.NewVelocityCommand(clampUnit(in.Axes[0]), clampUnit(in.Axes[1]), now), true
}

func jointTargets(in Input, now time.Time) (model.Command, bool) {
	if len(in.Joints) == 0 {
		return model.Command{}, false
	}
	return model.NewJointPositionCommand(in.Joints, now), true
}

func ignore(Input, time.Time) (model.Command, bool) { return model.Command{}, false }

func clampUnit(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

// UpdateDisplay records state as the operator's current view.
func (o *Operator) UpdateDisplay(state model.RobotState, now time.Time) {
	st := state.Clone()
	age := st.Age(now)

	o.mu.Lock()
	o.last = &st
	o.displayed++
	o.lastAge = age
	o.mu.Unlock()

	o.log.Debug(context.Background(), "display updated", logging.Duration("state_age", age))
}

// Feedback reports what the operator currently sees.
func (o *Operator) Feedback() Feedback {
	o.mu.Lock()
	defer o.mu.Unlock()

	fb := Feedback{
		Status:          StatusNormal,
		StatesDisplayed: o.displayed,
		LastStateAge:    o.lastAge,
	}
	if o.last == nil {
		fb.Status = StatusNoState
		return fb
	}
	st := o.last.Clone()
	fb.LastState = &st
	if o.lastAge > o.staleAfter {
		fb.Status = StatusStale
		fb.Alerts = append(fb.Alerts, fmt.Sprintf("robot state is %s old (limit %s)", o.lastAge, o.staleAfter))
	}
	return fb
}
