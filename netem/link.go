package netem

import (
	"context"
	"time"

	"github.com/signalsfoundry/teleop-linksim/internal/logging"
)

// Channel names used by Link.
const (
	OperatorToRobot = "operator_to_robot"
	RobotToOperator = "robot_to_operator"
)

// LinkStats holds the counters of both directions.
type LinkStats struct {
	Commands ChannelStats
	States   ChannelStats
}

// Link is the bidirectional emulator between an operator and a robot.
// Commands of type C travel operator -> robot, states of type S travel
// robot -> operator. Both directions are independent: no ordering holds
// between a command and a state.
type Link[C, S any] struct {
	log logging.Logger

	commands *Queue[C]
	states   *Queue[S]

	toRobot    *Channel[C]
	toOperator *Channel[S]
}

// NewLink builds both channels, wires their sinks into the destination
// queues, and starts both workers.
func NewLink[C, S any](opts ...Option) *Link[C, S] {
	o := buildOptions(opts)
	l := &Link[C, S]{
		log:      o.log,
		commands: NewQueue[C](),
		states:   NewQueue[S](),
	}
	l.toRobot = NewChannel(OperatorToRobot, l.commands.Push, opts...)
	l.toOperator = NewChannel(RobotToOperator, l.states.Push, opts...)

	l.toRobot.Start()
	l.toOperator.Start()

	l.log.Info(context.Background(), "network simulator initialized")
	return l
}

// SetNetworkConditions applies the same conditions to both directions, with
// jitter derived as 10% of latency.
func (l *Link[C, S]) SetNetworkConditions(latency time.Duration, loss, bandwidth float64) {
	l.SetConditions(DeriveConditions(latency, loss, bandwidth))
}

// SetConditions applies cond, jitter included, to both directions.
func (l *Link[C, S]) SetConditions(cond Conditions) {
	l.toRobot.Configure(cond)
	l.toOperator.Configure(cond)
}

// Conditions returns the conditions of the operator -> robot direction.
// Both directions are always configured together.
func (l *Link[C, S]) Conditions() Conditions {
	return l.toRobot.Conditions()
}

// SendCommand sends cmd towards the robot.
func (l *Link[C, S]) SendCommand(cmd C) {
	l.toRobot.Send(cmd)
}

// ReceiveCommand pops the oldest command that has arrived at the robot.
// ok is false when nothing is available.
func (l *Link[C, S]) ReceiveCommand() (C, bool) {
	return l.commands.Pop()
}

// SendState sends state towards the operator.
func (l *Link[C, S]) SendState(state S) {
	l.toOperator.Send(state)
}

// ReceiveState pops the oldest state that has arrived at the operator.
// ok is false when nothing is available.
func (l *Link[C, S]) ReceiveState() (S, bool) {
	return l.states.Pop()
}

// Shutdown stops both workers. Payloads already delivered remain receivable;
// pending ones are discarded.
func (l *Link[C, S]) Shutdown() {
	l.toRobot.Stop()
	l.toOperator.Stop()
	l.log.Info(context.Background(), "network simulator stopped")
}

// Running reports whether both directions are running.
func (l *Link[C, S]) Running() bool {
	return l.toRobot.Running() && l.toOperator.Running()
}

// Stats returns counters for both directions.
func (l *Link[C, S]) Stats() LinkStats {
	return LinkStats{
		Commands: l.toRobot.Stats(),
		States:   l.toOperator.Stats(),
	}
}
