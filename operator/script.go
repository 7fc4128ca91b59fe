package operator

import (
	"sort"
	"time"
)

// ScriptStep is an input replayed once the session has run for At.
type ScriptStep struct {
	At    time.Duration `json:"at" yaml:"at"`
	Input `yaml:",inline"`
}

// Script replays scripted inputs in time order. It is not safe for
// concurrent use.
type Script struct {
	steps []ScriptStep
	next  int
}

// NewScript sorts steps by At, keeping the order of steps with equal times.
func NewScript(steps []ScriptStep) *Script {
	sorted := append([]ScriptStep(nil), steps...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At < sorted[j].At })
	return &Script{steps: sorted}
}

// Due returns the inputs that became due at or before elapsed and have not
// been returned yet.
func (s *Script) Due(elapsed time.Duration) []Input {
	if s == nil {
		return nil
	}
	var due []Input
	for s.next < len(s.steps) && s.steps[s.next].At <= elapsed {
		due = append(due, s.steps[s.next].Input)
		s.next++
	}
	return due
}

// Remaining reports how many steps have not been replayed.
func (s *Script) Remaining() int {
	if s == nil {
		return 0
	}
	return len(s.steps) - s.next
}
