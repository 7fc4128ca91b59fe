package netem

import (
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/teleop-linksim/timectrl"
)

// manualClock only moves when Advance is called.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	c       chan time.Time
	at      time.Time
	fired   bool
	stopped bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *manualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualClock) NewTimer(d time.Duration) timectrl.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{clock: m, c: make(chan time.Time, 1), at: m.now.Add(d)}
	if d <= 0 {
		t.fired = true
		t.c <- m.now
		return t
	}
	m.timers = append(m.timers, t)
	return t
}

func (m *manualClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	live := m.timers[:0]
	for _, t := range m.timers {
		if t.stopped || t.fired {
			continue
		}
		if !t.at.After(m.now) {
			t.fired = true
			t.c <- m.now
			continue
		}
		live = append(live, t)
	}
	m.timers = live
}

// awaitTimer blocks until a worker is parked on a live timer due at at, so a
// following Advance cannot race the worker computing its deadline.
func (m *manualClock) awaitTimer(t *testing.T, at time.Time) {
	t.Helper()
	waitFor(t, "timer at "+at.String(), func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, tm := range m.timers {
			if !tm.stopped && !tm.fired && tm.at.Equal(at) {
				return true
			}
		}
		return false
	})
}

func (t *manualTimer) C() <-chan time.Time { return t.c }

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.fired && !t.stopped
	t.stopped = true
	return active
}

// recorder is a goroutine-safe sink.
type recorder[T any] struct {
	mu    sync.Mutex
	items []T
	times []time.Time
}

func (r *recorder[T]) sink(v T) {
	r.mu.Lock()
	r.items = append(r.items, v)
	r.times = append(r.times, time.Now())
	r.mu.Unlock()
}

func (r *recorder[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.items...)
}

func (r *recorder[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func seeded() Option {
	return WithRandom(SeededSources(42))
}
