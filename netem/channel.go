package netem

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/teleop-linksim/internal/logging"
	"github.com/signalsfoundry/teleop-linksim/timectrl"
)

type lifecycle int

const (
	lifecycleNew lifecycle = iota
	lifecycleRunning
	lifecycleStopped
)

func (l lifecycle) String() string {
	switch l {
	case lifecycleNew:
		return "new"
	case lifecycleRunning:
		return "running"
	default:
		return "stopped"
	}
}

// ChannelStats is a point-in-time view of a channel's counters. Once the
// channel is quiescent, Sent == Dropped + Delivered + Pending + Discarded.
type ChannelStats struct {
	Sent         uint64 // accepted while running, including dropped
	Dropped      uint64 // lost to the loss roll
	Delivered    uint64 // handed to the sink, including sink panics
	Discarded    uint64 // still pending when the channel stopped
	SinkFailures uint64 // sink panics recovered by the worker
	Refused      uint64 // sends while not running
	Pending      int
}

// Channel is one direction of the emulated link. It owns its pending set and
// a single delivery worker. Sink is invoked from the worker goroutine, one
// payload at a time, and must not call Stop on its own channel.
type Channel[T any] struct {
	name     string
	sink     func(T)
	clock    timectrl.Clock
	random   RandomSource
	log      logging.Logger
	observer Observer
	idleWait time.Duration

	mu         sync.Mutex
	conditions Conditions
	pending    pendingSet[T]
	seq        uint64
	state      lifecycle
	stats      ChannelStats

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewChannel builds a stopped channel delivering into sink. Call Start to
// launch its worker.
func NewChannel[T any](name string, sink func(T), opts ...Option) *Channel[T] {
	o := buildOptions(opts)
	if sink == nil {
		sink = func(T) {}
	}
	c := &Channel[T]{
		name:       name,
		sink:       sink,
		clock:      o.clock,
		random:     o.random(name),
		log:        o.log.With(logging.String("channel", name)),
		observer:   o.observer,
		idleWait:   o.idleWait,
		conditions: DefaultConditions(),
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	c.log.Info(context.Background(), "created network channel")
	return c
}

// Name returns the channel name.
func (c *Channel[T]) Name() string { return c.name }

// Start launches the delivery worker. It is a no-op unless the channel is new;
// a stopped channel cannot be restarted.
func (c *Channel[T]) Start() {
	c.mu.Lock()
	if c.state != lifecycleNew {
		c.mu.Unlock()
		return
	}
	c.state = lifecycleRunning
	c.mu.Unlock()

	go c.run()
	c.log.Info(context.Background(), "started network channel")
}

// Stop terminates the worker and discards anything still pending. It returns
// only after the worker has exited, so no delivery happens afterwards. Stop
// is safe to call more than once and from several goroutines.
func (c *Channel[T]) Stop() {
	c.mu.Lock()
	switch c.state {
	case lifecycleNew:
		c.state = lifecycleStopped
		close(c.stop)
		close(c.done)
		c.mu.Unlock()
		c.log.Info(context.Background(), "stopped network channel before start")
		return
	case lifecycleStopped:
		c.mu.Unlock()
		<-c.done
		return
	}
	c.state = lifecycleStopped
	close(c.stop)
	c.mu.Unlock()

	<-c.done
	c.log.Info(context.Background(), "stopped network channel")
}

// Running reports whether the worker is accepting and delivering traffic.
func (c *Channel[T]) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == lifecycleRunning
}

// Configure replaces the channel conditions wholesale after clamping. Only
// sends issued after Configure returns see the new values; envelopes already
// pending keep their deadlines.
func (c *Channel[T]) Configure(cond Conditions) {
	cond = cond.Clamp()

	c.mu.Lock()
	c.conditions = cond
	c.observer.OnConditions(c.name, cond)
	c.mu.Unlock()

	c.log.Info(context.Background(), "updated channel conditions",
		logging.Duration("latency", cond.Latency),
		logging.Duration("jitter", cond.Jitter),
		logging.Float64("packet_loss", cond.Loss),
		logging.Float64("bandwidth", cond.Bandwidth),
	)
}

// Conditions returns the current conditions.
func (c *Channel[T]) Conditions() Conditions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conditions
}

// Send schedules payload for delivery. A lost payload, or one sent while the
// channel is not running, vanishes without error. Send never waits for
// delivery.
func (c *Channel[T]) Send(payload T) {
	c.mu.Lock()
	if c.state != lifecycleRunning {
		c.stats.Refused++
		state := c.state
		c.mu.Unlock()
		c.log.Debug(context.Background(), "send on inactive channel ignored", logging.String("state", state.String()))
		return
	}
	c.stats.Sent++
	cond := c.conditions

	if c.random.Float64() < cond.Loss {
		c.stats.Dropped++
		c.mu.Unlock()
		c.observer.OnSend(c.name)
		c.observer.OnDrop(c.name)
		c.log.Debug(context.Background(), "packet dropped")
		return
	}

	now := c.clock.Now()
	deliverAt := now.Add(cond.Latency)
	if cond.Jitter > 0 {
		offset := time.Duration((c.random.Float64() - 0.5) * float64(cond.Jitter))
		deliverAt = deliverAt.Add(offset)
	}
	if deliverAt.Before(now) {
		deliverAt = now
	}

	c.seq++
	env := &envelope[T]{
		payload:   payload,
		sentAt:    now,
		deliverAt: deliverAt,
		seq:       c.seq,
	}
	isHead := c.pending.push(env)
	c.observer.OnPending(c.name, len(c.pending))
	c.mu.Unlock()

	if isHead {
		c.signal()
	}
	c.observer.OnSend(c.name)
	c.log.Debug(context.Background(), "payload queued",
		logging.Uint64("seq", env.seq),
		logging.Duration("delay", deliverAt.Sub(now)),
	)
}

// Stats returns a snapshot of the channel counters.
func (c *Channel[T]) Stats() ChannelStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Pending = len(c.pending)
	return s
}

// signal wakes a sleeping worker. The buffered slot coalesces bursts.
func (c *Channel[T]) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Channel[T]) run() {
	defer close(c.done)
	defer c.discardPending()

	for {
		c.mu.Lock()
		if c.state != lifecycleRunning {
			c.mu.Unlock()
			return
		}
		head := c.pending.peek()
		if head == nil {
			c.mu.Unlock()
			if !c.wait(c.idleWait) {
				return
			}
			continue
		}
		now := c.clock.Now()
		if head.deliverAt.After(now) {
			c.mu.Unlock()
			if !c.wait(head.deliverAt.Sub(now)) {
				return
			}
			continue
		}
		env := c.pending.pop()
		c.stats.Delivered++
		c.observer.OnPending(c.name, len(c.pending))
		c.mu.Unlock()

		c.deliver(env, now)
	}
}

// wait sleeps for d, or until an insert or Stop wakes the worker. It returns
// false when the worker must exit.
func (c *Channel[T]) wait(d time.Duration) bool {
	t := c.clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-c.stop:
		return false
	case <-c.wake:
		return true
	case <-t.C():
		return true
	}
}

func (c *Channel[T]) deliver(env *envelope[T], now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			c.mu.Lock()
			c.stats.SinkFailures++
			c.mu.Unlock()
			c.observer.OnSinkFailure(c.name)
			c.log.Error(context.Background(), "delivery sink failed",
				logging.Uint64("seq", env.seq),
				logging.Any("panic", r),
			)
		}
	}()

	c.observer.OnDeliver(c.name, now.Sub(env.sentAt))
	c.log.Debug(context.Background(), "payload delivered", logging.Uint64("seq", env.seq))
	c.sink(env.payload)
}

func (c *Channel[T]) discardPending() {
	c.mu.Lock()
	n := len(c.pending)
	c.pending = nil
	c.stats.Discarded += uint64(n)
	c.observer.OnPending(c.name, 0)
	c.mu.Unlock()

	if n > 0 {
		c.observer.OnDiscard(c.name, n)
		c.log.Info(context.Background(), "discarded pending payloads", logging.Int("count", n))
	}
}
