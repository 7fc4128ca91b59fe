package netem

import (
	"time"

	"github.com/signalsfoundry/teleop-linksim/internal/logging"
	"github.com/signalsfoundry/teleop-linksim/timectrl"
)

// defaultIdleWait bounds how long an idle worker sleeps before re-checking
// its pending set. Inserts wake it earlier.
const defaultIdleWait = time.Second

type options struct {
	clock     timectrl.Clock
	random    RandomFactory
	log       logging.Logger
	observers []Observer
	observer  Observer
	idleWait  time.Duration
}

// Option customises Channel and Link construction.
type Option func(*options)

// WithClock overrides the time source. Defaults to timectrl.RealClock.
func WithClock(c timectrl.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithRandom overrides how per-channel random sources are built.
// Defaults to StreamSource.
func WithRandom(f RandomFactory) Option {
	return func(o *options) {
		if f != nil {
			o.random = f
		}
	}
}

// WithLogger injects the structured logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		o.log = logging.OrNoop(l)
	}
}

// WithObserver attaches an event observer such as a metrics collector.
// Repeated use attaches several observers.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithIdleWait bounds the sleep of a worker with nothing pending.
func WithIdleWait(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idleWait = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		clock:    timectrl.RealClock{},
		random:   StreamSource,
		log:      logging.Noop(),
		idleWait: defaultIdleWait,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.observer = MultiObserver(o.observers...)
	return o
}
