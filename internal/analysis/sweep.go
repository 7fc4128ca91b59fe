package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/teleop-linksim/internal/logging"
	"github.com/signalsfoundry/teleop-linksim/internal/observability"
	"github.com/signalsfoundry/teleop-linksim/netem"
)

// Probe is the payload sent through the link under test.
type Probe struct {
	Seq    int
	SentAt time.Time
}

// ProbeLink is the part of a link pair the sweep drives.
type ProbeLink interface {
	SetConditions(netem.Conditions)
	SendCommand(Probe)
	ReceiveCommand() (Probe, bool)
	Shutdown()
}

// LinkFactory builds a fresh link for one case.
type LinkFactory func(opts ...netem.Option) ProbeLink

// NewProbeLink is the default LinkFactory.
func NewProbeLink(opts ...netem.Option) ProbeLink {
	return netem.NewLink[Probe, Probe](opts...)
}

// Result is the outcome of probing one case.
type Result struct {
	Case       string
	Conditions netem.Conditions
	Sent       int
	Received   int
	Reordered  int
	Delay      Summary
}

// DeliveredFraction is Received / Sent.
func (r Result) DeliveredFraction() float64 {
	if r.Sent == 0 {
		return 0
	}
	return float64(r.Received) / float64(r.Sent)
}

// Sweeper runs plans. The zero value uses NewProbeLink and discards logs.
type Sweeper struct {
	NewLink LinkFactory
	Log     logging.Logger
	// Options are passed to every link, e.g. a metrics observer.
	Options []netem.Option
}

// Sweep runs plan with newLink, which may be nil.
func Sweep(ctx context.Context, plan Plan, newLink LinkFactory) ([]Result, error) {
	return Sweeper{NewLink: newLink}.Run(ctx, plan)
}

// Run probes every case in order. It stops early when ctx is cancelled and
// returns the results gathered so far.
func (s Sweeper) Run(ctx context.Context, plan Plan) ([]Result, error) {
	if len(plan.Cases) == 0 {
		return nil, ErrEmptyPlan
	}
	plan.ApplyDefaults()
	log := logging.OrNoop(s.Log)

	results := make([]Result, 0, len(plan.Cases))
	for _, c := range plan.Cases {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.runCase(ctx, plan, c, log)
		if err != nil {
			return results, fmt.Errorf("case %s: %w", c.Name, err)
		}
		log.Info(ctx, "sweep case complete",
			logging.String("case", res.Case),
			logging.Int("sent", res.Sent),
			logging.Int("received", res.Received),
			logging.Int("reordered", res.Reordered),
			logging.Duration("p50", res.Delay.P50),
			logging.Duration("p99", res.Delay.P99),
		)
		results = append(results, res)
	}
	return results, nil
}

func (s Sweeper) runCase(ctx context.Context, plan Plan, c Case, log logging.Logger) (res Result, err error) {
	ctx, span := observability.Tracer().Start(ctx, "analysis/sweep_case")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	cond := c.Conditions()
	span.SetAttributes(
		attribute.String("case", c.Name),
		attribute.String("conditions", cond.String()),
		attribute.Int("probes", plan.Probes),
	)

	delays := &delayRecorder{channel: netem.OperatorToRobot}
	opts := append([]netem.Option{
		netem.WithRandom(c.RandomFactory()),
		netem.WithLogger(log),
	}, s.Options...)
	opts = append(opts, netem.WithObserver(delays))

	newLink := s.NewLink
	if newLink == nil {
		newLink = NewProbeLink
	}
	link := newLink(opts...)
	defer link.Shutdown()
	link.SetConditions(cond)

	res = Result{Case: c.Name, Conditions: cond}
	maxSeq := -1
	drain := func() {
		for {
			p, ok := link.ReceiveCommand()
			if !ok {
				return
			}
			res.Received++
			if p.Seq < maxSeq {
				res.Reordered++
			} else {
				maxSeq = p.Seq
			}
		}
	}

	ticker := time.NewTicker(plan.Interval)
	defer ticker.Stop()
	for seq := 0; seq < plan.Probes; seq++ {
		if seq > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-ticker.C:
			}
		}
		link.SendCommand(Probe{Seq: seq, SentAt: time.Now()})
		res.Sent++
		drain()
	}

	horizon := cond.Latency + cond.Jitter/2 + plan.Settle
	select {
	case <-ctx.Done():
		return res, ctx.Err()
	case <-time.After(horizon):
	}
	drain()

	res.Delay = Summarize(delays.snapshot())
	span.SetAttributes(
		attribute.Int("received", res.Received),
		attribute.Int("reordered", res.Reordered),
	)
	return res, nil
}

// delayRecorder captures exact send-to-delivery delays from the channel
// worker, free of receive polling lag.
type delayRecorder struct {
	channel string

	mu     sync.Mutex
	delays []time.Duration
}

func (d *delayRecorder) snapshot() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Duration(nil), d.delays...)
}

func (d *delayRecorder) OnDeliver(channel string, delay time.Duration) {
	if channel != d.channel {
		return
	}
	d.mu.Lock()
	d.delays = append(d.delays, delay)
	d.mu.Unlock()
}

func (d *delayRecorder) OnSend(string)                         {}
func (d *delayRecorder) OnDrop(string)                         {}
func (d *delayRecorder) OnDiscard(string, int)                 {}
func (d *delayRecorder) OnSinkFailure(string)                  {}
func (d *delayRecorder) OnPending(string, int)                 {}
func (d *delayRecorder) OnConditions(string, netem.Conditions) {}
