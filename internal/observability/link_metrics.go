package observability

import (
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/teleop-linksim/netem"
)

// LinkCollector exposes per-channel emulator metrics. It implements
// netem.Observer so it can be attached with netem.WithObserver.
type LinkCollector struct {
	gatherer prometheus.Gatherer

	Sent         *prometheus.CounterVec
	Dropped      *prometheus.CounterVec
	Delivered    *prometheus.CounterVec
	Discarded    *prometheus.CounterVec
	SinkFailures *prometheus.CounterVec
	Pending      *prometheus.GaugeVec
	Delay        *prometheus.HistogramVec
	Conditions   *prometheus.GaugeVec
	StateAge     prometheus.Histogram
}

var _ netem.Observer = (*LinkCollector)(nil)

var delayBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.15, 0.2, 0.3, 0.5, 1, 2, 5}

// NewLinkCollector registers link metrics against the provided registerer.
func NewLinkCollector(reg prometheus.Registerer) (*LinkCollector, error) {
	reg, gatherer := resolveRegistry(reg)

	counter := func(name, help string) (*prometheus.CounterVec, error) {
		return register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name,
			Help: help,
		}, []string{"channel"}), name)
	}

	sent, err := counter("teleop_link_sent_total", "Payloads accepted by a channel, including dropped ones.")
	if err != nil {
		return nil, err
	}
	dropped, err := counter("teleop_link_dropped_total", "Payloads lost to the packet loss roll.")
	if err != nil {
		return nil, err
	}
	delivered, err := counter("teleop_link_delivered_total", "Payloads handed to the destination queue.")
	if err != nil {
		return nil, err
	}
	discarded, err := counter("teleop_link_discarded_total", "Payloads still pending when a channel stopped.")
	if err != nil {
		return nil, err
	}
	failures, err := counter("teleop_link_sink_failures_total", "Delivery sink panics recovered by the channel worker.")
	if err != nil {
		return nil, err
	}

	pending, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "teleop_link_pending",
		Help: "Payloads currently waiting for their delivery deadline.",
	}, []string{"channel"}), "teleop_link_pending")
	if err != nil {
		return nil, err
	}

	delay, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "teleop_link_delivery_delay_seconds",
		Help:    "Observed time between send and delivery.",
		Buckets: delayBuckets,
	}, []string{"channel"}), "teleop_link_delivery_delay_seconds")
	if err != nil {
		return nil, err
	}

	conditions, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "teleop_link_condition",
		Help: "Configured channel conditions; bandwidth is -1 when unbounded.",
	}, []string{"channel", "parameter"}), "teleop_link_condition")
	if err != nil {
		return nil, err
	}

	stateAge, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "teleop_state_age_seconds",
		Help:    "Age of robot states when displayed to the operator.",
		Buckets: delayBuckets,
	}), "teleop_state_age_seconds")
	if err != nil {
		return nil, err
	}

	return &LinkCollector{
		gatherer:     gatherer,
		Sent:         sent,
		Dropped:      dropped,
		Delivered:    delivered,
		Discarded:    discarded,
		SinkFailures: failures,
		Pending:      pending,
		Delay:        delay,
		Conditions:   conditions,
		StateAge:     stateAge,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *LinkCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *LinkCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

func (c *LinkCollector) OnSend(channel string) {
	if c == nil {
		return
	}
	c.Sent.WithLabelValues(channel).Inc()
}

func (c *LinkCollector) OnDrop(channel string) {
	if c == nil {
		return
	}
	c.Dropped.WithLabelValues(channel).Inc()
}

func (c *LinkCollector) OnDeliver(channel string, delay time.Duration) {
	if c == nil {
		return
	}
	c.Delivered.WithLabelValues(channel).Inc()
	c.Delay.WithLabelValues(channel).Observe(delay.Seconds())
}

func (c *LinkCollector) OnDiscard(channel string, n int) {
	if c == nil {
		return
	}
	c.Discarded.WithLabelValues(channel).Add(float64(n))
}

func (c *LinkCollector) OnSinkFailure(channel string) {
	if c == nil {
		return
	}
	c.SinkFailures.WithLabelValues(channel).Inc()
}

func (c *LinkCollector) OnPending(channel string, n int) {
	if c == nil {
		return
	}
	c.Pending.WithLabelValues(channel).Set(float64(n))
}

func (c *LinkCollector) OnConditions(channel string, cond netem.Conditions) {
	if c == nil {
		return
	}
	bandwidth := cond.Bandwidth
	if math.IsInf(bandwidth, 1) {
		bandwidth = -1
	}
	c.Conditions.WithLabelValues(channel, "latency_seconds").Set(cond.Latency.Seconds())
	c.Conditions.WithLabelValues(channel, "jitter_seconds").Set(cond.Jitter.Seconds())
	c.Conditions.WithLabelValues(channel, "packet_loss").Set(cond.Loss)
	c.Conditions.WithLabelValues(channel, "bandwidth_bytes_per_second").Set(bandwidth)
}

// ObserveStateAge records how stale a displayed robot state was.
func (c *LinkCollector) ObserveStateAge(age time.Duration) {
	if c == nil || c.StateAge == nil {
		return
	}
	if age < 0 {
		age = 0
	}
	c.StateAge.Observe(age.Seconds())
}
