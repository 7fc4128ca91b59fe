package netem

import (
	"fmt"
	"math"
	"time"
)

// jitterFraction is the share of latency used as jitter by SetNetworkConditions.
const jitterFraction = 0.1

// Unbounded is the bandwidth value meaning "no cap".
var Unbounded = math.Inf(1)

// Conditions describe one direction of the link. The zero value is a perfect
// link apart from a zero bandwidth cap; use DefaultConditions for an unbounded one.
type Conditions struct {
	Latency   time.Duration
	Jitter    time.Duration
	Loss      float64 // probability in [0, 1]
	Bandwidth float64 // bytes per second, Unbounded for no cap
}

// DefaultConditions is what a channel starts with: no delay, no loss, no cap.
func DefaultConditions() Conditions {
	return Conditions{Bandwidth: Unbounded}
}

// Clamp forces every field into its valid range. Out-of-range values are
// never rejected: negative latency becomes zero, loss is pinned to [0, 1],
// a NaN bandwidth is treated as unbounded.
func (c Conditions) Clamp() Conditions {
	if c.Latency < 0 {
		c.Latency = 0
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	switch {
	case math.IsNaN(c.Loss), c.Loss < 0:
		c.Loss = 0
	case c.Loss > 1:
		c.Loss = 1
	}
	switch {
	case math.IsNaN(c.Bandwidth):
		c.Bandwidth = Unbounded
	case c.Bandwidth < 0:
		c.Bandwidth = 0
	}
	return c
}

// DeriveConditions builds symmetric link conditions with jitter at 10% of latency.
func DeriveConditions(latency time.Duration, loss, bandwidth float64) Conditions {
	return Conditions{
		Latency:   latency,
		Jitter:    time.Duration(float64(latency) * jitterFraction),
		Loss:      loss,
		Bandwidth: bandwidth,
	}.Clamp()
}

// Seconds converts a float number of seconds to a Duration, mapping NaN and
// negative values to zero.
func Seconds(s float64) time.Duration {
	if math.IsNaN(s) || s <= 0 {
		return 0
	}
	if s >= math.MaxInt64/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(s * float64(time.Second))
}

func (c Conditions) String() string {
	bw := "unbounded"
	if !math.IsInf(c.Bandwidth, 1) {
		bw = fmt.Sprintf("%.0fB/s", c.Bandwidth)
	}
	return fmt.Sprintf("latency=%s jitter=%s loss=%.1f%% bandwidth=%s", c.Latency, c.Jitter, c.Loss*100, bw)
}
