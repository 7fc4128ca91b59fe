// Package analysis summarises delivery delays and sweeps link conditions with
// a probe workload.
package analysis

import (
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a set of delay samples.
type Summary struct {
	Count  int
	Mean   time.Duration
	StdDev time.Duration
	Min    time.Duration
	Max    time.Duration
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
}

// Summarize computes delay statistics. An empty input yields a zero Summary.
func Summarize(samples []time.Duration) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	secs := make([]float64, len(samples))
	for i, d := range samples {
		secs[i] = d.Seconds()
	}

	mean, std := stat.MeanStdDev(secs, nil)
	if len(secs) < 2 || math.IsNaN(std) {
		std = 0
	}
	lo, _ := stats.Min(secs)
	hi, _ := stats.Max(secs)

	return Summary{
		Count:  len(samples),
		Mean:   fromSeconds(mean),
		StdDev: fromSeconds(std),
		Min:    fromSeconds(lo),
		Max:    fromSeconds(hi),
		P50:    percentile(secs, 50, lo),
		P95:    percentile(secs, 95, lo),
		P99:    percentile(secs, 99, lo),
	}
}

// percentile falls back to the minimum for samples too small to resolve p.
func percentile(secs []float64, p, fallback float64) time.Duration {
	v, err := stats.Percentile(secs, p)
	if err != nil || math.IsNaN(v) {
		v = fallback
	}
	return fromSeconds(v)
}

func fromSeconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

func (s Summary) String() string {
	if s.Count == 0 {
		return "n=0"
	}
	return fmt.Sprintf("n=%d mean=%s sd=%s min=%s p50=%s p95=%s p99=%s max=%s",
		s.Count, s.Mean, s.StdDev, s.Min, s.P50, s.P95, s.P99, s.Max)
}
