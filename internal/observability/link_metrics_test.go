package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/teleop-linksim/netem"
)

func TestLinkCollectorRecordsChannelEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewLinkCollector(reg)
	if err != nil {
		t.Fatalf("NewLinkCollector: %v", err)
	}

	ch := netem.OperatorToRobot
	c.OnSend(ch)
	c.OnSend(ch)
	c.OnDrop(ch)
	c.OnDeliver(ch, 120*time.Millisecond)
	c.OnDiscard(ch, 3)
	c.OnSinkFailure(ch)
	c.OnPending(ch, 4)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"sent", testutil.ToFloat64(c.Sent.WithLabelValues(ch)), 2},
		{"dropped", testutil.ToFloat64(c.Dropped.WithLabelValues(ch)), 1},
		{"delivered", testutil.ToFloat64(c.Delivered.WithLabelValues(ch)), 1},
		{"discarded", testutil.ToFloat64(c.Discarded.WithLabelValues(ch)), 3},
		{"sink failures", testutil.ToFloat64(c.SinkFailures.WithLabelValues(ch)), 1},
		{"pending", testutil.ToFloat64(c.Pending.WithLabelValues(ch)), 4},
	}
	for _, chk := range checks {
		if chk.got != chk.want {
			t.Fatalf("%s = %v, want %v", chk.name, chk.got, chk.want)
		}
	}

	if n := histogramSampleCount(t, reg, "teleop_link_delivery_delay_seconds", map[string]string{"channel": ch}); n != 1 {
		t.Fatalf("delivery delay sample_count = %d, want 1", n)
	}
}

func TestLinkCollectorConditionsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewLinkCollector(reg)
	if err != nil {
		t.Fatalf("NewLinkCollector: %v", err)
	}

	ch := netem.RobotToOperator
	c.OnConditions(ch, netem.DeriveConditions(200*time.Millisecond, 0.05, netem.Unbounded))

	tests := map[string]float64{
		"latency_seconds":            0.2,
		"jitter_seconds":             0.02,
		"packet_loss":                0.05,
		"bandwidth_bytes_per_second": -1,
	}
	for param, want := range tests {
		if got := testutil.ToFloat64(c.Conditions.WithLabelValues(ch, param)); got != want {
			t.Fatalf("%s = %v, want %v", param, got, want)
		}
	}
}

func TestLinkCollectorObservesLiveLink(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewLinkCollector(reg)
	if err != nil {
		t.Fatalf("NewLinkCollector: %v", err)
	}

	link := netem.NewLink[string, int](netem.WithObserver(c), netem.WithRandom(netem.SeededSources(1)))
	defer link.Shutdown()
	link.SendCommand("go")

	deadline := time.Now().Add(5 * time.Second)
	for testutil.ToFloat64(c.Delivered.WithLabelValues(netem.OperatorToRobot)) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("delivery never observed")
		}
		time.Sleep(time.Millisecond)
	}

	c.ObserveStateAge(30 * time.Millisecond)
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	for _, metric := range []string{"teleop_link_sent_total", "teleop_link_delivered_total", "teleop_state_age_seconds"} {
		if !strings.Contains(rr.Body.String(), metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestNilLinkCollectorIsSafe(t *testing.T) {
	var c *LinkCollector
	c.OnSend("x")
	c.OnDeliver("x", time.Second)
	c.OnConditions("x", netem.DefaultConditions())
	c.ObserveStateAge(time.Second)
	if c.Gatherer() != nil {
		t.Fatalf("nil collector returned a gatherer")
	}
}
