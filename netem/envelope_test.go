package netem

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestPendingSetOrdersByDeadlineThenSequence(t *testing.T) {
	base := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	var h pendingSet[string]

	h.push(&envelope[string]{payload: "c", deliverAt: base.Add(30 * time.Millisecond), seq: 1})
	h.push(&envelope[string]{payload: "a1", deliverAt: base.Add(10 * time.Millisecond), seq: 2})
	h.push(&envelope[string]{payload: "b", deliverAt: base.Add(20 * time.Millisecond), seq: 3})
	h.push(&envelope[string]{payload: "a2", deliverAt: base.Add(10 * time.Millisecond), seq: 4})
	h.push(&envelope[string]{payload: "a3", deliverAt: base.Add(10 * time.Millisecond), seq: 5})

	if head := h.peek(); head.payload != "a1" {
		t.Fatalf("peek() = %q, want a1", head.payload)
	}

	var got []string
	for h.Len() > 0 {
		got = append(got, h.pop().payload)
	}
	want := []string{"a1", "a2", "a3", "b", "c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("pop order mismatch (-want +got):\n%s", diff)
	}
	if h.peek() != nil {
		t.Fatalf("peek() on empty set should be nil")
	}
}

func TestPendingSetPushReportsNewHead(t *testing.T) {
	base := time.Now()
	var h pendingSet[int]
	if !h.push(&envelope[int]{deliverAt: base.Add(time.Second), seq: 1}) {
		t.Fatalf("first push should become head")
	}
	if h.push(&envelope[int]{deliverAt: base.Add(2 * time.Second), seq: 2}) {
		t.Fatalf("later deadline should not become head")
	}
	if !h.push(&envelope[int]{deliverAt: base, seq: 3}) {
		t.Fatalf("earlier deadline should become head")
	}
	if h.push(&envelope[int]{deliverAt: base, seq: 4}) {
		t.Fatalf("equal deadline with later sequence should not become head")
	}
}
