package netem

import (
	"container/heap"
	"time"
)

// envelope pairs a payload with its computed delivery deadline. It is created
// by Send and consumed exactly once by the delivery worker.
type envelope[T any] struct {
	payload   T
	sentAt    time.Time
	deliverAt time.Time
	seq       uint64
}

// pendingSet is a min-heap ordered by (deliverAt, seq). Equal deadlines keep
// send order through the sequence tie-break.
type pendingSet[T any] []*envelope[T]

func (h pendingSet[T]) Len() int { return len(h) }

func (h pendingSet[T]) Less(i, j int) bool {
	if h[i].deliverAt.Equal(h[j].deliverAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].deliverAt.Before(h[j].deliverAt)
}

func (h pendingSet[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingSet[T]) Push(x any) {
	*h = append(*h, x.(*envelope[T]))
}

func (h *pendingSet[T]) Pop() any {
	old := *h
	n := len(old)
	env := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return env
}

// push inserts env and reports whether it became the new head.
func (h *pendingSet[T]) push(env *envelope[T]) bool {
	heap.Push(h, env)
	return (*h)[0] == env
}

// peek returns the next-due envelope without removing it.
func (h pendingSet[T]) peek() *envelope[T] {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

func (h *pendingSet[T]) pop() *envelope[T] {
	return heap.Pop(h).(*envelope[T])
}
