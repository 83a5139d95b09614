package notify

import (
	"container/heap"

	"github.com/binshift/binshift/frontier"
)

// TotalOrder is the totally-ordered notificator variant: a single heap of
// (time, payload) pairs with no antichain bookkeeping, cheaper than General
// whenever T has a total order (spec.md §4.5). It tracks the current
// minimum directly rather than maintaining a separate pending/available
// split, since for a total order "the smallest pending time" and "the
// smallest available time" coincide once that time is closed.
type TotalOrder[T frontier.Timestamp[T], P any] struct {
	heap entryHeap[T, P]
}

// NewTotalOrder returns an empty TotalOrder notificator.
func NewTotalOrder[T frontier.Timestamp[T], P any]() *TotalOrder[T, P] {
	return &TotalOrder[T, P]{}
}

// NotifyAt appends a pending notification.
func (t *TotalOrder[T, P]) NotifyAt(cap frontier.Capability[T], payload P) {
	heap.Push(&t.heap, entry[T, P]{cap: cap, payloads: []P{payload}})
}

// Next pops and coalesces every pending entry whose time equals the current
// minimum, once that minimum is closed by every supplied frontier.
func (t *TotalOrder[T, P]) Next(frontiers []*frontier.Antichain[T]) (frontier.Capability[T], []P, bool) {
	if len(t.heap) == 0 {
		var zero frontier.Capability[T]
		return zero, nil, false
	}
	min := t.heap[0].cap.Time()
	if !closedByAll(min, frontiers) {
		var zero frontier.Capability[T]
		return zero, nil, false
	}

	first := heap.Pop(&t.heap).(entry[T, P])
	payloads := first.payloads
	for len(t.heap) > 0 && t.heap[0].cap.Time() == min {
		more := heap.Pop(&t.heap).(entry[T, P])
		payloads = append(payloads, more.payloads...)
		more.cap.Drop()
	}
	return first.cap, payloads, true
}

// Len reports the number of distinct pending entries (not coalesced by
// time). Exposed for tests checking that entries are withheld until their
// time is closed.
func (t *TotalOrder[T, P]) Len() int { return len(t.heap) }
