package notify

import (
	"container/heap"
	"sort"

	"github.com/binshift/binshift/frontier"
)

// entry pairs a capability with the payloads coalesced onto its time.
type entry[T frontier.Timestamp[T], P any] struct {
	cap      frontier.Capability[T]
	payloads []P
}

// General is the partial-order notificator variant: pending entries are
// sorted and coalesced by time, then promoted into an available min-heap
// once every supplied frontier has moved past their time (spec.md §4.5).
type General[T frontier.Timestamp[T], P any] struct {
	pending   []entry[T, P]
	available entryHeap[T, P]
}

// NewGeneral returns an empty General notificator.
func NewGeneral[T frontier.Timestamp[T], P any]() *General[T, P] {
	return &General[T, P]{}
}

// NotifyAt appends a pending notification. Multiple calls at equal times
// are coalesced the next time the available set is refilled.
func (g *General[T, P]) NotifyAt(cap frontier.Capability[T], payload P) {
	g.pending = append(g.pending, entry[T, P]{cap: cap, payloads: []P{payload}})
}

// Len reports the number of notifications currently held, pending or
// available. Exposed for callers reporting queue depth as a gauge.
func (g *General[T, P]) Len() int {
	return len(g.pending) + len(g.available)
}

// Next refills from pending if the available heap is empty, then pops the
// smallest available entry.
func (g *General[T, P]) Next(frontiers []*frontier.Antichain[T]) (frontier.Capability[T], []P, bool) {
	if len(g.available) == 0 {
		g.makeAvailable(frontiers)
	}
	if len(g.available) == 0 {
		var zero frontier.Capability[T]
		return zero, nil, false
	}
	e := heap.Pop(&g.available).(entry[T, P])
	return e.cap, e.payloads, true
}

// makeAvailable sorts pending by time, coalesces equal times (concatenating
// payloads, dropping redundant capabilities), and moves every entry whose
// time no longer can be preceded by any supplied frontier into the
// available heap.
func (g *General[T, P]) makeAvailable(frontiers []*frontier.Antichain[T]) {
	if len(g.pending) == 0 {
		return
	}
	sort.SliceStable(g.pending, func(i, j int) bool {
		a, b := g.pending[i].cap.Time(), g.pending[j].cap.Time()
		return a != b && a.Less(b)
	})

	coalesced := g.pending[:0]
	for _, e := range g.pending {
		if n := len(coalesced); n > 0 && coalesced[n-1].cap.Time() == e.cap.Time() {
			coalesced[n-1].payloads = append(coalesced[n-1].payloads, e.payloads...)
			// The newly-coalesced capability is redundant with the one
			// already retained at this time; drop it rather than leak it.
			e.cap.Drop()
			continue
		}
		coalesced = append(coalesced, e)
	}

	var stillPending []entry[T, P]
	for _, e := range coalesced {
		if closedByAll(e.cap.Time(), frontiers) {
			heap.Push(&g.available, e)
		} else {
			stillPending = append(stillPending, e)
		}
	}
	g.pending = stillPending
}

// closedByAll reports whether no frontier in frontiers can still produce
// something at or before t.
func closedByAll[T frontier.Timestamp[T]](t T, frontiers []*frontier.Antichain[T]) bool {
	for _, f := range frontiers {
		if f.LessEqual(t) {
			return false
		}
	}
	return true
}

// entryHeap is a container/heap.Interface ordered by capability time,
// smallest first. The spec names no library here, and no dependency in
// this module's stack offers a friendlier generic binary heap than the
// standard library's, so container/heap is the idiomatic choice
// (go-ethereum's own transaction pool uses it for its price-ordered heap).
type entryHeap[T frontier.Timestamp[T], P any] []entry[T, P]

func (h entryHeap[T, P]) Len() int { return len(h) }
func (h entryHeap[T, P]) Less(i, j int) bool {
	a, b := h[i].cap.Time(), h[j].cap.Time()
	return a != b && a.Less(b)
}
func (h entryHeap[T, P]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap[T, P]) Push(x any) {
	*h = append(*h, x.(entry[T, P]))
}

func (h *entryHeap[T, P]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
