// Package state implements the state stage of spec.md §4.4: the per-worker
// operator that holds the bin array, installs transferred bins ahead of
// stashed records sharing their time, and runs the user fold under
// notification discipline.
//
// Per spec.md §4.4 and the teacher corpus's own state-machine operator
// (original_source's state_machine.rs, which stores per-bin state as a
// HashMap<Key, Aggregate>), a bin's state is concretely a map from routing
// key to per-key aggregate; this package commits to that shape rather than
// leaving S fully opaque, since every concrete use in the reference
// implementation is exactly this.
package state

import (
	"sort"

	"github.com/binshift/binshift/bin"
	"github.com/binshift/binshift/frontier"
	"github.com/binshift/binshift/notify"
)

// Entry is one (key, aggregate) pair as carried on the wire during a bin
// transfer (spec.md §6's Vec<W>).
type Entry[K comparable, Agg any] struct {
	Key K
	Agg Agg
}

// Fold is the state-machine fold contract (spec.md §4.4): it observes one
// record at a time against the per-key aggregate, returning whether the
// entry should be evicted afterward and what to emit downstream.
type Fold[K comparable, V any, Agg any, Out any] func(key K, value V, agg *Agg) (remove bool, outputs []Out)

type taggedRecord[K comparable, V any] struct {
	Bin   bin.Id
	Key   K
	Value V
}

type taggedTransfer[K comparable, Agg any] struct {
	Bin     bin.Id
	Entries []Entry[K, Agg]
}

// Stage holds the bin array for one worker and applies the fold contract
// under the "transfers before records at equal times" ordering spec.md
// §4.4 mandates. Not safe for concurrent use: a single worker's goroutine
// owns it.
type Stage[T frontier.Timestamp[T], K comparable, V any, Agg any, Out any] struct {
	bins []map[K]Agg
	fold Fold[K, V, Agg, Out]

	tracker *frontier.Tracker[T]
	ticks   *notify.General[T, struct{}]

	recordsAt   map[T][]taggedRecord[K, V]
	transfersAt map[T][]taggedTransfer[K, Agg]
}

// New constructs a Stage with bin.Count(b) bins, each starting as an empty
// map (spec.md §3's "default-constructible" per-bin state).
func New[T frontier.Timestamp[T], K comparable, V any, Agg any, Out any](b uint, fold Fold[K, V, Agg, Out]) *Stage[T, K, V, Agg, Out] {
	return &Stage[T, K, V, Agg, Out]{
		bins:        make([]map[K]Agg, bin.Count(b)),
		fold:        fold,
		tracker:     frontier.NewTracker[T](),
		ticks:       notify.NewGeneral[T, struct{}](),
		recordsAt:   make(map[T][]taggedRecord[K, V]),
		transfersAt: make(map[T][]taggedTransfer[K, Agg]),
	}
}

// Frontier reports the times this stage still has outstanding work for: the
// "downstream probe" spec.md §4.3/§4.6 says the router's promotion logic
// consults to learn how far the state stage has progressed.
func (s *Stage[T, K, V, Agg, Out]) Frontier() *frontier.Antichain[T] {
	return s.tracker.Frontier()
}

// PendingNotifications reports how many record/transfer notifications are
// currently held back by an open input frontier. Exposed for callers
// reporting queue depth as a gauge.
func (s *Stage[T, K, V, Agg, Out]) PendingNotifications() int {
	return s.ticks.Len()
}

// Record stashes a routed record arriving at time t. inputFrontiers is the
// set of upstream frontiers (record exchange, transfer exchange) the caller
// currently observes; if any could still produce something at or before t,
// the record is always stashed so a same-time transfer is guaranteed to be
// seen first (spec.md §4.4's ordering rationale). Otherwise it is processed
// immediately.
func (s *Stage[T, K, V, Agg, Out]) Record(t T, b bin.Id, key K, value V, inputFrontiers []*frontier.Antichain[T]) []Out {
	if anyLessEqual(inputFrontiers, t) {
		s.stashRecord(t, b, key, value)
		return nil
	}
	return s.applyRecord(b, key, value)
}

// Transfer always stashes an incoming bin transfer under notification at t,
// even if no input frontier requires it (spec.md §4.4: "Transfer ... always
// stash under a capability at t"), so it is applied in strict notification
// order relative to records sharing its time.
func (s *Stage[T, K, V, Agg, Out]) Transfer(t T, b bin.Id, entries []Entry[K, Agg]) {
	cap := frontier.NewCapability(s.tracker, t)
	s.ticks.NotifyAt(cap, struct{}{})
	s.transfersAt[t] = append(s.transfersAt[t], taggedTransfer[K, Agg]{Bin: b, Entries: entries})
}

func (s *Stage[T, K, V, Agg, Out]) stashRecord(t T, b bin.Id, key K, value V) {
	cap := frontier.NewCapability(s.tracker, t)
	s.ticks.NotifyAt(cap, struct{}{})
	s.recordsAt[t] = append(s.recordsAt[t], taggedRecord[K, V]{Bin: b, Key: key, Value: value})
}

// Advance fires every notification now closed by frontiers, applying
// transfers before records for each time, in non-decreasing time order
// (spec.md §4.4).
func (s *Stage[T, K, V, Agg, Out]) Advance(frontiers []*frontier.Antichain[T]) []Out {
	var out []Out
	notify.ForEach[T, struct{}](s.ticks, frontiers, func(cap frontier.Capability[T], _ []struct{}) {
		t := cap.Time()
		for _, tr := range s.transfersAt[t] {
			s.installTransfer(tr)
		}
		delete(s.transfersAt, t)

		records := s.recordsAt[t]
		delete(s.recordsAt, t)
		sort.SliceStable(records, func(i, j int) bool { return records[i].Bin < records[j].Bin })
		for _, r := range records {
			out = append(out, s.applyRecord(r.Bin, r.Key, r.Value)...)
		}
		cap.Drop()
	})
	return out
}

func (s *Stage[T, K, V, Agg, Out]) applyRecord(b bin.Id, key K, value V) []Out {
	m := s.bins[b]
	if m == nil {
		m = make(map[K]Agg)
		s.bins[b] = m
	}
	agg := m[key]
	remove, outputs := s.fold(key, value, &agg)
	if remove {
		delete(m, key)
	} else {
		m[key] = agg
	}
	return outputs
}

// installTransfer replaces bins[b] wholesale with the transferred entries,
// per spec.md §4.4's "transfers are a total replacement, not a merge."
func (s *Stage[T, K, V, Agg, Out]) installTransfer(tr taggedTransfer[K, Agg]) {
	m := make(map[K]Agg, len(tr.Entries))
	for _, e := range tr.Entries {
		m[e.Key] = e.Agg
	}
	s.bins[tr.Bin] = m
}

// Drain empties bin b into wire entries and replaces it with a fresh empty
// map, for the caller (the operator composing Stage with a Router) to emit
// as a state-transfer message at a promotion boundary (spec.md §4.3: "the
// drained bin is replaced by a default").
func (s *Stage[T, K, V, Agg, Out]) Drain(b bin.Id) []Entry[K, Agg] {
	m := s.bins[b]
	entries := make([]Entry[K, Agg], 0, len(m))
	for k, agg := range m {
		entries = append(entries, Entry[K, Agg]{Key: k, Agg: agg})
	}
	s.bins[b] = nil
	return entries
}

func anyLessEqual[T frontier.Timestamp[T]](frontiers []*frontier.Antichain[T], t T) bool {
	for _, f := range frontiers {
		if f.LessEqual(t) {
			return true
		}
	}
	return false
}
