package state

import (
	"sort"

	"github.com/binshift/binshift/bin"
	"github.com/binshift/binshift/frontier"
	"github.com/binshift/binshift/notify"
)

// PreNotifyRecord is one record delivered to a PreNotifyHandler, still
// tagged with the bin it routed to.
type PreNotifyRecord[K comparable, V any] struct {
	Bin   bin.Id
	Key   K
	Value V
}

// PreNotifyHandler is the stateful_unary fold contract (spec.md §4.6),
// grounded on original_source/src/operator.rs's stateful_unary: unlike
// Fold, which this package's Stage calls once per record strictly after
// notification, a PreNotifyHandler is handed the notification's own
// capability and the whole bin array directly, so it can read or write any
// key's state across the batch and mint further delayed capabilities of its
// own via cap.Delayed(t) -- the shape spec.md's windowed-query example uses
// to stash a synthetic delete payload at t+W. schedule re-enters this same
// stage's notificator with such a delayed record; handlers that don't need
// pre-notify rescheduling simply never call it.
type PreNotifyHandler[T frontier.Timestamp[T], K comparable, V any, Agg any, Out any] func(
	cap frontier.Capability[T],
	records []PreNotifyRecord[K, V],
	bins []map[K]Agg,
	schedule func(cap frontier.Capability[T], b bin.Id, key K, value V),
) []Out

// UnaryStage is the low-level counterpart to Stage: instead of applying a
// per-record Fold post-notify, it hands the entire notified batch to a
// PreNotifyHandler alongside the raw bin array. stateful_state_machine
// (Stage) covers the common case with its own implementation that applies
// a Fold one record at a time; this type exists for callers who need the
// finer control, e.g. windowed eviction.
type UnaryStage[T frontier.Timestamp[T], K comparable, V any, Agg any, Out any] struct {
	bins    []map[K]Agg
	handler PreNotifyHandler[T, K, V, Agg, Out]

	tracker *frontier.Tracker[T]
	ticks   *notify.General[T, []PreNotifyRecord[K, V]]
}

// NewUnaryStage constructs a UnaryStage with bin.Count(b) bins.
func NewUnaryStage[T frontier.Timestamp[T], K comparable, V any, Agg any, Out any](
	b uint, handler PreNotifyHandler[T, K, V, Agg, Out],
) *UnaryStage[T, K, V, Agg, Out] {
	return &UnaryStage[T, K, V, Agg, Out]{
		bins:    make([]map[K]Agg, bin.Count(b)),
		handler: handler,
		tracker: frontier.NewTracker[T](),
		ticks:   notify.NewGeneral[T, []PreNotifyRecord[K, V]](),
	}
}

// Frontier reports the times this stage still has outstanding work for.
func (s *UnaryStage[T, K, V, Agg, Out]) Frontier() *frontier.Antichain[T] {
	return s.tracker.Frontier()
}

// PendingNotifications reports how many record notifications are currently
// held back by an open input frontier.
func (s *UnaryStage[T, K, V, Agg, Out]) PendingNotifications() int {
	return s.ticks.Len()
}

// Record stashes a routed record arriving at time t. Unlike Stage.Record,
// there is no pass-through fast path: every record must reach the handler
// through the notificator, since the handler (not the framework) decides
// what becomes of it.
func (s *UnaryStage[T, K, V, Agg, Out]) Record(t T, b bin.Id, key K, value V) {
	cap := frontier.NewCapability(s.tracker, t)
	s.ticks.NotifyAt(cap, []PreNotifyRecord[K, V]{{Bin: b, Key: key, Value: value}})
}

// Transfer replaces bins[b] wholesale with the transferred entries (spec.md
// §4.4's "total replacement, not a merge," applies uniformly across skins).
func (s *UnaryStage[T, K, V, Agg, Out]) Transfer(b bin.Id, entries []Entry[K, Agg]) {
	m := make(map[K]Agg, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Agg
	}
	s.bins[b] = m
}

// Advance fires every record notification now closed by frontiers, grouping
// same-time records together (stable by bin) before invoking the handler
// once per time, matching the batch shape original_source/src/operator.rs's
// stateful_unary hands its fold.
func (s *UnaryStage[T, K, V, Agg, Out]) Advance(frontiers []*frontier.Antichain[T]) []Out {
	var out []Out
	notify.ForEach[T, []PreNotifyRecord[K, V]](s.ticks, frontiers, func(cap frontier.Capability[T], batches [][]PreNotifyRecord[K, V]) {
		var records []PreNotifyRecord[K, V]
		for _, batch := range batches {
			records = append(records, batch...)
		}
		sort.SliceStable(records, func(i, j int) bool { return records[i].Bin < records[j].Bin })

		for _, b := range records {
			if s.bins[b.Bin] == nil {
				s.bins[b.Bin] = make(map[K]Agg)
			}
		}
		out = append(out, s.handler(cap, records, s.bins, s.schedule)...)
		cap.Drop()
	})
	return out
}

func (s *UnaryStage[T, K, V, Agg, Out]) schedule(cap frontier.Capability[T], b bin.Id, key K, value V) {
	s.ticks.NotifyAt(cap, []PreNotifyRecord[K, V]{{Bin: b, Key: key, Value: value}})
}

// Drain empties bin b into wire entries and replaces it with a fresh empty
// map, for a promotion boundary hand-off.
func (s *UnaryStage[T, K, V, Agg, Out]) Drain(b bin.Id) []Entry[K, Agg] {
	m := s.bins[b]
	entries := make([]Entry[K, Agg], 0, len(m))
	for k, agg := range m {
		entries = append(entries, Entry[K, Agg]{Key: k, Agg: agg})
	}
	s.bins[b] = nil
	return entries
}
