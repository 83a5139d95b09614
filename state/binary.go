package state

import (
	"reflect"
	"sort"

	"github.com/binshift/binshift/bin"
	"github.com/binshift/binshift/frontier"
	"github.com/binshift/binshift/notify"
)

// BinaryFold is the binary join fold contract (spec.md §4.4's "Fold
// contract (binary join variant)", grounded on original_source/src/join.rs):
// two per-side handlers, each reading and writing both its own bin state and
// the other side's. FoldA runs for a side-A record against (mine=A's
// per-key aggregate, other=B's); FoldB is the mirror image. removeMine and
// removeOther independently evict the corresponding per-key entry after the
// call, letting a match on one side consume state accumulated on the other
// -- the shape join.rs uses when a side-A arrival matches and removes a
// pending side-B entry.
type BinaryFold[K comparable, VA any, VB any, AggA any, AggB any, Out any] struct {
	FoldA func(key K, value VA, mine *AggA, other *AggB) (removeMine, removeOther bool, outputs []Out)
	FoldB func(key K, value VB, mine *AggB, other *AggA) (removeMine, removeOther bool, outputs []Out)
}

// BinaryStage is the two-input counterpart to Stage: one bin array per
// side, one shared notificator, applying transfers before records and
// side-A records before side-B records at each time -- the ordering
// spec.md §4.6's "binary join (symmetric)" skin requires so that a
// side-A/side-B pair arriving at the same time is resolved deterministically
// regardless of exchange-channel interleaving.
type BinaryStage[T frontier.Timestamp[T], K comparable, VA any, VB any, AggA any, AggB any, Out any] struct {
	binsA []map[K]AggA
	binsB []map[K]AggB
	fold  BinaryFold[K, VA, VB, AggA, AggB, Out]

	tracker *frontier.Tracker[T]
	ticks   *notify.General[T, struct{}]

	recordsAAt   map[T][]taggedRecord[K, VA]
	recordsBAt   map[T][]taggedRecord[K, VB]
	transfersAAt map[T][]taggedTransfer[K, AggA]
	transfersBAt map[T][]taggedTransfer[K, AggB]
}

// NewBinaryStage constructs a BinaryStage with bin.Count(b) bins per side.
func NewBinaryStage[T frontier.Timestamp[T], K comparable, VA any, VB any, AggA any, AggB any, Out any](
	b uint, fold BinaryFold[K, VA, VB, AggA, AggB, Out],
) *BinaryStage[T, K, VA, VB, AggA, AggB, Out] {
	n := bin.Count(b)
	return &BinaryStage[T, K, VA, VB, AggA, AggB, Out]{
		binsA:        make([]map[K]AggA, n),
		binsB:        make([]map[K]AggB, n),
		fold:         fold,
		tracker:      frontier.NewTracker[T](),
		ticks:        notify.NewGeneral[T, struct{}](),
		recordsAAt:   make(map[T][]taggedRecord[K, VA]),
		recordsBAt:   make(map[T][]taggedRecord[K, VB]),
		transfersAAt: make(map[T][]taggedTransfer[K, AggA]),
		transfersBAt: make(map[T][]taggedTransfer[K, AggB]),
	}
}

// Frontier reports the times this stage still has outstanding work for.
func (s *BinaryStage[T, K, VA, VB, AggA, AggB, Out]) Frontier() *frontier.Antichain[T] {
	return s.tracker.Frontier()
}

// PendingNotifications reports how many record/transfer notifications are
// currently held back by an open input frontier.
func (s *BinaryStage[T, K, VA, VB, AggA, AggB, Out]) PendingNotifications() int {
	return s.ticks.Len()
}

// RecordA stashes or immediately applies a side-A record, per the same
// frontier test Stage.Record uses.
func (s *BinaryStage[T, K, VA, VB, AggA, AggB, Out]) RecordA(t T, b bin.Id, key K, value VA, inputFrontiers []*frontier.Antichain[T]) []Out {
	if anyLessEqual(inputFrontiers, t) {
		s.stashRecordA(t, b, key, value)
		return nil
	}
	return s.applyRecordA(b, key, value)
}

// RecordB is the mirror of RecordA for side B.
func (s *BinaryStage[T, K, VA, VB, AggA, AggB, Out]) RecordB(t T, b bin.Id, key K, value VB, inputFrontiers []*frontier.Antichain[T]) []Out {
	if anyLessEqual(inputFrontiers, t) {
		s.stashRecordB(t, b, key, value)
		return nil
	}
	return s.applyRecordB(b, key, value)
}

func (s *BinaryStage[T, K, VA, VB, AggA, AggB, Out]) stashRecordA(t T, b bin.Id, key K, value VA) {
	cap := frontier.NewCapability(s.tracker, t)
	s.ticks.NotifyAt(cap, struct{}{})
	s.recordsAAt[t] = append(s.recordsAAt[t], taggedRecord[K, VA]{Bin: b, Key: key, Value: value})
}

func (s *BinaryStage[T, K, VA, VB, AggA, AggB, Out]) stashRecordB(t T, b bin.Id, key K, value VB) {
	cap := frontier.NewCapability(s.tracker, t)
	s.ticks.NotifyAt(cap, struct{}{})
	s.recordsBAt[t] = append(s.recordsBAt[t], taggedRecord[K, VB]{Bin: b, Key: key, Value: value})
}

// Transfer installs a promotion's drained bin atomically on both sides
// under one capability at t, so a receiver never observes side A's state
// for bin b without side B's (BinaryTransfer always carries both).
func (s *BinaryStage[T, K, VA, VB, AggA, AggB, Out]) Transfer(t T, b bin.Id, entriesA []Entry[K, AggA], entriesB []Entry[K, AggB]) {
	cap := frontier.NewCapability(s.tracker, t)
	s.ticks.NotifyAt(cap, struct{}{})
	s.transfersAAt[t] = append(s.transfersAAt[t], taggedTransfer[K, AggA]{Bin: b, Entries: entriesA})
	s.transfersBAt[t] = append(s.transfersBAt[t], taggedTransfer[K, AggB]{Bin: b, Entries: entriesB})
}

// Advance fires every notification closed by frontiers, in non-decreasing
// time order: per time, transfers on both sides apply first, then side-A
// records, then side-B records.
func (s *BinaryStage[T, K, VA, VB, AggA, AggB, Out]) Advance(frontiers []*frontier.Antichain[T]) []Out {
	var out []Out
	notify.ForEach[T, struct{}](s.ticks, frontiers, func(cap frontier.Capability[T], _ []struct{}) {
		t := cap.Time()

		for _, tr := range s.transfersAAt[t] {
			s.installTransferA(tr)
		}
		delete(s.transfersAAt, t)
		for _, tr := range s.transfersBAt[t] {
			s.installTransferB(tr)
		}
		delete(s.transfersBAt, t)

		recordsA := s.recordsAAt[t]
		delete(s.recordsAAt, t)
		sort.SliceStable(recordsA, func(i, j int) bool { return recordsA[i].Bin < recordsA[j].Bin })
		for _, r := range recordsA {
			out = append(out, s.applyRecordA(r.Bin, r.Key, r.Value)...)
		}

		recordsB := s.recordsBAt[t]
		delete(s.recordsBAt, t)
		sort.SliceStable(recordsB, func(i, j int) bool { return recordsB[i].Bin < recordsB[j].Bin })
		for _, r := range recordsB {
			out = append(out, s.applyRecordB(r.Bin, r.Key, r.Value)...)
		}

		cap.Drop()
	})
	return out
}

func (s *BinaryStage[T, K, VA, VB, AggA, AggB, Out]) applyRecordA(b bin.Id, key K, value VA) []Out {
	if s.binsA[b] == nil {
		s.binsA[b] = make(map[K]AggA)
	}
	if s.binsB[b] == nil {
		s.binsB[b] = make(map[K]AggB)
	}
	mA, mB := s.binsA[b], s.binsB[b]
	aggA := mA[key]
	aggB, hadB := mB[key]
	removeMine, removeOther, outputs := s.fold.FoldA(key, value, &aggA, &aggB)
	if removeMine {
		delete(mA, key)
	} else {
		mA[key] = aggA
	}
	if removeOther {
		delete(mB, key)
	} else if hadB || !reflect.ValueOf(&aggB).Elem().IsZero() {
		mB[key] = aggB
	}
	return outputs
}

func (s *BinaryStage[T, K, VA, VB, AggA, AggB, Out]) applyRecordB(b bin.Id, key K, value VB) []Out {
	if s.binsB[b] == nil {
		s.binsB[b] = make(map[K]AggB)
	}
	if s.binsA[b] == nil {
		s.binsA[b] = make(map[K]AggA)
	}
	mB, mA := s.binsB[b], s.binsA[b]
	aggB := mB[key]
	aggA, hadA := mA[key]
	removeMine, removeOther, outputs := s.fold.FoldB(key, value, &aggB, &aggA)
	if removeMine {
		delete(mB, key)
	} else {
		mB[key] = aggB
	}
	if removeOther {
		delete(mA, key)
	} else if hadA || !reflect.ValueOf(&aggA).Elem().IsZero() {
		mA[key] = aggA
	}
	return outputs
}

func (s *BinaryStage[T, K, VA, VB, AggA, AggB, Out]) installTransferA(tr taggedTransfer[K, AggA]) {
	m := make(map[K]AggA, len(tr.Entries))
	for _, e := range tr.Entries {
		m[e.Key] = e.Agg
	}
	s.binsA[tr.Bin] = m
}

func (s *BinaryStage[T, K, VA, VB, AggA, AggB, Out]) installTransferB(tr taggedTransfer[K, AggB]) {
	m := make(map[K]AggB, len(tr.Entries))
	for _, e := range tr.Entries {
		m[e.Key] = e.Agg
	}
	s.binsB[tr.Bin] = m
}

// Drain empties bin b on both sides into wire entries and replaces each
// with a fresh empty map, for atomic delivery as one BinaryTransfer.
func (s *BinaryStage[T, K, VA, VB, AggA, AggB, Out]) Drain(b bin.Id) (entriesA []Entry[K, AggA], entriesB []Entry[K, AggB]) {
	mA := s.binsA[b]
	entriesA = make([]Entry[K, AggA], 0, len(mA))
	for k, agg := range mA {
		entriesA = append(entriesA, Entry[K, AggA]{Key: k, Agg: agg})
	}
	s.binsA[b] = nil

	mB := s.binsB[b]
	entriesB = make([]Entry[K, AggB], 0, len(mB))
	for k, agg := range mB {
		entriesB = append(entriesB, Entry[K, AggB]{Key: k, Agg: agg})
	}
	s.binsB[b] = nil

	return entriesA, entriesB
}
