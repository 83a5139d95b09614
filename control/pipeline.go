package control

import (
	"sort"

	"github.com/binshift/binshift/bin"
	"github.com/binshift/binshift/frontier"
)

// Pipeline assembles a broadcast stream of Command into a totally-ordered
// sequence of Set values: exactly one active, zero or more pending
// (spec.md §3, §4.2). It is not safe for concurrent use; callers (the
// router stage) own it single-threaded.
type Pipeline[T frontier.Timestamp[T]] struct {
	active   *Set[T] // nil until the first set is promoted; implicitly bin.NewMap(n,0) with a bottom frontier
	pending  []*Set[T]
	builders map[T]*Builder
	binCount int

	onMalformed func(error)
	onOrderingViolation func(error)
}

// NewPipeline returns a Pipeline whose implicit starting map assigns every
// one of binCount bins to worker 0 (spec.md §9's resolution of the
// "Move before any Map" open question).
func NewPipeline[T frontier.Timestamp[T]](binCount int) *Pipeline[T] {
	return &Pipeline[T]{
		binCount: binCount,
		builders: make(map[T]*Builder),
	}
}

// OnMalformed registers a callback invoked (instead of returning an error on
// the hot path) whenever a control group fails a well-formedness check. The
// offending command is skipped, per spec.md §7.
func (p *Pipeline[T]) OnMalformed(f func(error)) { p.onMalformed = f }

// OnOrderingViolation registers a callback invoked when a newly closed
// group fails to be dominated by the set before it. Per spec.md §7 this is
// a debug-assert in spirit: the pipeline keeps running with the bad
// ordering rather than halting.
func (p *Pipeline[T]) OnOrderingViolation(f func(error)) { p.onOrderingViolation = f }

// currentMap returns the map that is active as of "now", i.e. the newest
// set known (last pending, else active, else the implicit identity map).
// This is the seed a new Builder starts from; record routing selects its
// map through MapForTime instead.
func (p *Pipeline[T]) currentMap() bin.Map {
	if n := len(p.pending); n > 0 {
		return p.pending[n-1].Map
	}
	if p.active != nil {
		return p.active.Map
	}
	return bin.NewMap(p.binCount, 0)
}

// Ingest folds one command into the group closing at time t. Groups are
// keyed by the timestamp at which their commands arrive; the group is
// finalized by a later call to Close(t) once the control frontier advances
// past t.
func (p *Pipeline[T]) Ingest(t T, c Command) {
	b, ok := p.builders[t]
	if !ok {
		b = NewBuilder(p.currentMap())
		p.builders[t] = b
	}
	if err := b.Add(c); err != nil {
		p.report(err)
	}
}

func (p *Pipeline[T]) report(err error) {
	if p.onMalformed != nil {
		p.onMalformed(err)
	}
}

// Close finalizes the group (if any) ingested at time t: builds a Set,
// checks it's dominated-by-predecessor, appends it to the pending queue and
// re-sorts by sequence (spec.md §4.2). A no-op if no command ever arrived
// at t.
func (p *Pipeline[T]) Close(t T) {
	b, ok := p.builders[t]
	if !ok {
		return
	}
	delete(p.builders, t)

	set := Build(b, t)
	p.checkOrdering(set)
	p.pending = append(p.pending, set)
	sort.Slice(p.pending, func(i, j int) bool {
		return p.pending[i].Sequence < p.pending[j].Sequence
	})
}

func (p *Pipeline[T]) checkOrdering(next *Set[T]) {
	prevFrontier := p.activeFrontier()
	if len(p.pending) > 0 {
		prevFrontier = p.pending[len(p.pending)-1].Frontier
	}
	if prevFrontier != nil && !prevFrontier.Dominates(next.Frontier) {
		if p.onOrderingViolation != nil {
			p.onOrderingViolation(ErrOrderingViolation)
		}
	}
}

func (p *Pipeline[T]) activeFrontier() *frontier.Antichain[T] {
	if p.active == nil {
		return nil
	}
	return p.active.Frontier
}

// MapForTime selects the map that applies to a record at time t: the
// newest pending set whose frontier is <= t, falling back to the active
// set (spec.md §4.3's "newest-first" selection rule, which exists because a
// pending set whose frontier hasn't been reached yet still describes
// future routing and must not be applied to records from the past).
func (p *Pipeline[T]) MapForTime(t T) bin.Map {
	for i := len(p.pending) - 1; i >= 0; i-- {
		if p.pending[i].Frontier.LessEqual(t) {
			return p.pending[i].Map
		}
	}
	if p.active != nil {
		return p.active.Map
	}
	return bin.NewMap(p.binCount, 0)
}

// ActiveMap returns the currently active map (the implicit identity map if
// none has been promoted yet).
func (p *Pipeline[T]) ActiveMap() bin.Map {
	if p.active != nil {
		return p.active.Map
	}
	return bin.NewMap(p.binCount, 0)
}

// ReadyToPromote reports whether the head of the pending queue may be
// promoted: its frontier must be closed by the downstream probe, meaning
// the state stage has finished all work up to that point (spec.md §4.3).
func (p *Pipeline[T]) ReadyToPromote(probe *frontier.Antichain[T]) bool {
	if len(p.pending) == 0 {
		return false
	}
	return p.pending[0].Frontier.ClosedBy(probe)
}

// Promote makes the head of the pending queue active and returns it along
// with the map it replaces, so the caller (router) can diff the two maps to
// emit transfer messages for bins whose ownership moved away from the local
// worker. Panics if the pending queue is empty; it does not itself check
// the downstream probe, so callers gate it with ReadyToPromote first.
func (p *Pipeline[T]) Promote() (outgoing bin.Map, promoted *Set[T]) {
	if len(p.pending) == 0 {
		panic("control: Promote called with an empty pending queue")
	}
	outgoing = p.ActiveMap()
	promoted = p.pending[0]
	p.pending = p.pending[1:]
	p.active = promoted
	return outgoing, promoted
}

// PendingLen reports the number of sets waiting to be promoted. Exposed for
// testing the "count == 0 is a no-op" boundary (spec.md §8 property 6).
func (p *Pipeline[T]) PendingLen() int {
	return len(p.pending)
}
