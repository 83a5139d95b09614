// Package router implements the router stage of spec.md §4.3: the
// per-worker operator that tags records with the bin/worker the currently
// applicable control set assigns them to, stashes records that race a
// still-open control frontier, and schedules promotions of pending control
// sets once the downstream probe has caught up.
//
// Grounded on the channel/select-loop skeleton of
// libevm/precompiles/parallel.Processor's worker loop (generic struct
// around channels, goroutine-per-responsibility) and on
// libevm/rpcroute.Server's frontier-gated dispatch for the shape of
// "nothing proceeds until a tracked frontier has moved."
package router

import (
	"github.com/binshift/binshift/bin"
	"github.com/binshift/binshift/control"
	"github.com/binshift/binshift/frontier"
	"github.com/binshift/binshift/notify"
)

// RoutedRecord is one record tagged with its destination, per spec.md §6's
// "(u32 target_worker, u64 bin_hash, V)" wire shape (the full hash, not
// just the bin, so a receiver can re-derive the bin without rehashing). Time
// is carried alongside even though it isn't part of the wire tuple, so a
// caller draining a batch of stashed records (each originally arriving at
// its own time) can stamp every record with its own time rather than a
// single coarse guess.
type RoutedRecord[T frontier.Timestamp[T], V any] struct {
	Time         T
	TargetWorker bin.Worker
	Bin          bin.Id
	BinHash      uint64
	Value        V
}

// Migration describes one bin whose ownership moved away from this
// worker as a result of a promotion; the caller (the state stage, which
// alone holds bin contents) is responsible for draining bin and emitting
// the wire transfer to NewOwner.
type Migration struct {
	Bin      bin.Id
	NewOwner bin.Worker
}

// Router is the per-worker routing stage. It is not safe for concurrent
// use: a single worker's goroutine owns it, matching spec.md §5's
// cooperative single-threaded event-loop model. The one exception is
// AdvanceControlInput, which exists precisely so the host dataflow
// substrate can report control-stream progress from whatever goroutine
// observes it; Probe's internals make that safe.
type Router[T frontier.Timestamp[T], V any] struct {
	self bin.Worker
	b    uint

	pipeline *control.Pipeline[T]

	// controlInput is advanced by the host substrate as it learns the
	// control stream has progressed, i.e. it will emit nothing more at or
	// before some time. This is the upstream input frontier spec.md §4.3's
	// stashing rule is stated in terms of; it is distinct from any frontier
	// the router derives from its own retained capabilities.
	controlInput *frontier.Probe[T]

	dataTracker *frontier.Tracker[T]
	dataStash   *notify.General[T, []V]
}

// New constructs a Router for worker self, with bin shift b (bins =
// bin.Count(b)) and the control input's starting frontier (typically a
// single bottom element: "the control stream has produced nothing yet, and
// anything may still arrive").
func New[T frontier.Timestamp[T], V any](self bin.Worker, b uint, initialControlFrontier *frontier.Antichain[T]) *Router[T, V] {
	return &Router[T, V]{
		self:          self,
		b:             b,
		pipeline:      control.NewPipeline[T](bin.Count(b)),
		controlInput:  frontier.NewProbe[T](initialControlFrontier),
		dataTracker:   frontier.NewTracker[T](),
		dataStash:     notify.NewGeneral[T, []V](),
	}
}

// OnMalformed registers the callback invoked when a control group fails a
// well-formedness check (spec.md §7): the offending command is skipped.
func (r *Router[T, V]) OnMalformed(f func(error)) { r.pipeline.OnMalformed(f) }

// OnOrderingViolation registers the callback invoked when a newly closed
// control set's frontier is not dominated by its predecessor's.
func (r *Router[T, V]) OnOrderingViolation(f func(error)) { r.pipeline.OnOrderingViolation(f) }

// IngestControl folds one control command into the group closing at t.
func (r *Router[T, V]) IngestControl(t T, c control.Command) {
	r.pipeline.Ingest(t, c)
}

// CloseControl finalizes the group ingested at t into a pending control
// set. The host calls this once it knows no more commands for t will
// arrive, then separately reports via AdvanceControlInput once the control
// source itself has moved past t.
func (r *Router[T, V]) CloseControl(t T) {
	r.pipeline.Close(t)
}

// AdvanceControlInput reports that the control stream has progressed to f:
// nothing more will arrive at or before any time f has moved past. This
// unblocks stashed data batches whose time is now behind f (spec.md §4.3).
func (r *Router[T, V]) AdvanceControlInput(f *frontier.Antichain[T]) {
	r.controlInput.Advance(f)
}

// ControlFrontier reports the control input's last-reported frontier.
func (r *Router[T, V]) ControlFrontier() *frontier.Antichain[T] {
	return r.controlInput.Frontier()
}

// Route tags a batch of records arriving at time t. If the control input's
// frontier has not yet advanced past t, the batch is stashed (spec.md
// §4.3: "stashing ensures no record is ever routed under a stale map that a
// later-arriving, same-timestamp control command would change") and Route
// returns stashed=true; call Drain once AdvanceControlInput moves the
// frontier past t to release it. Otherwise the batch is routed immediately
// against the newest applicable control set.
func (r *Router[T, V]) Route(t T, records []V, hashOf func(V) uint64) (routed []RoutedRecord[T, V], stashed bool) {
	if r.ControlFrontier().LessEqual(t) {
		cap := frontier.NewCapability(r.dataTracker, t)
		r.dataStash.NotifyAt(cap, records)
		return nil, true
	}
	m := r.pipeline.MapForTime(t)
	return r.tag(t, m, records, hashOf), false
}

// Drain releases any data stashed at times the control input's frontier has
// now passed, routing each against the control set applicable to its own
// time (not the time the control frontier reached) and stamping each
// released record with that same original time.
func (r *Router[T, V]) Drain(hashOf func(V) uint64) []RoutedRecord[T, V] {
	var out []RoutedRecord[T, V]
	notify.ForEach[T, []V](r.dataStash, []*frontier.Antichain[T]{r.ControlFrontier()}, func(cap frontier.Capability[T], batches [][]V) {
		t := cap.Time()
		m := r.pipeline.MapForTime(t)
		for _, batch := range batches {
			out = append(out, r.tag(t, m, batch, hashOf)...)
		}
		cap.Drop()
	})
	return out
}

func (r *Router[T, V]) tag(t T, m bin.Map, records []V, hashOf func(V) uint64) []RoutedRecord[T, V] {
	out := make([]RoutedRecord[T, V], len(records))
	for i, v := range records {
		hash := hashOf(v)
		b := bin.Of(hash, r.b)
		out[i] = RoutedRecord[T, V]{Time: t, TargetWorker: m.Owner(b), Bin: b, BinHash: hash, Value: v}
	}
	return out
}

// Promote attempts to promote the head of the pending control-set queue,
// gated on probe (the downstream state stage's observed progress, per
// spec.md §4.3's promotion rule). On success it returns the bins whose
// ownership moved away from this worker, plus the time the transfer
// messages for those bins should carry (the newly-promoted set's own
// frontier, so the receiver observes the transfer in-order with ordinary
// data at that time, per R2); ok is false if nothing was ready to promote.
func (r *Router[T, V]) Promote(probe *frontier.Antichain[T]) (migrations []Migration, at T, ok bool) {
	if !r.pipeline.ReadyToPromote(probe) {
		return nil, at, false
	}
	outgoing, promoted := r.pipeline.Promote()
	newMap := r.pipeline.ActiveMap()
	outgoing.Diff(newMap, func(b bin.Id, from, to bin.Worker) {
		if from == r.self {
			migrations = append(migrations, Migration{Bin: b, NewOwner: to})
		}
	})
	if elems := promoted.Frontier.Elements(); len(elems) > 0 {
		at = elems[0]
	}
	return migrations, at, true
}

// ActiveMap returns the map currently in force.
func (r *Router[T, V]) ActiveMap() bin.Map { return r.pipeline.ActiveMap() }

// PendingPromotions reports how many control sets are queued for
// promotion, exposed for tests and metrics.
func (r *Router[T, V]) PendingPromotions() int { return r.pipeline.PendingLen() }

// Close releases the Router's background probe goroutine. Call once the
// worker shuts down.
func (r *Router[T, V]) Close() {
	r.controlInput.Close()
}
