// Package operator composes the router and state stages into the
// "stateful operator skins" of spec.md §4.6: thin wrappers that give a user
// a single-call surface (stateful_state_machine, stateful_unary,
// stateful_binary) over the routing, stashing and promotion machinery that
// router.Router and state.Stage implement separately.
//
// There is no single teacher file for this composition (router and state
// are a spec.md invention grounded on original_source/src/stateful.rs), so
// the wiring here follows the same worker-owns-its-operators shape as
// libevm/precompiles/parallel.Processor: one struct per worker holding
// every piece of state that worker's goroutine touches, with no locking
// because nothing else ever reaches in.
package operator

import (
	"github.com/binshift/binshift/bin"
	"github.com/binshift/binshift/control"
	"github.com/binshift/binshift/frontier"
	"github.com/binshift/binshift/router"
	"github.com/binshift/binshift/state"
)

// recordEnvelope pairs a routing key with its value so router.Router (which
// only knows how to hash and tag a V) can be instantiated once per state
// machine without requiring V itself to carry a key.
type recordEnvelope[K comparable, V any] struct {
	Key   K
	Value V
}

// RemoteRecord is a routed record, already carrying the time it arrived at
// (router.RoutedRecord.Time), for delivery across a worker boundary: a
// receiving worker's skin needs that time to decide whether its own input
// frontiers still stash the record (spec.md §4.4).
type RemoteRecord[T frontier.Timestamp[T], K comparable, V any] struct {
	Record router.RoutedRecord[T, recordEnvelope[K, V]]
}

// Transfer is a bin's drained contents stamped with the promotion time and
// destination worker, for delivery to the new owner's skin.
type Transfer[T frontier.Timestamp[T], K comparable, Agg any] struct {
	Time    T
	Worker  bin.Worker
	Bin     bin.Id
	Entries []state.Entry[K, Agg]
}

// Stateful is the raw two-stream primitive spec.md §6 names directly:
// `stateful(hash_fn, control_stream) -> (routed_stream, bin_state_handle,
// probe)`. Every skin in this package (StatefulStateMachine, StatefulUnary,
// StatefulBinary) is built by pairing the router this returns with its own
// choice of state-holding stage; the probe is the record-exchange input
// handle the caller advances as it learns the record stream has progressed,
// the same role spec.md's "probe" return value plays for downstream
// promotion gating.
func Stateful[T frontier.Timestamp[T], V any](self bin.Worker, b uint, bottom *frontier.Antichain[T]) (*router.Router[T, V], *frontier.Probe[T]) {
	return router.New[T, V](self, b, bottom), frontier.NewProbe[T](bottom)
}

// StatefulStateMachine is the unary state-machine skin of spec.md §4.6:
// records flow in, get routed, stash under the notificator, and are applied
// one at a time to a per-key aggregate via the user's fold. It owns one
// worker's share of the router and state stages and is not safe for
// concurrent use from more than one goroutine, mirroring spec.md §5's
// one-goroutine-per-worker cooperative scheduling.
type StatefulStateMachine[T frontier.Timestamp[T], K comparable, V any, Agg any, Out any] struct {
	self bin.Worker

	hashOf func(K) uint64

	router *router.Router[T, recordEnvelope[K, V]]
	stage  *state.Stage[T, K, V, Agg, Out]

	recordInput   *frontier.Probe[T]
	transferInput *frontier.Probe[T]
}

// NewStatefulStateMachine constructs a StatefulStateMachine for worker self
// out of P workers, with bin shift b, a key-hash function and a fold,
// starting from the bottom frontier on every input (spec.md §9's implicit
// all-bins-on-worker-0 starting map, reached via router.New's own default).
func NewStatefulStateMachine[T frontier.Timestamp[T], K comparable, V any, Agg any, Out any](
	self bin.Worker, b uint, hashOf func(K) uint64, fold state.Fold[K, V, Agg, Out], bottom *frontier.Antichain[T],
) *StatefulStateMachine[T, K, V, Agg, Out] {
	r, recordInput := Stateful[T, recordEnvelope[K, V]](self, b, bottom)
	return &StatefulStateMachine[T, K, V, Agg, Out]{
		self:          self,
		hashOf:        hashOf,
		router:        r,
		stage:         state.New[T, K, V, Agg, Out](b, fold),
		recordInput:   recordInput,
		transferInput: frontier.NewProbe[T](bottom),
	}
}

// OnMalformed registers the callback invoked when a control group fails a
// well-formedness check (spec.md §7).
func (m *StatefulStateMachine[T, K, V, Agg, Out]) OnMalformed(f func(error)) { m.router.OnMalformed(f) }

// OnOrderingViolation registers the callback invoked when a newly closed
// control set is not dominated by its predecessor (spec.md §7).
func (m *StatefulStateMachine[T, K, V, Agg, Out]) OnOrderingViolation(f func(error)) {
	m.router.OnOrderingViolation(f)
}

// IngestControl, CloseControl and AdvanceControlInput pass control-stream
// events straight through to the router (spec.md §4.2/§4.3).
func (m *StatefulStateMachine[T, K, V, Agg, Out]) IngestControl(t T, c control.Command) {
	m.router.IngestControl(t, c)
}
func (m *StatefulStateMachine[T, K, V, Agg, Out]) CloseControl(t T) { m.router.CloseControl(t) }
func (m *StatefulStateMachine[T, K, V, Agg, Out]) AdvanceControlInput(f *frontier.Antichain[T]) {
	m.router.AdvanceControlInput(f)
}

// AdvanceRecordInput and AdvanceTransferInput report that the local
// record/transfer exchange inputs have progressed to f. The state stage
// consults both, plus its own router-derived stash, to decide whether a
// stashed record may be applied (spec.md §4.4's "current frontier of
// either input").
func (m *StatefulStateMachine[T, K, V, Agg, Out]) AdvanceRecordInput(f *frontier.Antichain[T]) {
	m.recordInput.Advance(f)
}
func (m *StatefulStateMachine[T, K, V, Agg, Out]) AdvanceTransferInput(f *frontier.Antichain[T]) {
	m.transferInput.Advance(f)
}

// Submit routes a batch of (key, value) pairs arriving at t. Pairs destined
// for this worker are applied immediately through dispatch, which in turn
// calls stage.Record with the combined record/transfer input frontiers;
// pairs destined elsewhere are returned as remote for the host substrate to
// exchange.
func (m *StatefulStateMachine[T, K, V, Agg, Out]) Submit(t T, keys []K, values []V) (remote []RemoteRecord[T, K, V], out []Out) {
	records := make([]recordEnvelope[K, V], len(keys))
	for i := range keys {
		records[i] = recordEnvelope[K, V]{Key: keys[i], Value: values[i]}
	}

	routed, stashed := m.router.Route(t, records, func(r recordEnvelope[K, V]) uint64 { return m.hashOf(r.Key) })
	if stashed {
		return nil, nil
	}
	return m.dispatch(routed)
}

// DeliverRemote applies a routed record received from another worker's
// Submit/DrainRouter. The caller is responsible for getting rr.Record here
// only once it is meant for this worker (self == rr.Record.TargetWorker).
func (m *StatefulStateMachine[T, K, V, Agg, Out]) DeliverRemote(rr RemoteRecord[T, K, V]) []Out {
	r := rr.Record
	return m.stage.Record(r.Time, r.Bin, r.Value.Key, r.Value.Value, m.inputFrontiers())
}

// DeliverTransfer applies an incoming bin transfer (spec.md §4.4: always
// stashed under notification, regardless of input frontiers).
func (m *StatefulStateMachine[T, K, V, Agg, Out]) DeliverTransfer(tr Transfer[T, K, Agg]) {
	m.stage.Transfer(tr.Time, tr.Bin, tr.Entries)
}

// DrainRouter releases any router-stashed batches now unblocked by a prior
// AdvanceControlInput call, dispatching each exactly as Submit would have:
// router.Drain stamps every released record with its own original time
// (not the time the control frontier happened to reach), so a drained
// batch spanning several times is dispatched at each record's own time
// rather than collapsed onto one floor value (spec.md §4.4's per-time
// ordering).
func (m *StatefulStateMachine[T, K, V, Agg, Out]) DrainRouter() (remote []RemoteRecord[T, K, V], out []Out) {
	routed := m.router.Drain(func(r recordEnvelope[K, V]) uint64 { return m.hashOf(r.Key) })
	return m.dispatch(routed)
}

// dispatch splits routed into local applications and remote hand-offs,
// each stamped with its own RoutedRecord.Time.
func (m *StatefulStateMachine[T, K, V, Agg, Out]) dispatch(routed []router.RoutedRecord[T, recordEnvelope[K, V]]) (remote []RemoteRecord[T, K, V], out []Out) {
	for _, rr := range routed {
		if rr.TargetWorker == m.self {
			out = append(out, m.stage.Record(rr.Time, rr.Bin, rr.Value.Key, rr.Value.Value, m.inputFrontiers())...)
			continue
		}
		remote = append(remote, RemoteRecord[T, K, V]{Record: rr})
	}
	return remote, out
}

func (m *StatefulStateMachine[T, K, V, Agg, Out]) inputFrontiers() []*frontier.Antichain[T] {
	return []*frontier.Antichain[T]{m.recordInput.Frontier(), m.transferInput.Frontier()}
}

// Advance fires every notification now closed by the record/transfer input
// frontiers, applying transfers before records per time (spec.md §4.4), then
// attempts to promote the head of the router's pending control-set queue
// against this stage's own outstanding-work frontier (spec.md §4.3's
// promotion rule: the router may not promote faster than the state stage
// can drain the bins it is about to lose). Returns user outputs plus any
// transfers this worker must now send to new owners.
func (m *StatefulStateMachine[T, K, V, Agg, Out]) Advance() (out []Out, transfers []Transfer[T, K, Agg]) {
	out = m.stage.Advance(m.inputFrontiers())

	migrations, at, ok := m.router.Promote(m.stage.Frontier())
	if !ok {
		return out, nil
	}
	for _, mig := range migrations {
		entries := m.stage.Drain(mig.Bin)
		transfers = append(transfers, Transfer[T, K, Agg]{Time: at, Worker: mig.NewOwner, Bin: mig.Bin, Entries: entries})
	}
	return out, transfers
}

// ActiveMap returns the bin->worker map currently in force.
func (m *StatefulStateMachine[T, K, V, Agg, Out]) ActiveMap() bin.Map { return m.router.ActiveMap() }

// PendingPromotions reports how many control sets are queued for promotion.
func (m *StatefulStateMachine[T, K, V, Agg, Out]) PendingPromotions() int {
	return m.router.PendingPromotions()
}

// PendingNotifications reports how many record/transfer notifications are
// currently held back by an open input frontier.
func (m *StatefulStateMachine[T, K, V, Agg, Out]) PendingNotifications() int {
	return m.stage.PendingNotifications()
}

// Close releases the StatefulStateMachine's background probe goroutines.
// Call once the worker shuts down.
func (m *StatefulStateMachine[T, K, V, Agg, Out]) Close() {
	m.router.Close()
	m.recordInput.Close()
	m.transferInput.Close()
}
