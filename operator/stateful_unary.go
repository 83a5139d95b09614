package operator

import (
	"github.com/binshift/binshift/bin"
	"github.com/binshift/binshift/control"
	"github.com/binshift/binshift/frontier"
	"github.com/binshift/binshift/router"
	"github.com/binshift/binshift/state"
)

// StatefulUnary is the "unary with pre-notify input handler" skin of
// spec.md §4.6: like StatefulStateMachine, it routes and stashes records
// under a notificator, but instead of applying a per-record Fold after
// notification it hands the whole notified batch, and the bin array itself,
// to a state.PreNotifyHandler. That handler can mint its own delayed
// capabilities (frontier.Capability.Delayed) to reschedule a payload for a
// later notification -- the shape windowed queries use to stash a delete
// event at t+W, per spec.md's stateful_unary description.
type StatefulUnary[T frontier.Timestamp[T], K comparable, V any, Agg any, Out any] struct {
	self bin.Worker

	hashOf func(K) uint64

	router *router.Router[T, recordEnvelope[K, V]]
	stage  *state.UnaryStage[T, K, V, Agg, Out]
}

// NewStatefulUnary constructs a StatefulUnary for worker self out of P
// workers, with bin shift b, a key-hash function and a pre-notify handler.
func NewStatefulUnary[T frontier.Timestamp[T], K comparable, V any, Agg any, Out any](
	self bin.Worker, b uint, hashOf func(K) uint64, handler state.PreNotifyHandler[T, K, V, Agg, Out], bottom *frontier.Antichain[T],
) *StatefulUnary[T, K, V, Agg, Out] {
	r, recordProbe := Stateful[T, recordEnvelope[K, V]](self, b, bottom)
	recordProbe.Close()
	return &StatefulUnary[T, K, V, Agg, Out]{
		self:   self,
		hashOf: hashOf,
		router: r,
		stage:  state.NewUnaryStage[T, K, V, Agg, Out](b, handler),
	}
}

// OnMalformed registers the callback invoked when a control group fails a
// well-formedness check (spec.md §7).
func (m *StatefulUnary[T, K, V, Agg, Out]) OnMalformed(f func(error)) { m.router.OnMalformed(f) }

// OnOrderingViolation registers the callback invoked when a newly closed
// control set is not dominated by its predecessor (spec.md §7).
func (m *StatefulUnary[T, K, V, Agg, Out]) OnOrderingViolation(f func(error)) {
	m.router.OnOrderingViolation(f)
}

// IngestControl, CloseControl and AdvanceControlInput pass control-stream
// events straight through to the router.
func (m *StatefulUnary[T, K, V, Agg, Out]) IngestControl(t T, c control.Command) {
	m.router.IngestControl(t, c)
}
func (m *StatefulUnary[T, K, V, Agg, Out]) CloseControl(t T) { m.router.CloseControl(t) }
func (m *StatefulUnary[T, K, V, Agg, Out]) AdvanceControlInput(f *frontier.Antichain[T]) {
	m.router.AdvanceControlInput(f)
}

// Submit routes a batch of (key, value) pairs arriving at t, stashing those
// destined for this worker directly in the pre-notify stage and returning
// the rest for the host substrate to exchange.
func (m *StatefulUnary[T, K, V, Agg, Out]) Submit(t T, keys []K, values []V) (remote []RemoteRecord[T, K, V]) {
	records := make([]recordEnvelope[K, V], len(keys))
	for i := range keys {
		records[i] = recordEnvelope[K, V]{Key: keys[i], Value: values[i]}
	}

	routed, stashed := m.router.Route(t, records, func(r recordEnvelope[K, V]) uint64 { return m.hashOf(r.Key) })
	if stashed {
		return nil
	}
	return m.dispatch(routed)
}

// DeliverRemote stashes a routed record received from another worker.
func (m *StatefulUnary[T, K, V, Agg, Out]) DeliverRemote(rr RemoteRecord[T, K, V]) {
	r := rr.Record
	m.stage.Record(r.Time, r.Bin, r.Value.Key, r.Value.Value)
}

// DeliverTransfer installs an incoming bin transfer.
func (m *StatefulUnary[T, K, V, Agg, Out]) DeliverTransfer(tr Transfer[T, K, Agg]) {
	m.stage.Transfer(tr.Bin, tr.Entries)
}

// DrainRouter releases any router-stashed batches now unblocked by a prior
// AdvanceControlInput call, each still stamped with its own original time.
func (m *StatefulUnary[T, K, V, Agg, Out]) DrainRouter() []RemoteRecord[T, K, V] {
	routed := m.router.Drain(func(r recordEnvelope[K, V]) uint64 { return m.hashOf(r.Key) })
	return m.dispatch(routed)
}

func (m *StatefulUnary[T, K, V, Agg, Out]) dispatch(routed []router.RoutedRecord[T, recordEnvelope[K, V]]) (remote []RemoteRecord[T, K, V]) {
	for _, rr := range routed {
		if rr.TargetWorker == m.self {
			m.stage.Record(rr.Time, rr.Bin, rr.Value.Key, rr.Value.Value)
			continue
		}
		remote = append(remote, RemoteRecord[T, K, V]{Record: rr})
	}
	return remote
}

// Advance fires every notification now closed by the record input frontier,
// invoking the user's pre-notify handler, then attempts a control-set
// promotion exactly as StatefulStateMachine.Advance does.
func (m *StatefulUnary[T, K, V, Agg, Out]) Advance(recordInput *frontier.Antichain[T]) (out []Out, transfers []Transfer[T, K, Agg]) {
	out = m.stage.Advance([]*frontier.Antichain[T]{recordInput})

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
func (m *StatefulUnary[T, K, V, Agg, Out]) ActiveMap() bin.Map { return m.router.ActiveMap() }

// PendingPromotions reports how many control sets are queued for promotion.
func (m *StatefulUnary[T, K, V, Agg, Out]) PendingPromotions() int { return m.router.PendingPromotions() }

// PendingNotifications reports how many record notifications are currently
// held back by an open input frontier.
func (m *StatefulUnary[T, K, V, Agg, Out]) PendingNotifications() int {
	return m.stage.PendingNotifications()
}

// Close releases the StatefulUnary's background probe goroutine.
func (m *StatefulUnary[T, K, V, Agg, Out]) Close() { m.router.Close() }
