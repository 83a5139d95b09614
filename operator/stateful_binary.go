package operator

import (
	"github.com/binshift/binshift/bin"
	"github.com/binshift/binshift/control"
	"github.com/binshift/binshift/frontier"
	"github.com/binshift/binshift/router"
	"github.com/binshift/binshift/state"
)

// BinaryTransfer carries both sides' drained bin contents for one
// promotion, stamped atomically so a receiver never installs side A's
// state for a bin without side B's.
type BinaryTransfer[T frontier.Timestamp[T], K comparable, AggA any, AggB any] struct {
	Time     T
	Worker   bin.Worker
	Bin      bin.Id
	EntriesA []state.Entry[K, AggA]
	EntriesB []state.Entry[K, AggB]
}

// StatefulBinary is the "binary join (symmetric)" skin of spec.md §4.6,
// grounded on original_source/src/join.rs: two routers, fed the same
// broadcast control commands so they promote in lockstep, feeding one
// shared state.BinaryStage. A record on either input routes and stashes
// independently of the other, but both sides' folds read and write each
// other's bin state once notified (state.BinaryFold).
type StatefulBinary[T frontier.Timestamp[T], K comparable, VA any, VB any, AggA any, AggB any, Out any] struct {
	self bin.Worker

	hashOf func(K) uint64

	routerA *router.Router[T, recordEnvelope[K, VA]]
	routerB *router.Router[T, recordEnvelope[K, VB]]
	stage   *state.BinaryStage[T, K, VA, VB, AggA, AggB, Out]

	recordInput   *frontier.Probe[T]
	transferInput *frontier.Probe[T]
}

// NewStatefulBinary constructs a StatefulBinary for worker self out of P
// workers, with bin shift b, a single key-hash function shared by both
// sides (join.rs hashes both input streams' keys identically, since a match
// requires both sides to land in the same bin) and a BinaryFold.
func NewStatefulBinary[T frontier.Timestamp[T], K comparable, VA any, VB any, AggA any, AggB any, Out any](
	self bin.Worker, b uint, hashOf func(K) uint64, fold state.BinaryFold[K, VA, VB, AggA, AggB, Out], bottom *frontier.Antichain[T],
) *StatefulBinary[T, K, VA, VB, AggA, AggB, Out] {
	routerA, recordInput := Stateful[T, recordEnvelope[K, VA]](self, b, bottom)
	routerB, probeB := Stateful[T, recordEnvelope[K, VB]](self, b, bottom)
	probeB.Close()
	return &StatefulBinary[T, K, VA, VB, AggA, AggB, Out]{
		self:          self,
		hashOf:        hashOf,
		routerA:       routerA,
		routerB:       routerB,
		stage:         state.NewBinaryStage[T, K, VA, VB, AggA, AggB, Out](b, fold),
		recordInput:   recordInput,
		transferInput: frontier.NewProbe[T](bottom),
	}
}

// OnMalformed registers the callback invoked when either side's control
// group fails a well-formedness check; both routers observe the identical
// control stream, so a malformation reported on one is reported on both.
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) OnMalformed(f func(error)) {
	m.routerA.OnMalformed(f)
	m.routerB.OnMalformed(f)
}

// OnOrderingViolation registers the callback invoked when a newly closed
// control set is not dominated by its predecessor, on either router.
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) OnOrderingViolation(f func(error)) {
	m.routerA.OnOrderingViolation(f)
	m.routerB.OnOrderingViolation(f)
}

// IngestControl broadcasts a control command identically to both routers
// (spec.md §4.6: "two routers sharing the same control set").
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) IngestControl(t T, c control.Command) {
	m.routerA.IngestControl(t, c)
	m.routerB.IngestControl(t, c)
}

// CloseControl closes the control group at t on both routers.
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) CloseControl(t T) {
	m.routerA.CloseControl(t)
	m.routerB.CloseControl(t)
}

// AdvanceControlInput reports control-stream progress to both routers.
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) AdvanceControlInput(f *frontier.Antichain[T]) {
	m.routerA.AdvanceControlInput(f)
	m.routerB.AdvanceControlInput(f)
}

// AdvanceRecordInput and AdvanceTransferInput report that the local
// record/transfer exchange inputs have progressed to f.
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) AdvanceRecordInput(f *frontier.Antichain[T]) {
	m.recordInput.Advance(f)
}
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) AdvanceTransferInput(f *frontier.Antichain[T]) {
	m.transferInput.Advance(f)
}

// SubmitA routes a batch of side-A (key, value) pairs arriving at t.
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) SubmitA(t T, keys []K, values []VA) (remote []RemoteRecord[T, K, VA], out []Out) {
	records := make([]recordEnvelope[K, VA], len(keys))
	for i := range keys {
		records[i] = recordEnvelope[K, VA]{Key: keys[i], Value: values[i]}
	}
	routed, stashed := m.routerA.Route(t, records, func(r recordEnvelope[K, VA]) uint64 { return m.hashOf(r.Key) })
	if stashed {
		return nil, nil
	}
	return m.dispatchA(routed)
}

// SubmitB is the mirror of SubmitA for side B.
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) SubmitB(t T, keys []K, values []VB) (remote []RemoteRecord[T, K, VB], out []Out) {
	records := make([]recordEnvelope[K, VB], len(keys))
	for i := range keys {
		records[i] = recordEnvelope[K, VB]{Key: keys[i], Value: values[i]}
	}
	routed, stashed := m.routerB.Route(t, records, func(r recordEnvelope[K, VB]) uint64 { return m.hashOf(r.Key) })
	if stashed {
		return nil, nil
	}
	return m.dispatchB(routed)
}

// DeliverRemoteA applies a side-A routed record received from another
// worker's SubmitA/DrainRouterA.
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) DeliverRemoteA(rr RemoteRecord[T, K, VA]) []Out {
	r := rr.Record
	return m.stage.RecordA(r.Time, r.Bin, r.Value.Key, r.Value.Value, m.inputFrontiers())
}

// DeliverRemoteB is the mirror of DeliverRemoteA for side B.
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) DeliverRemoteB(rr RemoteRecord[T, K, VB]) []Out {
	r := rr.Record
	return m.stage.RecordB(r.Time, r.Bin, r.Value.Key, r.Value.Value, m.inputFrontiers())
}

// DeliverTransfer applies an incoming bin transfer, installing both sides
// atomically (spec.md §4.4).
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) DeliverTransfer(tr BinaryTransfer[T, K, AggA, AggB]) {
	m.stage.Transfer(tr.Time, tr.Bin, tr.EntriesA, tr.EntriesB)
}

// DrainRouterA releases any side-A router-stashed batches now unblocked by
// a prior AdvanceControlInput call.
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) DrainRouterA() (remote []RemoteRecord[T, K, VA], out []Out) {
	routed := m.routerA.Drain(func(r recordEnvelope[K, VA]) uint64 { return m.hashOf(r.Key) })
	return m.dispatchA(routed)
}

// DrainRouterB is the mirror of DrainRouterA for side B.
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) DrainRouterB() (remote []RemoteRecord[T, K, VB], out []Out) {
	routed := m.routerB.Drain(func(r recordEnvelope[K, VB]) uint64 { return m.hashOf(r.Key) })
	return m.dispatchB(routed)
}

func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) dispatchA(routed []router.RoutedRecord[T, recordEnvelope[K, VA]]) (remote []RemoteRecord[T, K, VA], out []Out) {
	for _, rr := range routed {
		if rr.TargetWorker == m.self {
			out = append(out, m.stage.RecordA(rr.Time, rr.Bin, rr.Value.Key, rr.Value.Value, m.inputFrontiers())...)
			continue
		}
		remote = append(remote, RemoteRecord[T, K, VA]{Record: rr})
	}
	return remote, out
}

func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) dispatchB(routed []router.RoutedRecord[T, recordEnvelope[K, VB]]) (remote []RemoteRecord[T, K, VB], out []Out) {
	for _, rr := range routed {
		if rr.TargetWorker == m.self {
			out = append(out, m.stage.RecordB(rr.Time, rr.Bin, rr.Value.Key, rr.Value.Value, m.inputFrontiers())...)
			continue
		}
		remote = append(remote, RemoteRecord[T, K, VB]{Record: rr})
	}
	return remote, out
}

func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) inputFrontiers() []*frontier.Antichain[T] {
	return []*frontier.Antichain[T]{m.recordInput.Frontier(), m.transferInput.Frontier()}
}

// Advance fires every notification now closed by the record/transfer input
// frontiers, then attempts to promote both routers' pending control sets
// against the shared stage's frontier. Both routers observe an identical
// control stream and the identical stage.Frontier() probe, so they are
// expected to promote in lockstep; Advance promotes both and only emits
// transfers once both agree a promotion is ready.
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) Advance() (out []Out, transfers []BinaryTransfer[T, K, AggA, AggB]) {
	out = m.stage.Advance(m.inputFrontiers())

	probe := m.stage.Frontier()
	migrationsA, at, okA := m.routerA.Promote(probe)
	migrationsB, _, okB := m.routerB.Promote(probe)
	if !okA || !okB {
		return out, nil
	}
	for _, mig := range migrationsA {
		entriesA, entriesB := m.stage.Drain(mig.Bin)
		transfers = append(transfers, BinaryTransfer[T, K, AggA, AggB]{
			Time: at, Worker: mig.NewOwner, Bin: mig.Bin, EntriesA: entriesA, EntriesB: entriesB,
		})
	}
	_ = migrationsB
	return out, transfers
}

// ActiveMap returns the bin->worker map currently in force (identical on
// both routers, since both observe the same control stream).
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) ActiveMap() bin.Map { return m.routerA.ActiveMap() }

// PendingPromotions reports how many control sets are queued for promotion.
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) PendingPromotions() int {
	return m.routerA.PendingPromotions()
}

// PendingNotifications reports how many record/transfer notifications are
// currently held back by an open input frontier.
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) PendingNotifications() int {
	return m.stage.PendingNotifications()
}

// Close releases the StatefulBinary's background probe goroutines.
func (m *StatefulBinary[T, K, VA, VB, AggA, AggB, Out]) Close() {
	m.routerA.Close()
	m.routerB.Close()
	m.recordInput.Close()
	m.transferInput.Close()
}
