// Package dataflow supplies the minimal host substrate spec.md §2 assumes
// the implementer already has or builds alongside: typed batches carrying
// (timestamp, record) pairs between workers over plain channels, and the
// worker-identity plumbing the router and state stages need to recognize
// their own shard of an exchange edge.
//
// There is no teacher precedent for a dataflow substrate in this corpus;
// this package follows the channel-as-suspension-point idiom used
// throughout the pack's select loops (e.g. the worker loops in
// libevm/precompiles/parallel and libevm/rpcroute) rather than any single
// file, since no example repo implements one.
package dataflow

import "github.com/binshift/binshift/bin"

// Batch is one timestamped group of records (or transfer elements) crossing
// a channel between two operators, per spec.md §2's "typed streams carrying
// (timestamp, record) batches between workers."
type Batch[T any, V any] struct {
	Time    T
	Records []V
}

// Stream is the channel type carrying batches of V stamped with T between
// two operators. A closed Stream signals that the upstream operator has
// shut down and no further batches will arrive.
type Stream[T any, V any] chan Batch[T, V]

// Exchange routes payloads across a fixed set of per-worker input channels,
// one per target, mirroring spec.md §4.3/§4.4's "exchanged on
// target_worker." The router and state stages do not create one
// themselves: the operator skins return remote records and transfers to the
// caller, which delivers them to the target worker.
type Exchange[V any] struct {
	inputs []chan V
}

// NewExchange allocates an Exchange with one buffered input channel per
// worker in [0, workerCount).
func NewExchange[V any](workerCount int, bufferSize int) *Exchange[V] {
	inputs := make([]chan V, workerCount)
	for i := range inputs {
		inputs[i] = make(chan V, bufferSize)
	}
	return &Exchange[V]{inputs: inputs}
}

// Send delivers v to the channel owned by worker target. It blocks if that
// worker's input is full, providing the implicit backpressure spec.md §5
// describes.
func (e *Exchange[V]) Send(target bin.Worker, v V) {
	e.inputs[target] <- v
}

// Recv returns the input channel for worker id, read-only so a receiving
// stage cannot accidentally write into its own inbox.
func (e *Exchange[V]) Recv(id bin.Worker) <-chan V {
	return e.inputs[id]
}

// Close closes every worker's input channel. Callers must ensure no further
// Send calls occur afterward.
func (e *Exchange[V]) Close() {
	for _, ch := range e.inputs {
		close(ch)
	}
}
