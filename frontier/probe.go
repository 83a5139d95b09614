package frontier

import "sync/atomic"

// Probe is an externally advanced frontier that a stage only reads,
// without the reporting side sharing memory with it directly. The host
// advances one Probe per input (the router's control input, and an
// operator's record and transfer inputs) as it learns that input has
// progressed; the stage reads it to decide whether stashed work may
// proceed. Promotion gating reads the state stage's own Tracker-derived
// frontier, not a Probe.
//
// The update/read split is grounded directly on
// libevm/rpcroute/server.go's Server.frontier atomic.Pointer[[]*backend] +
// updateFrontier chan struct{} + triggerFrontierUpdate/manageFrontierSet,
// generalized from "set of backends at the max observed block height" to
// "antichain of times the downstream stage has not yet finished."
type Probe[T Timestamp[T]] struct {
	current atomic.Pointer[Antichain[T]]
	trigger chan *Antichain[T]
	quit    chan struct{}
	done    chan struct{}
}

// NewProbe returns a Probe whose initial frontier is the given antichain
// (typically the bottom element, i.e. "nothing has happened yet").
func NewProbe[T Timestamp[T]](initial *Antichain[T]) *Probe[T] {
	p := &Probe[T]{
		trigger: make(chan *Antichain[T], 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	p.current.Store(initial)
	go p.run()
	return p
}

func (p *Probe[T]) run() {
	defer close(p.done)
	for {
		select {
		case f := <-p.trigger:
			p.current.Store(f)
		case <-p.quit:
			return
		}
	}
}

// Advance reports the stage's new frontier. Only the most recent call
// matters if several race; a bounded buffer-of-one channel coalesces bursts
// exactly as triggerFrontierUpdate does for the teacher's height updates.
func (p *Probe[T]) Advance(f *Antichain[T]) {
	select {
	case p.trigger <- f:
	default:
		// A previous update hasn't been applied yet; drain and replace so the
		// most recent frontier always wins, matching
		// triggerFrontierUpdate's best-effort, coalescing semantics.
		select {
		case <-p.trigger:
		default:
		}
		select {
		case p.trigger <- f:
		default:
		}
	}
}

// Frontier returns the last frontier reported via Advance.
func (p *Probe[T]) Frontier() *Antichain[T] {
	return p.current.Load()
}

// Close stops the Probe's internal goroutine. Safe to call once.
func (p *Probe[T]) Close() {
	close(p.quit)
	<-p.done
}
