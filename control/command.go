// Package control implements the control-command log and its compilation
// into a totally-ordered sequence of control sets, per spec.md §4.2.
package control

import "github.com/binshift/binshift/bin"

// Inst is the instruction carried by a Command: exactly one of MapInst,
// MoveInst or NoOpInst.
type Inst interface {
	isInst()
}

// MapInst replaces the entire bin->worker map.
type MapInst struct {
	Map bin.Map
}

func (MapInst) isInst() {}

// MoveInst reassigns a single bin to a worker.
type MoveInst struct {
	Bin    bin.Id
	Worker bin.Worker
}

func (MoveInst) isInst() {}

// NoOpInst carries no change; it exists so a sequence can be padded to a
// fixed Count without affecting the map (spec.md §4.2: "NoOp is dropped").
type NoOpInst struct{}

func (NoOpInst) isInst() {}

// Command is one control-log entry. A logical reconfiguration is a group of
// Count commands sharing a Sequence; every worker observes the whole group
// (commands are broadcast).
type Command struct {
	Sequence uint64
	Count    uint16
	Inst     Inst
}
