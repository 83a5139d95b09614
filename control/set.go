package control

import (
	"github.com/binshift/binshift/bin"
	"github.com/binshift/binshift/frontier"
)

// Set is a compiled reconfiguration: a sequence number, the frontier at
// which it was closed, and the resulting bin->worker map.
type Set[T frontier.Timestamp[T]] struct {
	Sequence uint64
	Frontier *frontier.Antichain[T]
	Map      bin.Map
}

// Builder accumulates the commands of one control group (a run of Command
// values sharing a Sequence) into a Set. It starts from the previous set's
// map, per spec.md §4.2 ("the builder inherits the previous control set's
// map as its starting point").
type Builder struct {
	sequence   uint64
	started    bool
	remaining  int
	binCount   int
	workingMap bin.Map
}

// NewBuilder returns a Builder seeded with the map a MoveInst mutates and a
// MapInst replaces outright.
func NewBuilder(previousMap bin.Map) *Builder {
	return &Builder{
		binCount:   len(previousMap),
		workingMap: previousMap.Clone(),
	}
}

// Add folds one command into the group. It returns ErrMalformedControlGroup
// (wrapped with the offending detail) if the command's sequence disagrees
// with the group already in progress, if more commands than Count have now
// been observed, or if a Move names an out-of-range bin.
func (b *Builder) Add(c Command) error {
	if !b.started {
		b.started = true
		b.sequence = c.Sequence
		b.remaining = int(c.Count)
	} else if c.Sequence != b.sequence {
		return errSequenceMismatch(b.sequence, c.Sequence)
	}

	if b.remaining <= 0 {
		return errTooManyCommands(b.sequence, int(c.Count))
	}
	b.remaining--

	switch inst := c.Inst.(type) {
	case NoOpInst:
		// Dropped, per spec.md §4.2.
	case MapInst:
		b.workingMap = inst.Map.Clone()
		b.binCount = len(b.workingMap)
	case MoveInst:
		if int(inst.Bin) >= b.binCount {
			return errBinOutOfRange(b.sequence, inst.Bin, b.binCount)
		}
		b.workingMap.Move(inst.Bin, inst.Worker)
	}
	return nil
}

// Done reports whether every command promised by Count has been observed.
func (b *Builder) Done() bool {
	return b.started && b.remaining == 0
}

// Sequence returns the group's sequence number. Only meaningful once at
// least one command has been added.
func (b *Builder) Sequence() uint64 {
	return b.sequence
}

// Build closes the group into a Set stamped with the given frontier.
func Build[T frontier.Timestamp[T]](b *Builder, at T) *Set[T] {
	return &Set[T]{
		Sequence: b.sequence,
		Frontier: frontier.NewAntichain(at),
		Map:      b.workingMap,
	}
}
