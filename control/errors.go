package control

import (
	"errors"
	"fmt"

	"github.com/binshift/binshift/bin"
)

// ErrMalformedControlGroup is returned when a control group fails one of the
// well-formedness checks in spec.md §4.2: disagreeing sequence numbers
// within a group, more commands observed than Count declared, or a Move
// naming a bin outside the bin space.
var ErrMalformedControlGroup = errors.New("control: malformed control group")

// ErrOrderingViolation is logged (not returned on the hot path, per spec.md
// §7) when a newly built control set fails to be dominated by the previous
// one in frontier order.
var ErrOrderingViolation = errors.New("control: control set ordering violation")

func errSequenceMismatch(expected, got uint64) error {
	return fmt.Errorf("%w: sequence %d disagrees with group in progress (%d)", ErrMalformedControlGroup, got, expected)
}

func errTooManyCommands(sequence uint64, count int) error {
	return fmt.Errorf("%w: sequence %d received more commands than its declared count %d", ErrMalformedControlGroup, sequence, count)
}

func errBinOutOfRange(sequence uint64, b bin.Id, binCount int) error {
	return fmt.Errorf("%w: sequence %d: Move names bin %d, out of range for %d bins", ErrMalformedControlGroup, sequence, b, binCount)
}
