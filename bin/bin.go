// Package bin implements the fixed-size bin space that every routing key
// hashes into, and the bin-to-worker assignment map.
package bin

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// MaxShift is the largest bin-shift this package supports. The reference
// system accepts 1..20; 8 is typical.
const MaxShift = 20

// Id identifies one of the 1<<B bins.
type Id uint32

// String renders id the way the rest of this module's logging does:
// 0x-prefixed hex, matching go-ethereum's hexutil convention for every other
// numeric id it logs.
func (id Id) String() string {
	return hexutil.Uint64(id).String()
}

// Worker identifies one of the P workers in the dataflow.
type Worker uint32

// String renders w as 0x-prefixed hex, see Id.String.
func (w Worker) String() string {
	return hexutil.Uint64(w).String()
}

// Of extracts the top b bits of hash as a bin id. b is the compile-time
// bin-shift constant B from spec.md §3: bin = hash >> (64-B). Masking top
// bits rather than bottom bits keeps bin assignment stable under changes to
// the hash function's low-bit mixing, and is independent of the bin count at
// any instant other than build time.
func Of(hash uint64, b uint) Id {
	if b == 0 || b > MaxShift {
		panic(fmt.Sprintf("bin: shift %d out of range (1..%d)", b, MaxShift))
	}
	return Id(hash >> (64 - b))
}

// Count returns 1<<b, the number of bins for shift b.
func Count(b uint) int {
	return 1 << b
}

// Map is the current bin->worker assignment: a total function over
// [0, 1<<B), no gaps.
type Map []Worker

// NewMap returns a Map of the given bin count with every bin owned by
// owner. spec.md §9 requires an implicit initial map of all-bins-on-worker-0
// to make a bare Move total even before any Map command is ever installed;
// callers that want that behavior pass owner 0.
func NewMap(binCount int, owner Worker) Map {
	m := make(Map, binCount)
	for i := range m {
		m[i] = owner
	}
	return m
}

// Clone returns an independent copy of m.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	copy(out, m)
	return out
}

// Valid reports whether b indexes into m.
func (m Map) Valid(b Id) bool {
	return int(b) < len(m)
}

// Owner returns the worker that owns bin b. Panics if b is out of range;
// callers are expected to have validated b with Valid (see DESIGN.md's
// resolution of the bin-masking open question: Of is the sole producer of
// Id values and every other boundary checks range explicitly rather than
// re-masking).
func (m Map) Owner(b Id) Worker {
	return m[b]
}

// Move sets bin b's owner to w. Panics if b is out of range; callers
// validate with Valid first.
func (m Map) Move(b Id, w Worker) {
	m[b] = w
}

// Equal reports whether m and other assign every bin to the same worker.
func (m Map) Equal(other Map) bool {
	if len(m) != len(other) {
		return false
	}
	for i, w := range m {
		if other[i] != w {
			return false
		}
	}
	return true
}

// Diff calls f for every bin whose owner differs between m (the outgoing
// map) and next (the incoming map).
func (m Map) Diff(next Map, f func(b Id, from, to Worker)) {
	n := len(m)
	if len(next) < n {
		n = len(next)
	}
	for i := range n {
		if m[i] != next[i] {
			f(Id(i), m[i], next[i])
		}
	}
}
