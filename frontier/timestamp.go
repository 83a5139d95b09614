// Package frontier implements timestamps, antichains, capabilities and
// frontier tracking: the notion of "nothing further can arrive before this
// point" that the router and state stages use to know when it's safe to act.
package frontier

// Timestamp is a partial order with a bottom element. T must be comparable
// so that antichains and frontier trackers can use it as a map key without
// an extra Equal method; Less provides the order itself.
//
// The core treats T opaquely beyond comparison, per spec.md §3.
type Timestamp[T any] interface {
	comparable
	Less(other T) bool
}

// lessEqual reports whether a <= b, i.e. a == b or a < b.
func lessEqual[T Timestamp[T]](a, b T) bool {
	return a == b || a.Less(b)
}
