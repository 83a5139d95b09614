// Package notify implements the frontier-aware notification queue that
// releases stashed payloads in timestamp order once no input frontier can
// still precede them (spec.md §4.5).
package notify

import "github.com/binshift/binshift/frontier"

// Compile-time assertions that both flavors satisfy Notificator.
var (
	_ Notificator[intTimeForAssertion, struct{}] = (*General[intTimeForAssertion, struct{}])(nil)
	_ Notificator[intTimeForAssertion, struct{}] = (*TotalOrder[intTimeForAssertion, struct{}])(nil)
)

type intTimeForAssertion int

func (t intTimeForAssertion) Less(o intTimeForAssertion) bool { return t < o }

// Notificator is satisfied by both General and TotalOrder, so operator
// skins can be generic over either flavor.
type Notificator[T frontier.Timestamp[T], P any] interface {
	// NotifyAt stashes payload against cap, to be delivered once no
	// supplied frontier can still produce something at or before cap's time.
	NotifyAt(cap frontier.Capability[T], payload P)

	// Next refills the available set from pending if empty, then pops and
	// returns the smallest available (capability, payloads) pair. The
	// payloads slice holds every payload coalesced onto that exact time.
	Next(frontiers []*frontier.Antichain[T]) (frontier.Capability[T], []P, bool)
}

// ForEach drains every currently-available notification from n, smallest
// time first, calling f for each. Monotonicity (spec.md §4.5): within one
// ForEach call, delivered times are non-decreasing, because Next always
// pops the current minimum of a queue that is only ever refilled, not
// reordered, between pops.
func ForEach[T frontier.Timestamp[T], P any](n Notificator[T, P], frontiers []*frontier.Antichain[T], f func(frontier.Capability[T], []P)) {
	for {
		c, payloads, ok := n.Next(frontiers)
		if !ok {
			return
		}
		f(c, payloads)
	}
}
