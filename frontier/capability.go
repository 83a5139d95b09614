package frontier

// Capability is a token that grants the right to emit at Time and holds
// back the holder's output frontier until Drop is called. Capabilities are
// value types; Drop must be called exactly once on every exit path (spec.md
// §9), typically via defer.
type Capability[T Timestamp[T]] struct {
	time    T
	tracker *Tracker[T]
}

// NewCapability mints a capability at t, retaining it against tracker.
func NewCapability[T Timestamp[T]](tracker *Tracker[T], t T) Capability[T] {
	tracker.retain(t)
	return Capability[T]{time: t, tracker: tracker}
}

// Time returns the time the capability is held at.
func (c Capability[T]) Time() T {
	return c.time
}

// Drop releases the capability, allowing the held-back frontier to advance
// once no other capability retains an equal or earlier time.
func (c Capability[T]) Drop() {
	c.tracker.release(c.time)
}

// Downgrade exchanges c for a new capability at t, which must not be earlier
// than c.Time(); downgrading to an earlier time would let the holder emit
// before a point it already surrendered the right to.
func (c Capability[T]) Downgrade(t T) Capability[T] {
	next := NewCapability(c.tracker, t)
	c.Drop()
	return next
}

// Delayed mints a new, independent capability at t from the same tracker,
// without releasing c. Used when a notification handler must retain its
// current capability while also scheduling a later one (e.g. stashing a
// windowed delete-event at t+W per spec.md §4.6).
func (c Capability[T]) Delayed(t T) Capability[T] {
	return NewCapability(c.tracker, t)
}
