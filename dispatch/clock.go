package dispatch

import "sync/atomic"

// Sequencer issues the sequence numbers that stamp posted messages. Clock is
// the production implementation; tests substitute their own through
// WithClock.
type Sequencer interface {
	// Next returns the next sequence number. Must be strictly increasing and
	// safe for concurrent use.
	Next() int64

	// Current returns the most recently issued sequence number.
	Current() int64
}

// Clock is the monotonic logical clock used to stamp messages as they are
// posted. Stamping happens on the producer side, so the sequence numbers of a
// drained batch reflect actual post order and give tests and the trace
// journal a total order to assert against.
//
// Safe for concurrent use; every Next call returns a unique increasing value.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start, for replaying a journaled
// session without renumbering its messages.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the most recently issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
