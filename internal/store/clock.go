package store

import "sync/atomic"

// Clock is a monotonic logical clock stamping modifications and visits.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClockAt creates a clock whose next value is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last returned sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
