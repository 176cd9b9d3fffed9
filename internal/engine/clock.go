package engine

import "sync/atomic"

// Clock is the engine's logical clock. Every edit and every pass takes the
// next seq, so the log orders them without wall time and a replay that
// applies the same edits reproduces the same seqs.
//
// Safe for concurrent use, though only the engine loop calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose first Next returns start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new seq.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last seq handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
