package probetimer

import (
	"sync/atomic"
	"time"
)

// Clock is the source of timestamps for probes.
type Clock interface {
	Now() Timestamp
}

// Now reads c, or returns a zero timestamp if c is nil. Instrumentation that
// fires before a clock exists keeps running with zero durations.
func Now(c Clock) Timestamp {
	if c == nil {
		return Zero()
	}
	return c.Now()
}

// MonotonicClock reads the runtime's monotonic clock relative to the moment
// it was created.
type MonotonicClock struct {
	epoch time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{epoch: time.Now()}
}

func (c *MonotonicClock) Now() Timestamp {
	return Timestamp(time.Since(c.epoch))
}

// ManualClock returns whatever it was last set to. Trace replay drives it
// from recorded event timestamps.
type ManualClock struct {
	now atomic.Int64
}

func NewManualClock(start Timestamp) *ManualClock {
	c := &ManualClock{}
	c.now.Store(int64(start))
	return c
}

func (c *ManualClock) Now() Timestamp {
	return Timestamp(c.now.Load())
}

func (c *ManualClock) Set(t Timestamp) {
	c.now.Store(int64(t))
}

func (c *ManualClock) Advance(d Timestamp) Timestamp {
	return Timestamp(c.now.Add(int64(d)))
}
