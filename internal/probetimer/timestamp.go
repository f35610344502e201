package probetimer

import (
	"time"
)

// Timestamp is a monotonic point in time or an elapsed duration, expressed in
// nanoseconds since the epoch of the Clock that produced it. Points and
// durations share the type so that `a.Add(b.Sub(a)) == b` holds exactly.
type Timestamp int64

// Zero returns the additive identity.
func Zero() Timestamp {
	return 0
}

// FromDuration converts a duration into a Timestamp.
func FromDuration(d time.Duration) Timestamp {
	return Timestamp(d)
}

// FromMilliseconds converts a millisecond count into a Timestamp.
func FromMilliseconds(ms int64) Timestamp {
	return Timestamp(ms * int64(time.Millisecond))
}

func (t Timestamp) Add(o Timestamp) Timestamp {
	return t + o
}

func (t Timestamp) Sub(o Timestamp) Timestamp {
	return t - o
}

func (t Timestamp) Before(o Timestamp) bool {
	return t < o
}

func (t Timestamp) After(o Timestamp) bool {
	return t > o
}

func (t Timestamp) IsZero() bool {
	return t == 0
}

// Milliseconds returns the value as a floating-point millisecond count, the
// unit used by reports.
func (t Timestamp) Milliseconds() float64 {
	return float64(t) / float64(time.Millisecond)
}

func (t Timestamp) Duration() time.Duration {
	return time.Duration(t)
}

func (t Timestamp) String() string {
	return time.Duration(t).String()
}
