package probetimer

import (
	"testing"
	"time"
)

func TestTimestampArithmetic(t *testing.T) {
	tests := []struct {
		name string
		a    Timestamp
		b    Timestamp
	}{
		{name: "increasing", a: FromMilliseconds(10), b: FromMilliseconds(25)},
		{name: "decreasing", a: FromMilliseconds(25), b: FromMilliseconds(10)},
		{name: "equal", a: 42, b: 42},
		{name: "from zero", a: Zero(), b: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Add(tt.b.Sub(tt.a)); got != tt.b {
				t.Fatalf("a + (b - a) = %v, want %v", got, tt.b)
			}
			if tt.a.Before(tt.b) != (tt.b.After(tt.a)) {
				t.Fatalf("Before and After disagree for %v, %v", tt.a, tt.b)
			}
		})
	}
}

func TestTimestampMilliseconds(t *testing.T) {
	ts := FromDuration(1500 * time.Microsecond)
	if got := ts.Milliseconds(); got != 1.5 {
		t.Fatalf("got %v, want 1.5", got)
	}
	if !Zero().IsZero() {
		t.Fatal("zero timestamp should be zero")
	}
}

func TestNowWithoutClock(t *testing.T) {
	if got := Now(nil); !got.IsZero() {
		t.Fatalf("got %v, want zero", got)
	}
}

func TestMonotonicClockDoesNotGoBackwards(t *testing.T) {
	c := NewMonotonicClock()
	prev := c.Now()
	for i := 0; i < 1000; i++ {
		now := c.Now()
		if now.Before(prev) {
			t.Fatalf("clock went backwards: %v after %v", now, prev)
		}
		prev = now
	}
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(FromMilliseconds(5))
	if got := c.Now(); got != FromMilliseconds(5) {
		t.Fatalf("got %v, want 5ms", got)
	}
	c.Set(FromMilliseconds(20))
	if got := c.Advance(FromMilliseconds(3)); got != FromMilliseconds(23) {
		t.Fatalf("got %v, want 23ms", got)
	}
}
