package session

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/getsentry/probetools/internal/probe"
	"github.com/getsentry/probetools/internal/probeid"
	"github.com/getsentry/probetools/internal/probetimer"
	"github.com/getsentry/probetools/internal/snapshot"
	"github.com/getsentry/probetools/internal/testutil"
)

const (
	locLayout uint32 = iota + 1
	locPaint
)

func ms(v int64) probetimer.Timestamp {
	return probetimer.FromMilliseconds(v)
}

// stepClock advances by step on every read.
type stepClock struct {
	clock *probetimer.ManualClock
	step  probetimer.Timestamp
}

func (c stepClock) Now() probetimer.Timestamp {
	return c.clock.Advance(c.step) - c.step
}

func TestEnterWithoutSessionIsInert(t *testing.T) {
	s := New(DefaultConfig(), probetimer.NewManualClock(0), zerolog.Nop())

	p := s.Enter(locLayout, 0, "layout")
	if p != probe.Null() {
		t.Fatal("expected the null probe")
	}
	p.End()

	if _, err := s.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("got %v, want ErrNotStarted", err)
	}
	if _, err := s.BuildSnapshot(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("got %v, want ErrNotStarted", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	clock := probetimer.NewManualClock(0)
	s := New(DefaultConfig(), clock, zerolog.Nop())
	s.Start()
	if !s.Active() {
		t.Fatal("session should be active")
	}

	layout := s.Enter(locLayout, 0, "layout")
	clock.Set(ms(5))
	paint := s.Enter(locPaint, 0, "paint")
	clock.Set(ms(12))
	paint.End()
	clock.Set(ms(20))
	layout.End()

	snap, err := s.Stop()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Active() {
		t.Fatal("session should be stopped")
	}

	type row struct {
		Name     string
		Parent   string
		Self     probetimer.Timestamp
		Children probetimer.Timestamp
	}
	var got []row
	for _, e := range snap.Edges() {
		got = append(got, row{e.Measurement.Name, e.Measurement.ParentName, e.Measurement.SelfTime, e.Measurement.ChildrenTime})
	}
	want := []row{
		{"paint", "layout", ms(7), 0},
		{"layout", "<root>", ms(13), ms(7)},
	}
	if diff := testutil.Diff(got, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	if p := s.Enter(locLayout, 0, "layout"); p != probe.Null() {
		t.Fatal("stopped session should hand out the null probe")
	}
}

func TestStopFlushesPendingCharge(t *testing.T) {
	clock := stepClock{clock: probetimer.NewManualClock(0), step: ms(1)}
	s := New(DefaultConfig(), clock, zerolog.Nop())
	s.Start()

	s.Enter(locLayout, 0, "layout").End()

	snap, err := s.Stop()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := snap.Edges()[0].Measurement
	if m.SelfTime != ms(1) || m.OverheadTime != ms(2) {
		t.Fatalf("got self %v and overhead %v, want 1ms and 2ms", m.SelfTime, m.OverheadTime)
	}
}

func TestStopWithActiveProbes(t *testing.T) {
	clock := probetimer.NewManualClock(0)
	s := New(DefaultConfig(), clock, zerolog.Nop())
	s.Start()

	outer := s.Enter(locLayout, 0, "layout")
	clock.Set(ms(3))
	s.Enter(locPaint, 0, "paint").End()

	snap, err := s.Stop()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	outer.End()

	if len(snap.Edges()) != 1 {
		t.Fatalf("got %d edges, want 1", len(snap.Edges()))
	}
	if outer.State() != probe.StateDead {
		t.Fatalf("got %v, want dead", outer.State())
	}
}

func TestRestartDiscardsPreviousGraph(t *testing.T) {
	s := New(DefaultConfig(), probetimer.NewManualClock(0), zerolog.Nop())
	s.Start()
	s.Enter(locLayout, 0, "layout").End()
	s.Start()
	s.Enter(locPaint, 0, "paint").End()

	snap, err := s.Stop()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Edges()) != 1 || snap.Edges()[0].Measurement.Name != "paint" {
		t.Fatalf("unexpected edges %+v", snap.Edges())
	}
}

func TestRestartFlushesPreviousSession(t *testing.T) {
	var buf bytes.Buffer
	clock := stepClock{clock: probetimer.NewManualClock(0), step: ms(1)}
	s := New(DefaultConfig(), clock, zerolog.New(&buf))
	s.Start()
	s.Enter(locLayout, 0, "layout").End()
	s.Start()

	var restarted string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "profiling session restarted") {
			restarted = line
		}
	}
	if restarted == "" {
		t.Fatalf("restart was not logged: %s", buf.String())
	}
	// One millisecond of preamble plus the one millisecond exit path that is
	// only charged by the flush.
	for _, field := range []string{`"level":"warn"`, `"edges":1`, `"overhead":2`} {
		if !strings.Contains(restarted, field) {
			t.Fatalf("missing %s in %s", field, restarted)
		}
	}
}

func TestBuildSnapshotIsIdempotent(t *testing.T) {
	clock := probetimer.NewManualClock(0)
	s := New(DefaultConfig(), clock, zerolog.Nop())
	s.Start()
	for i := int32(0); i < 3; i++ {
		p := s.Enter(locLayout, i, "layout")
		clock.Advance(ms(2))
		p.End()
	}

	first, err := s.BuildSnapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.BuildSnapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	measurements := func(snap *snapshot.Snapshot) []snapshot.Measurement {
		var m []snapshot.Measurement
		for _, e := range snap.Edges() {
			m = append(m, e.Measurement)
		}
		return m
	}
	if diff := testutil.Diff(measurements(first), measurements(second)); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
	if len(first.Edges()) != 3 {
		t.Fatalf("got %d edges, want one per index parameter", len(first.Edges()))
	}
}

func TestBuildSnapshotWhileInstrumenting(t *testing.T) {
	s := New(DefaultConfig(), probetimer.NewMonotonicClock(), zerolog.Nop())
	s.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			outer := s.Enter(locLayout, int32(i%16), "layout")
			s.Enter(locPaint, 0, "paint").End()
			outer.End()
		}
	}()
	for i := 0; i < 50; i++ {
		if _, err := s.BuildSnapshot(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	wg.Wait()

	snap, err := s.Stop()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var count uint64
	for _, e := range snap.Edges() {
		if e.Measurement.Name == "paint" {
			count += e.Measurement.TotalCount
		}
	}
	if count != 1000 {
		t.Fatalf("got %d paint invocations, want 1000", count)
	}
}

func TestSnapshotTooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSnapshotEdges = 1
	s := New(cfg, probetimer.NewManualClock(0), zerolog.Nop())
	s.Start()
	s.Enter(locLayout, 1, "layout").End()
	s.Enter(locLayout, 2, "layout").End()

	if _, err := s.BuildSnapshot(); !errors.Is(err, snapshot.ErrSnapshotTooLarge) {
		t.Fatalf("got %v, want ErrSnapshotTooLarge", err)
	}
}

func TestEnterPanicsOnInvalidLocation(t *testing.T) {
	tests := []struct {
		name     string
		location uint32
	}{
		{"root", probeid.RootLocation},
		{"dead", probeid.DeadLocation},
		{"too large", 1 << 20},
	}
	s := New(DefaultConfig(), probetimer.NewManualClock(0), zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				err, _ := recover().(error)
				if !errors.Is(err, probeid.ErrLocationOutOfRange) {
					t.Fatalf("got %v, want ErrLocationOutOfRange", err)
				}
			}()
			s.Enter(tt.location, 0, tt.name)
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := testutil.Diff(cfg, DefaultConfig()); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}
