package session

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/getsentry/probetools/internal/probe"
	"github.com/getsentry/probetools/internal/probegraph"
	"github.com/getsentry/probetools/internal/probeid"
	"github.com/getsentry/probetools/internal/probetimer"
	"github.com/getsentry/probetools/internal/snapshot"
)

var ErrNotStarted = errors.New("session: not started")

type (
	// Session owns the live graph and the call stack of one profiled
	// goroutine between Start and Stop.
	//
	// Enter and End of the probes it hands out must run on a single
	// goroutine. Start and Stop run on that goroutine too, or while it is
	// not inside any probe. BuildSnapshot and Active are safe from any
	// goroutine.
	Session struct {
		cfg    Config
		clock  probetimer.Clock
		logger zerolog.Logger

		live atomic.Pointer[liveState]
	}

	liveState struct {
		graph   *probegraph.Graph
		stack   *probe.CallStack
		started time.Time
	}
)

func New(cfg Config, clock probetimer.Clock, logger zerolog.Logger) *Session {
	if clock == nil {
		clock = probetimer.NewMonotonicClock()
	}
	return &Session{
		cfg:    cfg,
		clock:  clock,
		logger: logger,
	}
}

// Start begins recording into a fresh graph. A session that was already
// running is discarded.
func (s *Session) Start() {
	g := probegraph.New(s.cfg.graphOptions())
	st := &liveState{
		graph:   g,
		stack:   probe.NewCallStack(g, s.clock),
		started: time.Now(),
	}
	if old := s.live.Swap(st); old != nil {
		_, _ = s.finish(old, s.logger.Warn(), "profiling session restarted, discarding previous graph")
	}
	s.logger.Debug().Msg("profiling session started")
}

// Stop ends the session and returns its final snapshot. Probes still active
// when Stop is called end as no-ops.
func (s *Session) Stop() (*snapshot.Snapshot, error) {
	st := s.live.Swap(nil)
	if st == nil {
		return nil, ErrNotStarted
	}
	return s.finish(st, s.logger.Info(), "profiling session stopped")
}

// finish flushes and closes the call stack of st, then builds its final
// snapshot and logs a summary of it with event.
func (s *Session) finish(st *liveState, event *zerolog.Event, msg string) (*snapshot.Snapshot, error) {
	if depth := st.stack.Depth(); depth > 0 {
		s.logger.Warn().Int("depth", depth).Msg("profiling session ended with active probes")
	}
	st.stack.Flush()
	st.stack.Close()

	snap, err := snapshot.Build(st.graph, snapshot.BuildOptions{MaxEdges: s.cfg.MaxSnapshotEdges})
	if err != nil {
		event.Discard()
		s.logger.Error().Err(err).Msg("can't build final snapshot")
		return nil, err
	}
	overhead := snap.OOM().OverheadTime
	for _, e := range snap.Edges() {
		overhead += e.Measurement.OverheadTime
	}
	event = event.
		Int("edges", len(snap.Edges())).
		Int("probes", len(snap.Probes())).
		Dur("overhead", overhead.Duration()).
		Dur("duration", time.Since(st.started))
	if snap.LostLookups > 0 {
		event = event.Uint64("lost_lookups", snap.LostLookups)
	}
	event.Msg(msg)
	return snap, nil
}

// BuildSnapshot copies the live graph without stopping the session.
func (s *Session) BuildSnapshot() (*snapshot.Snapshot, error) {
	st := s.live.Load()
	if st == nil {
		return nil, ErrNotStarted
	}
	return snapshot.Build(st.graph, snapshot.BuildOptions{MaxEdges: s.cfg.MaxSnapshotEdges})
}

func (s *Session) Active() bool {
	return s.live.Load() != nil
}

// Enter starts a probe at location, which must be a static constant of the
// instrumented program: an invalid location panics. When no session is
// running the returned probe is inert.
func (s *Session) Enter(location uint32, param int32, name string) *probe.Probe {
	id := probeid.New(location, param)
	if err := id.Validate(); err != nil {
		panic(err)
	}
	st := s.live.Load()
	if st == nil {
		return probe.Null()
	}
	p := st.stack.Enter(id, name, probetimer.Now(s.clock))
	p.Start(probetimer.Now(s.clock))
	return p
}
