package trace

import (
	"context"
	"fmt"
	"io"

	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/getsentry/probetools/internal/errorutil"
	"github.com/getsentry/probetools/internal/probe"
	"github.com/getsentry/probetools/internal/probeid"
	"github.com/getsentry/probetools/internal/probetimer"
	"github.com/getsentry/probetools/internal/session"
	"github.com/getsentry/probetools/internal/snapshot"
	"github.com/getsentry/probetools/internal/timeutil"
)

type Kind string

const (
	KindEnter Kind = "enter"
	KindExit  Kind = "exit"
)

type (
	// Event is one recorded probe hook. At is a monotonic timestamp in
	// nanoseconds.
	Event struct {
		Kind     Kind   `json:"kind"`
		At       int64  `json:"at"`
		Location uint32 `json:"location"`
		Param    int32  `json:"param,omitempty"`
		Name     string `json:"name,omitempty"`
	}

	// Trace is a recording of every probe hook of one profiled run.
	Trace struct {
		ID         string        `json:"id,omitempty"`
		Name       string        `json:"name"`
		RecordedAt timeutil.Time `json:"recorded_at"`
		Events     []Event       `json:"events"`
	}
)

func Decode(r io.Reader) (Trace, error) {
	var t Trace
	if err := gojson.NewDecoder(r).Decode(&t); err != nil {
		return Trace{}, fmt.Errorf("trace: %w: %s", errorutil.ErrDataIntegrity, err.Error())
	}
	return t, nil
}

// Validate checks that the events describe properly nested probes with
// non-decreasing timestamps.
func (t Trace) Validate() error {
	var open []probeid.ProbeIdentifier
	var last int64
	for i, e := range t.Events {
		id := probeid.New(e.Location, e.Param)
		if i > 0 && e.At < last {
			return t.integrityError(i, "timestamp %d is before %d", e.At, last)
		}
		last = e.At
		switch e.Kind {
		case KindEnter:
			if err := id.Validate(); err != nil {
				return t.integrityError(i, "%s", err.Error())
			}
			open = append(open, id)
		case KindExit:
			if len(open) == 0 {
				return t.integrityError(i, "exit of %v without a matching enter", id)
			}
			if top := open[len(open)-1]; !top.Equals(id) {
				return t.integrityError(i, "exit of %v while %v is the innermost probe", id, top)
			}
			open = open[:len(open)-1]
		default:
			return t.integrityError(i, "unknown event kind %q", e.Kind)
		}
	}
	if len(open) > 0 {
		return fmt.Errorf("trace: %w: %d probes never exited", errorutil.ErrDataIntegrity, len(open))
	}
	return nil
}

func (t Trace) integrityError(i int, format string, args ...interface{}) error {
	return fmt.Errorf("trace: %w: event %d: %s", errorutil.ErrDataIntegrity, i, fmt.Sprintf(format, args...))
}

// Replay feeds the trace through a new session whose clock follows the
// recorded timestamps and returns the final snapshot.
func Replay(ctx context.Context, t Trace, cfg session.Config, logger zerolog.Logger) (*snapshot.Snapshot, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	var start int64
	if len(t.Events) > 0 {
		start = t.Events[0].At
	}
	clock := probetimer.NewManualClock(probetimer.Timestamp(start))
	s := session.New(cfg, clock, logger.With().Str("trace", t.Name).Logger())
	s.Start()

	open := make([]*probe.Probe, 0, 32)
	for _, e := range t.Events {
		if err := ctx.Err(); err != nil {
			_, _ = s.Stop()
			return nil, err
		}
		clock.Set(probetimer.Timestamp(e.At))
		switch e.Kind {
		case KindEnter:
			open = append(open, s.Enter(e.Location, e.Param, e.Name))
		case KindExit:
			open[len(open)-1].End()
			open = open[:len(open)-1]
		}
	}
	return s.Stop()
}
