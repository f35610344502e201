package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/probetools/internal/probegraph"
	"github.com/getsentry/probetools/internal/probeid"
)

const OOMName = "<oom>"

var ErrSnapshotTooLarge = errors.New("snapshot: too many edges")

type BuildOptions struct {
	// MaxEdges bounds the size of the snapshot, 0 means unlimited.
	MaxEdges int
}

// Build copies the current state of g. The graph lock is held for the
// duration of the copy so instrumentation running on another goroutine
// blocks on its next commit instead of tearing the snapshot.
func Build(g *probegraph.Graph, opts BuildOptions) (*Snapshot, error) {
	g.Lock()
	defer g.Unlock()

	if opts.MaxEdges > 0 && g.EdgeCount() > opts.MaxEdges {
		return nil, fmt.Errorf("%w: %d edges, limit is %d", ErrSnapshotTooLarge, g.EdgeCount(), opts.MaxEdges)
	}

	s := &Snapshot{
		CreatedAt:   time.Now().UTC(),
		LostLookups: g.OOMCount(),
		index:       make(map[probeid.ProbeIdentifier]*Probe),
		edges:       make([]*Edge, 0, g.EdgeCount()),
	}
	for e := g.FindNextEdge(nil); e != nil; e = g.FindNextEdge(e) {
		parent := s.probe(e.ID.Parent())
		child := s.probe(e.ID.Child())
		se := &Edge{
			ID:          e.ID,
			Parent:      parent,
			Child:       child,
			Measurement: measurement(e),
		}
		parent.Outgoing = append(parent.Outgoing, se)
		child.Incoming = append(child.Incoming, se)
		s.edges = append(s.edges, se)
	}

	for _, p := range s.probes {
		info := g.ProbeInfo(p.ID.Location)
		p.Level = info.Level
		p.Name = info.Name
	}
	for _, e := range s.edges {
		e.Measurement.Name = e.Child.Name
		e.Measurement.ParentName = e.Parent.Name
		e.Measurement.Level = e.Child.Level
	}

	s.oom = measurement(g.OOMEdge())
	s.oom.Name = OOMName
	return s, nil
}

func (s *Snapshot) probe(id probeid.ProbeIdentifier) *Probe {
	if p, exists := s.index[id]; exists {
		return p
	}
	p := &Probe{ID: id}
	s.index[id] = p
	s.probes = append(s.probes, p)
	return p
}

func measurement(e *probegraph.Edge) Measurement {
	return Measurement{
		SelfTime:               e.SelfTime,
		ChildrenTime:           e.ChildrenTime,
		OverheadTime:           e.OverheadTime,
		MaxTotalTime:           e.MaxTotalTime,
		TotalCount:             e.TotalCount,
		RecursiveSelfTime:      e.RecursiveSelfTime,
		RecursionInitiatedTime: e.RecursionInitiatedTime,
		RecursiveCount:         e.RecursiveCount,
	}
}
