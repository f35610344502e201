package snapshot

import (
	"time"

	"github.com/getsentry/probetools/internal/probeid"
	"github.com/getsentry/probetools/internal/probetimer"
)

type (
	// Measurement is the flattened aggregate of one edge at the time the
	// snapshot was built, labeled with the names of both ends.
	Measurement struct {
		Name       string `json:"name"`
		ParentName string `json:"parent_name"`
		Level      int    `json:"level"`

		SelfTime     probetimer.Timestamp `json:"self_time"`
		ChildrenTime probetimer.Timestamp `json:"children_time"`
		OverheadTime probetimer.Timestamp `json:"overhead_time"`
		MaxTotalTime probetimer.Timestamp `json:"max_total_time"`
		TotalCount   uint64               `json:"total_count"`

		RecursiveSelfTime      probetimer.Timestamp `json:"recursive_self_time"`
		RecursionInitiatedTime probetimer.Timestamp `json:"recursion_initiated_time"`
		RecursiveCount         uint64               `json:"recursive_count"`
	}

	Probe struct {
		ID    probeid.ProbeIdentifier
		Level int
		Name  string

		Incoming []*Edge
		Outgoing []*Edge
	}

	Edge struct {
		ID          probeid.EdgeIdentifier
		Parent      *Probe
		Child       *Probe
		Measurement Measurement
	}

	// Snapshot is an immutable copy of a probe graph. It shares no memory
	// with the graph it was built from.
	Snapshot struct {
		CreatedAt time.Time
		// LostLookups is the number of edge lookups the graph could not
		// satisfy and routed to the OOM measurement.
		LostLookups uint64

		probes []*Probe
		index  map[probeid.ProbeIdentifier]*Probe
		edges  []*Edge
		oom    Measurement
	}
)

func (m Measurement) TotalTime() probetimer.Timestamp {
	return m.SelfTime + m.ChildrenTime
}

// Add folds another measurement of the same probe into m.
func (m *Measurement) Add(o Measurement) {
	m.SelfTime += o.SelfTime
	m.ChildrenTime += o.ChildrenTime
	m.OverheadTime += o.OverheadTime
	m.TotalCount += o.TotalCount
	m.RecursiveSelfTime += o.RecursiveSelfTime
	m.RecursionInitiatedTime += o.RecursionInitiatedTime
	m.RecursiveCount += o.RecursiveCount
	if o.MaxTotalTime > m.MaxTotalTime {
		m.MaxTotalTime = o.MaxTotalTime
	}
}

// Totals sums the incoming edges of a probe, which is every invocation of
// it regardless of caller.
func (p *Probe) Totals() Measurement {
	m := Measurement{Name: p.Name, Level: p.Level}
	for _, e := range p.Incoming {
		m.Add(e.Measurement)
	}
	return m
}

// Probes returns the probes in order of first appearance.
func (s *Snapshot) Probes() []*Probe {
	return s.probes
}

// Edges returns the edges in the order the graph created them.
func (s *Snapshot) Edges() []*Edge {
	return s.edges
}

func (s *Snapshot) Probe(id probeid.ProbeIdentifier) (*Probe, bool) {
	p, ok := s.index[id]
	return p, ok
}

// OOM is the measurement of everything the graph could not attribute to a
// real edge.
func (s *Snapshot) OOM() Measurement {
	return s.oom
}
