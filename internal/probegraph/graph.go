package probegraph

import (
	"sync"

	"github.com/getsentry/probetools/internal/probeid"
)

const (
	DefaultInitialSlots = 1427
	DefaultMaxEdges     = 1 << 16

	RootName = "<root>"
)

type (
	Options struct {
		// InitialSlots is the starting size of the edge table, rounded up to
		// a prime.
		InitialSlots int
		// MaxEdges bounds the number of distinct edges. Lookups that would
		// create more land in the OOM edge.
		MaxEdges int
	}

	// ProbeInfo is the static description of a probe location.
	ProbeInfo struct {
		Level         int
		Name          string
		Parameterized bool
	}

	// Graph is the live, mutable measurement store of a profiling session.
	Graph struct {
		mu sync.Mutex

		maxEdges int
		table    edgeTable
		edges    []*Edge
		cursor   int
		oom      Edge
		oomCount uint64

		probes []probeRow
	}

	probeRow struct {
		info ProbeInfo
		set  bool
	}
)

func DefaultOptions() Options {
	return Options{
		InitialSlots: DefaultInitialSlots,
		MaxEdges:     DefaultMaxEdges,
	}
}

func New(opts Options) *Graph {
	if opts.InitialSlots <= 0 {
		opts.InitialSlots = DefaultInitialSlots
	}
	if opts.MaxEdges < 0 {
		opts.MaxEdges = 0
	}
	g := &Graph{
		maxEdges: opts.MaxEdges,
		table:    newEdgeTable(opts.InitialSlots),
		probes:   make([]probeRow, 1, 64),
	}
	g.probes[probeid.RootLocation] = probeRow{info: ProbeInfo{Name: RootName}, set: true}
	return g
}

// Lock serializes mutation of edges with snapshot traversal. Callers that
// look up an edge and then count into it hold the lock for both steps.
func (g *Graph) Lock() {
	g.mu.Lock()
}

func (g *Graph) Unlock() {
	g.mu.Unlock()
}

// FindEdge returns the edge for id, creating it on first use. It never
// returns nil: when the capacity bound is reached the shared OOM edge
// absorbs the measurement.
func (g *Graph) FindEdge(id probeid.EdgeIdentifier) *Edge {
	e, slot := g.table.find(id)
	if e != nil {
		return e
	}
	if len(g.edges) >= g.maxEdges {
		g.oomCount++
		return &g.oom
	}
	e = &Edge{ID: id}
	g.edges = append(g.edges, e)
	g.table.insert(e, slot)
	return e
}

// FindNextEdge iterates the edges in creation order: pass nil to get the
// first one; nil is returned after the last or for an edge the graph does
// not own.
func (g *Graph) FindNextEdge(prev *Edge) *Edge {
	next := 0
	if prev != nil {
		i := g.indexOf(prev)
		if i < 0 {
			return nil
		}
		next = i + 1
	}
	if next >= len(g.edges) {
		return nil
	}
	g.cursor = next
	return g.edges[next]
}

// indexOf finds e in creation order. A full scan only happens when the
// caller did not pass the edge last returned by FindNextEdge.
func (g *Graph) indexOf(e *Edge) int {
	if g.cursor < len(g.edges) && g.edges[g.cursor] == e {
		return g.cursor
	}
	for i, c := range g.edges {
		if c == e {
			return i
		}
	}
	return -1
}

func (g *Graph) OOMEdge() *Edge {
	return &g.oom
}

// OOMCount is the number of lookups that were routed to the OOM edge.
func (g *Graph) OOMCount() uint64 {
	return g.oomCount
}

func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Slots is the current size of the edge table.
func (g *Graph) Slots() int {
	return len(g.table.slots)
}

// SetProbeInfo records the metadata of a location the first time it is seen.
func (g *Graph) SetProbeInfo(location uint32, info ProbeInfo) {
	if location > probeid.MaxLocation {
		return
	}
	if int(location) >= len(g.probes) {
		grown := make([]probeRow, location+1, 2*(location+1))
		copy(grown, g.probes)
		g.probes = grown
	}
	if !g.probes[location].set {
		g.probes[location] = probeRow{info: info, set: true}
	}
}

func (g *Graph) ProbeInfo(location uint32) ProbeInfo {
	if int(location) >= len(g.probes) {
		return ProbeInfo{}
	}
	return g.probes[location].info
}

// HasProbeInfo reports whether a probe at location has fired.
func (g *Graph) HasProbeInfo(location uint32) bool {
	return int(location) < len(g.probes) && g.probes[location].set
}
