package probe

import (
	"fmt"
	"sync/atomic"

	"github.com/getsentry/probetools/internal/probegraph"
	"github.com/getsentry/probetools/internal/probeid"
	"github.com/getsentry/probetools/internal/probetimer"
)

type (
	// CallStack is the per-goroutine instrumentation state: the chain of
	// active probes and the one destructor charge that has not been applied
	// yet. It is not safe for concurrent use; every probe of a stack has to
	// be entered and ended on the same goroutine.
	CallStack struct {
		graph  *probegraph.Graph
		clock  probetimer.Clock
		frames []*Probe
		root   Probe

		pending pendingCharge
		closed  atomic.Bool
	}

	// pendingCharge is the exit-path overhead of the last probe that ended,
	// applied by the next hook that runs on the stack.
	pendingCharge struct {
		set    bool
		edge   *probegraph.Edge
		parent *Probe
		start  probetimer.Timestamp
		end    probetimer.Timestamp
	}

	// StackDisciplineError reports a probe ended while another probe was
	// still active above it.
	StackDisciplineError struct {
		Ending probeid.ProbeIdentifier
		Top    probeid.ProbeIdentifier
		Depth  int
	}
)

func (e *StackDisciplineError) Error() string {
	return fmt.Sprintf("probe: %v ended at depth %d while %v is still active", e.Ending, e.Depth, e.Top)
}

func NewCallStack(g *probegraph.Graph, clock probetimer.Clock) *CallStack {
	cs := &CallStack{
		graph:  g,
		clock:  clock,
		frames: make([]*Probe, 1, 32),
	}
	cs.root = Probe{id: probeid.Root, state: StateActive}
	cs.frames[0] = &cs.root
	return cs
}

// Enter pushes a probe for id. preambleStart must be read before Enter is
// called so that the cost of constructing the probe is part of its preamble
// overhead. The caller marks the start of the measured region with
// Probe.Start.
func (cs *CallStack) Enter(id probeid.ProbeIdentifier, name string, preambleStart probetimer.Timestamp) *Probe {
	if cs == nil || cs.closed.Load() {
		return Null()
	}
	if cs.pending.set {
		cs.graph.Lock()
		cs.applyPending()
		cs.graph.Unlock()
	}

	parent := cs.Top()
	p := &Probe{
		stack:         cs,
		id:            id,
		edgeID:        probeid.NewEdgeIdentifier(parent.id, id),
		depth:         len(cs.frames),
		state:         StateConstructing,
		preambleStart: preambleStart,
	}
	cs.frames = append(cs.frames, p)

	if !cs.graph.HasProbeInfo(id.Location) {
		cs.graph.Lock()
		cs.graph.SetProbeInfo(id.Location, probegraph.ProbeInfo{
			Level:         p.depth,
			Name:          name,
			Parameterized: id.IndexParameter != 0,
		})
		cs.graph.Unlock()
	}
	return p
}

// Top is the innermost active probe, or the root probe when idle.
func (cs *CallStack) Top() *Probe {
	return cs.frames[len(cs.frames)-1]
}

// Depth is the number of active probes, the root excluded.
func (cs *CallStack) Depth() int {
	return len(cs.frames) - 1
}

func (cs *CallStack) Idle() bool {
	return len(cs.frames) == 1
}

// Flush applies the pending charge of the last probe that ended. The last
// probe of a session has no successor to do it.
func (cs *CallStack) Flush() {
	if !cs.pending.set {
		return
	}
	cs.graph.Lock()
	cs.applyPending()
	cs.graph.Unlock()
}

// Close detaches the stack from its graph. Probes still active on it end as
// no-ops and new probes are inert.
func (cs *CallStack) Close() {
	cs.closed.Store(true)
}

func (cs *CallStack) Closed() bool {
	return cs.closed.Load()
}

// applyPending charges the previous probe's exit path to its edge and to its
// parent. The graph lock must be held.
func (cs *CallStack) applyPending() {
	if !cs.pending.set {
		return
	}
	charge := cs.pending.end.Sub(cs.pending.start)
	cs.pending.edge.AddOverhead(charge)
	if parent := cs.pending.parent; parent != nil && parent.state.live() {
		parent.accChildrenOverhead += charge
	}
	cs.pending = pendingCharge{}
}

// recursiveAncestor finds the nearest active probe below p with exactly the
// same identifier.
func (cs *CallStack) recursiveAncestor(p *Probe) *Probe {
	for i := p.depth - 1; i > 0; i-- {
		if cs.frames[i].id.Equals(p.id) {
			return cs.frames[i]
		}
	}
	return nil
}

func (cs *CallStack) pop(p *Probe) *Probe {
	cs.frames[p.depth] = nil
	cs.frames = cs.frames[:p.depth]
	return cs.Top()
}
