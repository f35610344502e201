package probe

import (
	"github.com/getsentry/probetools/internal/probeid"
	"github.com/getsentry/probetools/internal/probetimer"
)

// State is the lifecycle position of a probe.
type State int

const (
	StateNull State = iota
	StateConstructing
	StateActive
	StateDestructing
	StateDead
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateConstructing:
		return "constructing"
	case StateActive:
		return "active"
	case StateDestructing:
		return "destructing"
	case StateDead:
		return "dead"
	}
	return "unknown"
}

func (s State) live() bool {
	switch s {
	case StateConstructing, StateActive, StateDestructing:
		return true
	case StateNull, StateDead:
		return false
	}
	return false
}

// Probe is one active instrumented region. It is created by CallStack.Enter
// and must be ended, in LIFO order, with End:
//
//	p := s.Enter(locLayout, 0, "layout")
//	defer p.End()
type Probe struct {
	stack  *CallStack
	id     probeid.ProbeIdentifier
	edgeID probeid.EdgeIdentifier
	depth  int
	state  State

	preambleStart  probetimer.Timestamp
	preambleStop   probetimer.Timestamp
	postambleStart probetimer.Timestamp

	// Contributions rolled up from this probe's children as they end.
	accChildrenTotal              probetimer.Timestamp
	accChildrenOverhead           probetimer.Timestamp
	accRecursiveSelf              probetimer.Timestamp
	accRecursiveChildCompensation probetimer.Timestamp
}

var null = &Probe{state: StateNull}

// Null returns the inert probe handed out when no session is running. It
// measures nothing and ending it does nothing.
func Null() *Probe {
	return null
}

func (p *Probe) ID() probeid.ProbeIdentifier {
	return p.id
}

func (p *Probe) EdgeID() probeid.EdgeIdentifier {
	return p.edgeID
}

func (p *Probe) State() State {
	return p.state
}

func (p *Probe) Depth() int {
	return p.depth
}

// Start marks the beginning of the measured region. Everything between the
// preamble start passed to Enter and preambleStop is instrumentation
// overhead.
func (p *Probe) Start(preambleStop probetimer.Timestamp) {
	if p.state != StateConstructing {
		return
	}
	p.preambleStop = preambleStop
	p.state = StateActive
}

// End closes the measured region and commits it to the graph.
func (p *Probe) End() {
	switch p.state {
	case StateNull, StateDead, StateDestructing:
		return
	case StateConstructing:
		p.preambleStop = p.preambleStart
	case StateActive:
	}

	cs := p.stack
	postambleStart := probetimer.Now(cs.clock)
	if cs.closed.Load() {
		p.kill()
		return
	}
	if top := cs.Top(); top != p {
		panic(&StackDisciplineError{Ending: p.id, Top: top.id, Depth: p.depth})
	}
	p.state = StateDestructing
	p.postambleStart = postambleStart

	parent := cs.frames[p.depth-1]
	preambleOverhead := p.preambleStop.Sub(p.preambleStart)

	cs.graph.Lock()
	cs.applyPending()
	edge := cs.graph.FindEdge(p.edgeID)
	edge.AddOverhead(preambleOverhead)

	total := postambleStart.Sub(p.preambleStop).Sub(p.accChildrenOverhead)
	self := total.Sub(p.accChildrenTotal)
	if ancestor := cs.recursiveAncestor(p); ancestor != nil {
		ancestor.accRecursiveSelf += self + p.accRecursiveSelf
		p.accRecursiveSelf = 0
		ancestor.accRecursiveChildCompensation += total
		edge.CountRecursiveEdge(self)
	}
	edge.CountEdge(total, self, p.accRecursiveSelf, p.accRecursiveChildCompensation)
	cs.graph.Unlock()

	parent.accChildrenTotal += total
	parent.accChildrenOverhead += preambleOverhead + p.accChildrenOverhead

	cs.pop(p)
	p.kill()

	cs.pending = pendingCharge{
		set:    true,
		edge:   edge,
		parent: parent,
		start:  postambleStart,
	}
	// The tail is closed here rather than by the next hook, so whatever the
	// parent does before that hook stays its own self time.
	cs.pending.end = probetimer.Now(cs.clock)
}

func (p *Probe) kill() {
	p.state = StateDead
	p.id = probeid.Dead
	p.stack = nil
}
