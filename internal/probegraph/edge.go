package probegraph

import (
	"github.com/getsentry/probetools/internal/probeid"
	"github.com/getsentry/probetools/internal/probetimer"
)

// Edge aggregates every invocation of one parent -> child relation.
type Edge struct {
	ID probeid.EdgeIdentifier

	SelfTime     probetimer.Timestamp
	ChildrenTime probetimer.Timestamp
	OverheadTime probetimer.Timestamp
	MaxTotalTime probetimer.Timestamp
	TotalCount   uint64

	RecursiveSelfTime      probetimer.Timestamp
	RecursionInitiatedTime probetimer.Timestamp
	RecursiveCount         uint64
}

// CountEdge folds one invocation into the aggregate. recursiveChildComp is
// the total time of recursive invocations nested below this one, which is
// already part of total and must not show up as children time.
func (e *Edge) CountEdge(total, self, recursiveSelf, recursiveChildComp probetimer.Timestamp) {
	e.TotalCount++
	e.SelfTime += self
	e.ChildrenTime += total - self - recursiveChildComp
	e.RecursiveSelfTime += recursiveSelf
	if total > e.MaxTotalTime {
		e.MaxTotalTime = total
	}
}

// CountRecursiveEdge records that an invocation handed its self time to a
// recursive ancestor.
func (e *Edge) CountRecursiveEdge(self probetimer.Timestamp) {
	e.RecursiveCount++
	e.RecursionInitiatedTime += self
}

func (e *Edge) AddOverhead(d probetimer.Timestamp) {
	e.OverheadTime += d
}

// TotalTime is the aggregated time of the edge, overhead excluded.
func (e *Edge) TotalTime() probetimer.Timestamp {
	return e.SelfTime + e.ChildrenTime
}
