package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/getsentry/probetools/internal/probeid"
	"github.com/getsentry/probetools/internal/snapshot"
	"github.com/getsentry/probetools/internal/timeutil"
)

type (
	// Report is the persisted form of a snapshot. Times are in
	// milliseconds.
	Report struct {
		ID        string    `json:"report_id"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"created_at"`
		// RecordedAt is when the trace was captured, if the recorder said.
		RecordedAt  timeutil.Time `json:"recorded_at"`
		Probes      []Probe       `json:"probes"`
		Edges       []Edge        `json:"edges"`
		OOM         Measurement   `json:"oom"`
		LostLookups uint64        `json:"lost_lookups"`
	}

	Measurement struct {
		SelfTime               float64 `json:"self_time_ms"`
		ChildrenTime           float64 `json:"children_time_ms"`
		OverheadTime           float64 `json:"overhead_time_ms"`
		MaxTotalTime           float64 `json:"max_total_time_ms"`
		Count                  uint64  `json:"count"`
		RecursiveSelfTime      float64 `json:"recursive_self_time_ms,omitempty"`
		RecursionInitiatedTime float64 `json:"recursion_initiated_time_ms,omitempty"`
		RecursiveCount         uint64  `json:"recursive_count,omitempty"`
	}

	Probe struct {
		probeid.ProbeIdentifier
		Name  string `json:"name"`
		Level int    `json:"level"`
		// Totals sums every invocation of the probe across its callers.
		Totals Measurement `json:"totals"`
	}

	Edge struct {
		// Fingerprint is stable across processes and can be used to match
		// the same edge in different reports.
		Fingerprint string                  `json:"fingerprint"`
		Parent      probeid.ProbeIdentifier `json:"parent"`
		Child       probeid.ProbeIdentifier `json:"child"`
		ParentName  string                  `json:"parent_name"`
		Name        string                  `json:"name"`
		Measurement Measurement             `json:"measurement"`
	}
)

func New(id, name string, s *snapshot.Snapshot) Report {
	r := Report{
		ID:          id,
		Name:        name,
		CreatedAt:   s.CreatedAt,
		Probes:      make([]Probe, 0, len(s.Probes())),
		Edges:       make([]Edge, 0, len(s.Edges())),
		OOM:         newMeasurement(s.OOM()),
		LostLookups: s.LostLookups,
	}
	for _, p := range s.Probes() {
		if p.ID.IsRoot() {
			continue
		}
		r.Probes = append(r.Probes, Probe{
			ProbeIdentifier: p.ID,
			Name:            p.Name,
			Level:           p.Level,
			Totals:          newMeasurement(p.Totals()),
		})
	}
	sort.SliceStable(r.Probes, func(i, j int) bool {
		return r.Probes[i].Totals.SelfTime > r.Probes[j].Totals.SelfTime
	})
	for _, e := range s.Edges() {
		r.Edges = append(r.Edges, Edge{
			Fingerprint: fmt.Sprintf("%016x", e.ID.Fingerprint()),
			Parent:      e.Parent.ID,
			Child:       e.Child.ID,
			ParentName:  e.Measurement.ParentName,
			Name:        e.Measurement.Name,
			Measurement: newMeasurement(e.Measurement),
		})
	}
	return r
}

func newMeasurement(m snapshot.Measurement) Measurement {
	return Measurement{
		SelfTime:               m.SelfTime.Milliseconds(),
		ChildrenTime:           m.ChildrenTime.Milliseconds(),
		OverheadTime:           m.OverheadTime.Milliseconds(),
		MaxTotalTime:           m.MaxTotalTime.Milliseconds(),
		Count:                  m.TotalCount,
		RecursiveSelfTime:      m.RecursiveSelfTime.Milliseconds(),
		RecursionInitiatedTime: m.RecursionInitiatedTime.Milliseconds(),
		RecursiveCount:         m.RecursiveCount,
	}
}

func StoragePath(reportID string) string {
	return fmt.Sprintf("reports/%s", strings.ReplaceAll(reportID, "-", ""))
}

func (r Report) StoragePath() string {
	return StoragePath(r.ID)
}
