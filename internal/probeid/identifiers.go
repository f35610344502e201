package probeid

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zeebo/xxh3"
)

const (
	// RootLocation identifies the call-stack root and inert probes.
	RootLocation uint32 = 0
	// DeadLocation poisons the identifier of a probe that has ended.
	DeadLocation uint32 = 0xFFFF
	// MaxLocation is the largest location an instrumentation point may use.
	// Edge identifiers pack two locations into 16 bits each.
	MaxLocation uint32 = DeadLocation - 1
)

// ErrLocationOutOfRange is returned for locations that cannot be packed into
// an edge identifier or collide with the reserved ones.
var ErrLocationOutOfRange = errors.New("probe location out of range")

type (
	// ProbeIdentifier identifies one instrumentation point. Location is the
	// static call site, IndexParameter distinguishes dynamically
	// parameterized flavours of it.
	ProbeIdentifier struct {
		Location       uint32 `json:"location"`
		IndexParameter int32  `json:"index_parameter"`
	}

	// EdgeIdentifier identifies a parent -> child relation between two
	// probes.
	EdgeIdentifier struct {
		edgeLocation         uint32
		parentIndexParameter int32
		childIndexParameter  int32
	}
)

var (
	Root = ProbeIdentifier{Location: RootLocation}
	Dead = ProbeIdentifier{Location: DeadLocation}
)

func New(location uint32, indexParameter int32) ProbeIdentifier {
	return ProbeIdentifier{Location: location, IndexParameter: indexParameter}
}

// Validate checks that the location can be used by an instrumentation point.
func (p ProbeIdentifier) Validate() error {
	if p.Location == RootLocation || p.Location > MaxLocation {
		return fmt.Errorf("probeid: %w: %d", ErrLocationOutOfRange, p.Location)
	}
	return nil
}

func (p ProbeIdentifier) Equals(o ProbeIdentifier) bool {
	return p.Location == o.Location && p.IndexParameter == o.IndexParameter
}

func (p ProbeIdentifier) EqualsLocation(o ProbeIdentifier) bool {
	return p.Location == o.Location
}

func (p ProbeIdentifier) IsRoot() bool {
	return p.Location == RootLocation
}

func (p ProbeIdentifier) String() string {
	if p.IndexParameter == 0 {
		return fmt.Sprintf("%d", p.Location)
	}
	return fmt.Sprintf("%d[%d]", p.Location, p.IndexParameter)
}

func NewEdgeIdentifier(parent, child ProbeIdentifier) EdgeIdentifier {
	return EdgeIdentifier{
		edgeLocation:         (parent.Location&0xFFFF)<<16 | child.Location&0xFFFF,
		parentIndexParameter: parent.IndexParameter,
		childIndexParameter:  child.IndexParameter,
	}
}

func (e EdgeIdentifier) ParentLocation() uint32 {
	return e.edgeLocation >> 16
}

func (e EdgeIdentifier) ChildLocation() uint32 {
	return e.edgeLocation & 0xFFFF
}

func (e EdgeIdentifier) Parent() ProbeIdentifier {
	return ProbeIdentifier{Location: e.ParentLocation(), IndexParameter: e.parentIndexParameter}
}

func (e EdgeIdentifier) Child() ProbeIdentifier {
	return ProbeIdentifier{Location: e.ChildLocation(), IndexParameter: e.childIndexParameter}
}

func (e EdgeIdentifier) Equals(o EdgeIdentifier) bool {
	return e.edgeLocation == o.edgeLocation &&
		e.parentIndexParameter == o.parentIndexParameter &&
		e.childIndexParameter == o.childIndexParameter
}

// EqualsEdge compares only the packed location pair.
func (e EdgeIdentifier) EqualsEdge(o EdgeIdentifier) bool {
	return e.edgeLocation == o.edgeLocation
}

// Hash selects a slot in the edge table. It runs on every probe exit, so it
// only mixes the three fields with a couple of multiplications.
func (e EdgeIdentifier) Hash() uint32 {
	h := e.edgeLocation * 2654435761
	h ^= uint32(e.parentIndexParameter) * 40503
	h += uint32(e.childIndexParameter) * 2246822519
	return h ^ h>>15
}

// Fingerprint is a stable 64-bit key for the edge, independent of the table
// it lives in. Reports use it to match edges across snapshots.
func (e EdgeIdentifier) Fingerprint() uint64 {
	var b [12]byte
	binary.LittleEndian.PutUint32(b[0:], e.edgeLocation)
	binary.LittleEndian.PutUint32(b[4:], uint32(e.parentIndexParameter))
	binary.LittleEndian.PutUint32(b[8:], uint32(e.childIndexParameter))
	return xxh3.Hash(b[:])
}

func (e EdgeIdentifier) String() string {
	return e.Parent().String() + "->" + e.Child().String()
}
