package probegraph

import (
	"github.com/getsentry/probetools/internal/probeid"
)

// edgeTable is an open-addressing hash table with linear probing. Slots hold
// pointers, so growing the table never moves an Edge.
type edgeTable struct {
	slots []*Edge
	count int
}

func newEdgeTable(size int) edgeTable {
	return edgeTable{slots: make([]*Edge, nextPrime(size))}
}

func (t *edgeTable) find(id probeid.EdgeIdentifier) (*Edge, int) {
	n := len(t.slots)
	i := int(id.Hash() % uint32(n))
	for {
		e := t.slots[i]
		if e == nil {
			return nil, i
		}
		if e.ID.Equals(id) {
			return e, i
		}
		i++
		if i == n {
			i = 0
		}
	}
}

// insert places e in the free slot i returned by find. The table grows once
// it is more than half full.
func (t *edgeTable) insert(e *Edge, i int) {
	t.slots[i] = e
	t.count++
	if t.count*2 > len(t.slots) {
		t.grow()
	}
}

func (t *edgeTable) grow() {
	old := t.slots
	t.slots = make([]*Edge, nextPrime(2*len(old)+1))
	for _, e := range old {
		if e == nil {
			continue
		}
		_, i := t.find(e.ID)
		t.slots[i] = e
	}
}

func nextPrime(n int) int {
	if n < 3 {
		return 3
	}
	if n%2 == 0 {
		n++
	}
	for !isPrime(n) {
		n += 2
	}
	return n
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := 3; d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}
