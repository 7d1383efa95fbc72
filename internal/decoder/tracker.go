package decoder

import (
	"fmt"
	"strings"
)

// MultiplicityTracker assigns array indexes to table rows.
//
// For every table it remembers the id tuples seen within the current parent
// occurrence. A repeated tuple keeps its index; a new parent starts over at 0.
type MultiplicityTracker struct {
	tables map[int]*multiplicity
}

type multiplicity struct {
	parent  string
	seen    map[string]int
	current int
}

// NewMultiplicityTracker creates an empty tracker.
func NewMultiplicityTracker() *MultiplicityTracker {
	return &MultiplicityTracker{tables: make(map[int]*multiplicity)}
}

// Track records the id tuple ids of table below the parent tuple and returns
// its 0-based index.
func (t *MultiplicityTracker) Track(table int, parent, ids []any) int {
	pk, k := TupleKey(parent), TupleKey(ids)

	m, ok := t.tables[table]
	if !ok || m.parent != pk {
		m = &multiplicity{parent: pk, seen: make(map[string]int)}
		t.tables[table] = m
	}
	idx, ok := m.seen[k]
	if !ok {
		idx = len(m.seen)
		m.seen[k] = idx
	}
	m.current = idx
	return idx
}

// Current returns the index of the last tracked tuple of table, or -1.
func (t *MultiplicityTracker) Current(table int) int {
	if m, ok := t.tables[table]; ok {
		return m.current
	}
	return -1
}

// Reset forgets every table. Called at each feature start.
func (t *MultiplicityTracker) Reset() {
	clear(t.tables)
}

// TupleKey renders an id tuple as a map key. Equal tuples of scanned
// values yield equal keys.
func TupleKey(ids []any) string {
	var b strings.Builder
	for _, id := range ids {
		switch v := id.(type) {
		case []byte:
			b.Write(v)
		default:
			fmt.Fprint(&b, v)
		}
		b.WriteByte(0x1f)
	}
	return b.String()
}
