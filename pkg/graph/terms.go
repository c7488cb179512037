package graph

// TermTable holds per-node term frequencies, indexed by node. Missing rows
// read as empty.
type TermTable []map[string]int

// NewTermTable allocates an empty table for numNodes nodes.
func NewTermTable(numNodes int) TermTable {
	return make(TermTable, numNodes)
}

// Terms returns the term counts of node u, or nil.
func (t TermTable) Terms(u int) map[string]int {
	if u < 0 || u >= len(t) {
		return nil
	}
	return t[u]
}

// Add increments the count of term for node u. Out-of-range nodes and
// non-positive counts are ignored.
func (t TermTable) Add(u int, term string, count int) {
	if u <= Drain || u >= len(t) || count <= 0 || term == "" {
		return
	}
	if t[u] == nil {
		t[u] = make(map[string]int)
	}
	t[u][term] += count
}
