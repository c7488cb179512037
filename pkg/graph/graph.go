package graph

import (
	"fmt"
	"math"
	"sort"
)

// Drain is the reserved background node. It never stands for a real entity.
const Drain = 0

// DrainName is the display name of the drain node.
const DrainName = "*ARTIFICIAL*"

// Directed is an immutable weighted digraph over nodes 0..NumNodes-1 stored as
// an adjacency arena: the out-edges of node u live in
// Targets[Offsets[u]:Offsets[u+1]] with matching Weights.
type Directed struct {
	NumNodes  int       `json:"num_nodes"`
	Offsets   []int     `json:"-"`
	Targets   []int     `json:"-"`
	Weights   []float64 `json:"-"`
	OutWeight []float64 `json:"out_weight"` // total outgoing weight per node
	InWeight  []float64 `json:"in_weight"`  // total incoming weight per node
}

// Neighbors returns the out-neighbours of u and their weights. The slices
// alias the arena and must not be modified.
func (g *Directed) Neighbors(u int) ([]int, []float64) {
	if u < 0 || u >= g.NumNodes {
		return nil, nil
	}
	lo, hi := g.Offsets[u], g.Offsets[u+1]
	return g.Targets[lo:hi], g.Weights[lo:hi]
}

// Weight returns the weight of edge u->v, or 0 when absent.
func (g *Directed) Weight(u, v int) float64 {
	targets, weights := g.Neighbors(u)
	i := sort.SearchInts(targets, v)
	if i < len(targets) && targets[i] == v {
		return weights[i]
	}
	return 0.0
}

// NumEdges returns the number of directed edges.
func (g *Directed) NumEdges() int {
	return len(g.Targets)
}

// Validate checks arena consistency.
func (g *Directed) Validate() error {
	if g.NumNodes <= 0 {
		return fmt.Errorf("graph must have positive number of nodes")
	}
	if len(g.Offsets) != g.NumNodes+1 {
		return fmt.Errorf("offsets length %d, want %d", len(g.Offsets), g.NumNodes+1)
	}
	if len(g.Targets) != len(g.Weights) {
		return fmt.Errorf("targets and weights arrays inconsistent")
	}
	for u := 0; u < g.NumNodes; u++ {
		targets, weights := g.Neighbors(u)
		for i, v := range targets {
			if v < 0 || v >= g.NumNodes {
				return fmt.Errorf("invalid neighbor %d for node %d", v, u)
			}
			if v == Drain {
				return fmt.Errorf("edge %d->%d points at the drain node", u, v)
			}
			if w := weights[i]; w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				return fmt.Errorf("non-positive weight %f for edge %d-%d", w, u, v)
			}
		}
	}
	return nil
}

// Builder accumulates weighted edges before freezing them into a Directed.
type Builder struct {
	numNodes int
	adj      []map[int]float64
}

// NewBuilder creates a builder for numNodes nodes, drain included.
func NewBuilder(numNodes int) *Builder {
	return &Builder{
		numNodes: numNodes,
		adj:      make([]map[int]float64, numNodes),
	}
}

// Grow extends the node space to at least numNodes.
func (b *Builder) Grow(numNodes int) {
	for b.numNodes < numNodes {
		b.adj = append(b.adj, nil)
		b.numNodes++
	}
}

// AddEdge adds weight to edge u->v. Self loops are ignored; repeated edges
// accumulate.
func (b *Builder) AddEdge(u, v int, weight float64) error {
	if u < 0 || u >= b.numNodes || v < 0 || v >= b.numNodes {
		return fmt.Errorf("node index out of range: u=%d, v=%d, numNodes=%d", u, v, b.numNodes)
	}
	if u == Drain || v == Drain {
		return fmt.Errorf("node %d is reserved for the drain", Drain)
	}
	if weight <= 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return fmt.Errorf("edge weight must be positive: %f", weight)
	}
	if u == v {
		return nil
	}
	if b.adj[u] == nil {
		b.adj[u] = make(map[int]float64)
	}
	b.adj[u][v] += weight
	return nil
}

// Build freezes the accumulated edges. Targets of every node are ascending.
func (b *Builder) Build() *Directed {
	g := &Directed{
		NumNodes:  b.numNodes,
		Offsets:   make([]int, b.numNodes+1),
		OutWeight: make([]float64, b.numNodes),
		InWeight:  make([]float64, b.numNodes),
	}

	total := 0
	for u := 0; u < b.numNodes; u++ {
		total += len(b.adj[u])
	}
	g.Targets = make([]int, 0, total)
	g.Weights = make([]float64, 0, total)

	for u := 0; u < b.numNodes; u++ {
		g.Offsets[u] = len(g.Targets)
		targets := make([]int, 0, len(b.adj[u]))
		for v := range b.adj[u] {
			targets = append(targets, v)
		}
		sort.Ints(targets)
		for _, v := range targets {
			w := b.adj[u][v]
			g.Targets = append(g.Targets, v)
			g.Weights = append(g.Weights, w)
			g.OutWeight[u] += w
			g.InWeight[v] += w
		}
	}
	g.Offsets[b.numNodes] = len(g.Targets)

	return g
}

// FromAdjacency builds a Directed from a node -> (target -> weight) mapping.
// numNodes must cover every index used; node 0 must be empty.
func FromAdjacency(numNodes int, adj map[int]map[int]float64) (*Directed, error) {
	b := NewBuilder(numNodes)
	for u, targets := range adj {
		for v, w := range targets {
			if err := b.AddEdge(u, v, w); err != nil {
				return nil, err
			}
		}
	}
	return b.Build(), nil
}
