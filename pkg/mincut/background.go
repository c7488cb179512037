package mincut

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/gilchrisn/cutcluster/pkg/graph"
	"github.com/gilchrisn/cutcluster/pkg/unionfind"
)

// ErrInvalidAlpha is returned for negative or non-finite background pull.
var ErrInvalidAlpha = errors.New("alpha must be a finite non-negative number")

// Background is the graph contracted by the current partition, with the
// drain attached to every class. It is undirected: every edge is stored once
// per direction and Twin links the two records, so a residual copy is a
// single slice copy.
//
// Nodes are addressed by local index; local 0 is the drain and Roots maps a
// local index back to its union-find representative.
type Background struct {
	Alpha    float64
	Roots    []int
	Absorbed []int     // original nodes per local node
	Degree   []float64 // total incident weight per local node

	Offsets []int
	Targets []int
	Weights []float64
	Twin    []int

	local map[int]int
}

// Len returns the number of local nodes, drain included.
func (bg *Background) Len() int { return len(bg.Roots) }

// Local returns the local index of representative root.
func (bg *Background) Local(root int) (int, bool) {
	i, ok := bg.local[root]
	return i, ok
}

// Edges returns the neighbours of local node u and the matching edge
// record range start.
func (bg *Background) Edges(u int) (targets []int, weights []float64, first int) {
	lo, hi := bg.Offsets[u], bg.Offsets[u+1]
	return bg.Targets[lo:hi], bg.Weights[lo:hi], lo
}

// EdgeWeight returns the weight between two representatives (use
// graph.Drain for the drain), or 0.
func (bg *Background) EdgeWeight(rootA, rootB int) float64 {
	u, ok := bg.local[rootA]
	if !ok {
		return 0.0
	}
	v, ok := bg.local[rootB]
	if !ok {
		return 0.0
	}
	targets, weights, _ := bg.Edges(u)
	i := sort.SearchInts(targets, v)
	if i < len(targets) && targets[i] == v {
		return weights[i]
	}
	return 0.0
}

// BuildBackground contracts g by the classes of uf and attaches the drain.
//
// Every original node adds alpha to the edge between its class and the
// drain. Every directed edge x->y of weight w adds w/tw(x) to the undirected
// edge between the classes of x and y, where tw(x) is the total outgoing
// weight of x; edges inside one class are dropped.
func BuildBackground(g *graph.Directed, uf *unionfind.UnionFind, alpha float64) (*Background, error) {
	if alpha < 0 || math.IsNaN(alpha) || math.IsInf(alpha, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAlpha, alpha)
	}
	if uf.Len() != g.NumNodes {
		return nil, fmt.Errorf("union-find covers %d nodes, graph has %d", uf.Len(), g.NumNodes)
	}

	roots := uf.Roots(1)
	if len(roots) > 0 && roots[0] == graph.Drain {
		return nil, fmt.Errorf("a class is represented by the drain node")
	}
	bg := &Background{
		Alpha:    alpha,
		Roots:    append([]int{graph.Drain}, roots...),
		Absorbed: make([]int, len(roots)+1),
		Degree:   make([]float64, len(roots)+1),
		local:    make(map[int]int, len(roots)+1),
	}
	bg.local[graph.Drain] = 0
	for i, r := range roots {
		bg.local[r] = i + 1
	}

	rootOf := make([]int, g.NumNodes)
	for x := 1; x < g.NumNodes; x++ {
		rootOf[x] = bg.local[uf.Find(x)]
		bg.Absorbed[rootOf[x]]++
	}

	acc := make([]map[int]float64, bg.Len())
	add := func(u, v int, w float64) {
		if acc[u] == nil {
			acc[u] = make(map[int]float64)
		}
		if acc[v] == nil {
			acc[v] = make(map[int]float64)
		}
		acc[u][v] += w
		acc[v][u] += w
	}

	if alpha > 0 {
		for u := 1; u < bg.Len(); u++ {
			add(u, 0, alpha*float64(bg.Absorbed[u]))
		}
	}

	for x := 1; x < g.NumNodes; x++ {
		tw := g.OutWeight[x]
		if tw <= 0 {
			continue
		}
		src := rootOf[x]
		targets, weights := g.Neighbors(x)
		for i, y := range targets {
			tgt := rootOf[y]
			if src == tgt {
				continue
			}
			add(src, tgt, weights[i]/tw)
		}
	}

	bg.freeze(acc)
	return bg, nil
}

func (bg *Background) freeze(acc []map[int]float64) {
	n := bg.Len()
	bg.Offsets = make([]int, n+1)
	for u := 0; u < n; u++ {
		bg.Offsets[u+1] = bg.Offsets[u] + len(acc[u])
	}
	total := bg.Offsets[n]
	bg.Targets = make([]int, total)
	bg.Weights = make([]float64, total)
	bg.Twin = make([]int, total)

	for u := 0; u < n; u++ {
		pos := bg.Offsets[u]
		targets := bg.Targets[pos:bg.Offsets[u+1]]
		i := 0
		for v := range acc[u] {
			targets[i] = v
			i++
		}
		sort.Ints(targets)
		for i, v := range targets {
			w := acc[u][v]
			bg.Weights[pos+i] = w
			bg.Degree[u] += w
		}
	}

	for u := 0; u < n; u++ {
		for e := bg.Offsets[u]; e < bg.Offsets[u+1]; e++ {
			v := bg.Targets[e]
			vt := bg.Targets[bg.Offsets[v]:bg.Offsets[v+1]]
			bg.Twin[e] = bg.Offsets[v] + sort.SearchInts(vt, u)
		}
	}
}
