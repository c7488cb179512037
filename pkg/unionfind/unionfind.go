// Package unionfind implements the disjoint-set structure that carries the
// current partition between clustering levels.
package unionfind

import (
	"math/rand"
	"sort"
)

// UnionFind tracks a partition of the index space 0..n-1.
//
// Union picks the surviving root with a coin flip instead of rank or size.
// Expected tree depth stays shallow because Find compresses every path it
// walks. The coin comes from an injected source, so a fixed seed gives a
// reproducible partition.
type UnionFind struct {
	boss []int
	rng  *rand.Rand
}

// New creates a UnionFind with every element in its own class.
// A nil rng is replaced by a source seeded with 1.
func New(n int, rng *rand.Rand) *UnionFind {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	boss := make([]int, n)
	for i := range boss {
		boss[i] = i
	}
	return &UnionFind{boss: boss, rng: rng}
}

// Len returns the size of the index space.
func (uf *UnionFind) Len() int { return len(uf.boss) }

// Find returns the representative of x and points every node on the walked
// path directly at it.
func (uf *UnionFind) Find(x int) int {
	root := x
	for root != uf.boss[root] {
		root = uf.boss[root]
	}
	for x != root {
		x, uf.boss[x] = uf.boss[x], root
	}
	return root
}

// Union merges the classes of x and y. It reports whether a merge happened.
func (uf *UnionFind) Union(x, y int) bool {
	rx, ry := uf.Find(x), uf.Find(y)
	if rx == ry {
		return false
	}
	if uf.rng.Intn(2) == 1 {
		rx, ry = ry, rx
	}
	uf.boss[rx] = ry
	return true
}

// Same reports whether x and y are in the same class.
func (uf *UnionFind) Same(x, y int) bool {
	return uf.Find(x) == uf.Find(y)
}

// Clone returns an independent copy sharing the random source.
func (uf *UnionFind) Clone() *UnionFind {
	boss := make([]int, len(uf.boss))
	copy(boss, uf.boss)
	return &UnionFind{boss: boss, rng: uf.rng}
}

// Classes groups the elements in [from, Len()) by representative. Members of
// each class are ascending.
func (uf *UnionFind) Classes(from int) map[int][]int {
	classes := make(map[int][]int)
	for x := from; x < len(uf.boss); x++ {
		r := uf.Find(x)
		classes[r] = append(classes[r], x)
	}
	return classes
}

// Roots returns the distinct representatives of elements in [from, Len()),
// ascending.
func (uf *UnionFind) Roots(from int) []int {
	seen := make(map[int]bool)
	roots := make([]int, 0)
	for x := from; x < len(uf.boss); x++ {
		r := uf.Find(x)
		if !seen[r] {
			seen[r] = true
			roots = append(roots, r)
		}
	}
	sort.Ints(roots)
	return roots
}
