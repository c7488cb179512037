// Package hierarchy sweeps the background pull from strong to weak and
// assembles the nested partitions into a single-rooted cluster tree.
package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/cutcluster/pkg/graph"
	"github.com/gilchrisn/cutcluster/pkg/metrics"
	"github.com/gilchrisn/cutcluster/pkg/mincut"
	"github.com/gilchrisn/cutcluster/pkg/unionfind"
)

var (
	// ErrAlphaOrder is returned when the alpha sequence is not strictly
	// decreasing and non-negative.
	ErrAlphaOrder = errors.New("alphas must be non-negative and strictly decreasing")
	// ErrNotNested is returned when a finer class is split across coarser
	// classes.
	ErrNotNested = errors.New("partition is not nested in the previous level")
)

// Options configures Build.
type Options struct {
	// Alphas are applied in order, strongest pull first. Each level can only
	// merge classes of the previous one, so the tree coarsens upwards.
	Alphas []float64
	Seed   int64

	Clusterer mincut.Options
	Metrics   *metrics.Collector
	Logger    zerolog.Logger
}

// Level is one layer of the tree. Children maps every class representative
// at this level to the representatives one level finer that it absorbed.
type Level struct {
	Alpha     float64          `json:"alpha"`
	Synthetic bool             `json:"synthetic"`
	Children  map[int][]int    `json:"children"`
	Stats     mincut.PassStats `json:"stats"`
}

// NodeKind tags tree nodes.
type NodeKind int

const (
	Leaf NodeKind = iota
	Internal
)

// Node is a cluster tree node: a Leaf holds one original graph node, an
// Internal node holds a class at Level.
type Node struct {
	Kind     NodeKind
	ID       int
	Level    int
	Size     int
	Children []*Node
}

// Tree is the cluster hierarchy. Levels[0] is the synthetic top level whose
// only class is the drain; the last level is the finest.
type Tree struct {
	NumNodes int
	Levels   []Level
	Root     *Node

	byLevel []map[int]*Node
}

// Build runs one clustering pass per alpha and records how classes nest.
func Build(ctx context.Context, g *graph.Directed, opts Options) (*Tree, error) {
	if err := ValidateAlphas(opts.Alphas); err != nil {
		return nil, err
	}
	logger := opts.Logger
	clusterOpts := opts.Clusterer
	if clusterOpts.Metrics == nil {
		clusterOpts.Metrics = opts.Metrics
	}
	clusterer := mincut.NewClusterer(clusterOpts)
	clock := clusterOpts.Reporter.Clock()
	start := clock.Now()

	uf := unionfind.New(g.NumNodes, rand.New(rand.NewSource(opts.Seed)))
	fine := make([]Level, 0, len(opts.Alphas)+1)

	for i, alpha := range opts.Alphas {
		levelStart := clock.Now()
		old := uf.Clone()

		bg, err := mincut.BuildBackground(g, uf, alpha)
		if err != nil {
			return nil, fmt.Errorf("background graph at level %d: %w", i, err)
		}
		stats, err := clusterer.Run(ctx, bg, uf, i)
		if err != nil {
			return nil, fmt.Errorf("clustering failed at level %d: %w", i, err)
		}
		children, err := computeChildren(old, uf)
		if err != nil {
			return nil, fmt.Errorf("level %d (alpha %v): %w", i, alpha, err)
		}

		fine = append(fine, Level{Alpha: alpha, Children: children, Stats: stats})
		opts.Metrics.ObserveStage("level", clock.Now().Sub(levelStart))

		logger.Info().
			Int("level", i).
			Float64("alpha", alpha).
			Int("background_nodes", bg.Len()-1).
			Int("clusters", len(children)).
			Msg("Level completed")
	}

	top := Level{
		Synthetic: true,
		Children:  map[int][]int{graph.Drain: uf.Roots(1)},
	}
	levels := make([]Level, 0, len(fine)+1)
	levels = append(levels, top)
	for i := len(fine) - 1; i >= 0; i-- {
		levels = append(levels, fine[i])
	}

	tree := newTree(g.NumNodes, levels)
	logger.Info().
		Int("levels", len(levels)).
		Int("top_clusters", len(tree.Root.Children)).
		Dur("took", clock.Now().Sub(start)).
		Msg("Hierarchy built")

	return tree, nil
}

// ValidateAlphas checks that alphas is a non-empty, strictly decreasing
// sequence of finite non-negative values.
func ValidateAlphas(alphas []float64) error {
	if len(alphas) == 0 {
		return fmt.Errorf("%w: empty sequence", ErrAlphaOrder)
	}
	for i, a := range alphas {
		if a < 0 || math.IsNaN(a) || math.IsInf(a, 0) {
			return fmt.Errorf("%w: alpha[%d] = %v", ErrAlphaOrder, i, a)
		}
		if i > 0 && a >= alphas[i-1] {
			return fmt.Errorf("%w: alpha[%d] = %v follows %v", ErrAlphaOrder, i, a, alphas[i-1])
		}
	}
	return nil
}

// computeChildren maps every class of next to the classes of prev it
// absorbed, and fails if a class of prev landed in two classes of next.
func computeChildren(prev, next *unionfind.UnionFind) (map[int][]int, error) {
	parentOf := make(map[int]int)
	sets := make(map[int]map[int]bool)

	for x := 1; x < next.Len(); x++ {
		ob := prev.Find(x)
		nb := next.Find(x)
		if p, ok := parentOf[ob]; ok && p != nb {
			return nil, fmt.Errorf("%w: class %d split between %d and %d", ErrNotNested, ob, p, nb)
		}
		parentOf[ob] = nb
		if sets[nb] == nil {
			sets[nb] = make(map[int]bool)
		}
		sets[nb][ob] = true
	}

	children := make(map[int][]int, len(sets))
	for nb, set := range sets {
		kids := make([]int, 0, len(set))
		for ob := range set {
			kids = append(kids, ob)
		}
		sort.Ints(kids)
		children[nb] = kids
	}
	return children, nil
}

func newTree(numNodes int, levels []Level) *Tree {
	t := &Tree{
		NumNodes: numNodes,
		Levels:   levels,
		byLevel:  make([]map[int]*Node, len(levels)+1),
	}

	below := make(map[int]*Node, numNodes)
	for x := 1; x < numNodes; x++ {
		below[x] = &Node{Kind: Leaf, ID: x, Level: len(levels), Size: 1}
	}
	t.byLevel[len(levels)] = below

	for li := len(levels) - 1; li >= 0; li-- {
		current := make(map[int]*Node, len(levels[li].Children))
		for r, kids := range levels[li].Children {
			node := &Node{Kind: Internal, ID: r, Level: li, Children: make([]*Node, 0, len(kids))}
			for _, k := range kids {
				child := below[k]
				node.Children = append(node.Children, child)
				node.Size += child.Size
			}
			current[r] = node
		}
		t.byLevel[li] = current
		below = current
	}

	t.Root = t.byLevel[0][graph.Drain]
	return t
}

// Node returns the tree node of class root at level, or nil. Level
// len(Levels) addresses leaves.
func (t *Tree) Node(level, root int) *Node {
	if level < 0 || level >= len(t.byLevel) {
		return nil
	}
	return t.byLevel[level][root]
}

// NodesAt returns the nodes of a level ordered by representative.
func (t *Tree) NodesAt(level int) []*Node {
	if level < 0 || level >= len(t.byLevel) {
		return nil
	}
	nodes := make([]*Node, 0, len(t.byLevel[level]))
	for _, n := range t.byLevel[level] {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// Members expands n into the original graph nodes below it, ascending.
func (t *Tree) Members(n *Node) []int {
	if n == nil {
		return nil
	}
	members := make([]int, 0, n.Size)
	stack := []*Node{n}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.Kind == Leaf {
			members = append(members, top.ID)
			continue
		}
		stack = append(stack, top.Children...)
	}
	sort.Ints(members)
	return members
}

// Partition returns the classes at level as representative -> members.
func (t *Tree) Partition(level int) map[int][]int {
	partition := make(map[int][]int)
	for _, n := range t.NodesAt(level) {
		partition[n.ID] = t.Members(n)
	}
	return partition
}
