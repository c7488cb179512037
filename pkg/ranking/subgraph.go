package ranking

import (
	"context"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/gilchrisn/cutcluster/pkg/graph"
)

// subgraph is the cluster-induced subgraph in local indices.
type subgraph struct {
	nodes   []int // local -> original, ascending
	local   map[int]int
	offsets []int
	targets []int // local indices
	weights []float64
}

func induce(g *graph.Directed, nodes []int) *subgraph {
	sub := &subgraph{
		nodes:   nodes,
		local:   make(map[int]int, len(nodes)),
		offsets: make([]int, len(nodes)+1),
	}
	for i, u := range nodes {
		sub.local[u] = i
	}
	for i, u := range nodes {
		targets, weights := g.Neighbors(u)
		for k, v := range targets {
			j, ok := sub.local[v]
			if !ok || j == i {
				continue
			}
			sub.targets = append(sub.targets, j)
			sub.weights = append(sub.weights, weights[k])
		}
		sub.offsets[i+1] = len(sub.targets)
	}
	return sub
}

// walk turns the subgraph into a random walk where member i follows edge
// w with probability w/tw and leaks teleport/tw, tw being the in-cluster
// out-weight plus teleport.
func (s *subgraph) walk(teleport float64) *chain {
	c := &chain{
		n:       len(s.nodes),
		offsets: s.offsets,
		targets: s.targets,
		probs:   make([]float64, len(s.weights)),
		leak:    make([]float64, len(s.nodes)),
	}
	for i := range s.nodes {
		lo, hi := s.offsets[i], s.offsets[i+1]
		tw := teleport
		for e := lo; e < hi; e++ {
			tw += s.weights[e]
		}
		if tw <= 0 {
			c.leak[i] = 1.0
			continue
		}
		for e := lo; e < hi; e++ {
			c.probs[e] = s.weights[e] / tw
		}
		c.leak[i] = teleport / tw
	}
	return c
}

// inDegree tallies in-cluster incoming weight per member.
func (s *subgraph) inDegree() Scores {
	scores := make(Scores, len(s.nodes))
	for _, u := range s.nodes {
		scores[u] = 0
	}
	for i := range s.nodes {
		for e := s.offsets[i]; e < s.offsets[i+1]; e++ {
			scores[s.nodes[s.targets[e]]] += s.weights[e]
		}
	}
	return scores
}

// reversed builds a gonum digraph of the subgraph with every edge flipped,
// so a walk from a candidate follows the members that point at it.
func (s *subgraph) reversed() *simple.DirectedGraph {
	dg := simple.NewDirectedGraph()
	for i := range s.nodes {
		dg.AddNode(simple.Node(int64(i)))
	}
	for i := range s.nodes {
		for e := s.offsets[i]; e < s.offsets[i+1]; e++ {
			dg.SetEdge(simple.Edge{F: simple.Node(int64(s.targets[e])), T: simple.Node(int64(i))})
		}
	}
	return dg
}

// closeness scores each candidate by (n-1) over its total hop distance from
// the other members along reversed edges; a member that cannot reach the
// candidate counts as n hops away.
func (s *subgraph) closeness(ctx context.Context, candidates []int) (Scores, error) {
	dg := s.reversed()
	n := len(s.nodes)
	scores := make(Scores, len(candidates))

	for _, u := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reached, total := 0, 0
		var bf traverse.BreadthFirst
		bf.Walk(dg, simple.Node(int64(s.local[u])), func(_ gonum.Node, depth int) bool {
			reached++
			total += depth
			return false
		})
		total += (n - reached) * n
		if total > 0 {
			scores[u] = float64(n-1) / float64(total)
		}
	}
	return scores, nil
}
