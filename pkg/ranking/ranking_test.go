package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/gilchrisn/cutcluster/pkg/graph"
	"github.com/gilchrisn/cutcluster/pkg/progress"
)

type edge struct {
	u, v int
	w    float64
}

func buildGraph(t *testing.T, numNodes int, edges []edge) *graph.Directed {
	t.Helper()
	b := graph.NewBuilder(numNodes)
	for _, e := range edges {
		require.NoError(t, b.AddEdge(e.u, e.v, e.w))
	}
	return b.Build()
}

// star has hub 1 and leaves 2..11 that all point at the hub.
func star(t *testing.T) (*graph.Directed, []int) {
	var edges []edge
	members := []int{1}
	for leaf := 2; leaf <= 11; leaf++ {
		edges = append(edges, edge{leaf, 1, 1})
		members = append(members, leaf)
	}
	return buildGraph(t, 12, edges), members
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.TimeBudget = 0
	return opts
}

func TestRankStarHubFirst(t *testing.T) {
	g, members := star(t)
	r, err := NewRanker(testOptions()).Rank(context.Background(), g, members)
	require.NoError(t, err)

	assert.Equal(t, StrategyPageRank, r.Method)
	assert.Equal(t, 1, r.Order[0])
	assert.Len(t, r.Order, 11)
	for leaf := 2; leaf <= 11; leaf++ {
		assert.Greater(t, r.Scores[1], r.Scores[leaf])
	}
	// equal leaves keep index order
	assert.Equal(t, []int{1, 2, 3, 4}, r.Top(4))
}

func TestRankPreservesMass(t *testing.T) {
	g := buildGraph(t, 6, []edge{
		{1, 2, 1}, {2, 3, 2}, {3, 1, 1}, {3, 4, 0.5}, {4, 5, 3}, {5, 1, 1}, {2, 5, 1},
	})
	r, err := NewRanker(testOptions()).Rank(context.Background(), g, []int{1, 2, 3, 4, 5})
	require.NoError(t, err)

	sum := 0.0
	for _, s := range r.Scores {
		sum += s
	}
	assert.InDelta(t, 5.0, sum, 1e-9)
}

func TestRankIgnoresEdgesLeavingCluster(t *testing.T) {
	inner := []edge{{1, 2, 1}, {2, 3, 1}, {3, 1, 2}}
	g1 := buildGraph(t, 5, inner)
	g2 := buildGraph(t, 5, append(append([]edge(nil), inner...), edge{1, 4, 5}, edge{4, 2, 3}))

	r1, err := NewRanker(testOptions()).Rank(context.Background(), g1, []int{1, 2, 3})
	require.NoError(t, err)
	r2, err := NewRanker(testOptions()).Rank(context.Background(), g2, []int{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, r1.Order, r2.Order)
	for u, s := range r1.Scores {
		assert.InDelta(t, s, r2.Scores[u], 1e-12)
	}
}

func TestRankTrivialClusters(t *testing.T) {
	g, _ := star(t)
	ranker := NewRanker(testOptions())

	r, err := ranker.Rank(context.Background(), g, nil)
	require.NoError(t, err)
	assert.Empty(t, r.Order)
	assert.Equal(t, StrategyTrivial, r.Method)

	r, err = ranker.Rank(context.Background(), g, []int{7})
	require.NoError(t, err)
	assert.Equal(t, []int{7}, r.Order)

	_, err = ranker.Rank(context.Background(), g, []int{0, 1})
	assert.Error(t, err)
}

func TestRankLargeClusterHeuristics(t *testing.T) {
	g, members := star(t)
	for _, strategy := range []Strategy{StrategyInDegree, StrategyCloseness} {
		opts := testOptions()
		opts.SizeThreshold = 3
		opts.LargeStrategy = strategy
		r, err := NewRanker(opts).Rank(context.Background(), g, members)
		require.NoError(t, err)

		assert.Equal(t, strategy, r.Method)
		assert.Equal(t, 1, r.Order[0], "strategy %s", strategy)
		assert.ElementsMatch(t, members, r.Order)
	}
}

func TestClosenessCandidateLimit(t *testing.T) {
	// chain 1->2->3->4 plus 5->4: node 4 collects the most weight
	g := buildGraph(t, 6, []edge{{1, 2, 1}, {2, 3, 1}, {3, 4, 1}, {5, 4, 1}})
	opts := testOptions()
	opts.SizeThreshold = 2
	opts.LargeStrategy = StrategyCloseness
	opts.ClosenessCandidates = 2

	r, err := NewRanker(opts).Rank(context.Background(), g, []int{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Len(t, r.Scores, 2)
	assert.Equal(t, 4, r.Order[0])
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5}, r.Order)
	// non-candidates follow in in-degree order
	assert.Equal(t, []int{1, 5}, r.Order[3:])
}

func TestRankTimeBudget(t *testing.T) {
	g, members := star(t)
	opts := testOptions()
	opts.TimeBudget = 5 * time.Second
	opts.Clock = progress.NewManualClock(time.Unix(0, 0), time.Second)

	r, err := NewRanker(opts).Rank(context.Background(), g, members)
	require.NoError(t, err)
	assert.True(t, r.Expired)
	assert.Equal(t, 4, r.Iterations)
	assert.Equal(t, 1, r.Order[0])
}

func TestRankEpsilonStopsEarly(t *testing.T) {
	g, members := star(t)
	opts := testOptions()
	opts.Epsilon = 1e-6

	r, err := NewRanker(opts).Rank(context.Background(), g, members)
	require.NoError(t, err)
	assert.Less(t, r.Iterations, 1000)
	assert.False(t, r.Expired)
}

func TestRankCancelled(t *testing.T) {
	g, members := star(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRanker(testOptions()).Rank(ctx, g, members)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGlobalRankMatchesGonum(t *testing.T) {
	edges := []edge{{1, 2, 1}, {1, 3, 1}, {2, 3, 1}, {3, 1, 1}, {4, 3, 1}, {4, 5, 1}}
	g := buildGraph(t, 6, edges)

	opts := DefaultGlobalOptions()
	opts.Epsilon = 1e-12
	res, err := NewGlobalRanker(opts).Rank(context.Background(), g)
	require.NoError(t, err)
	assert.True(t, res.Converged)

	dg := simple.NewDirectedGraph()
	for u := 1; u <= 5; u++ {
		dg.AddNode(simple.Node(int64(u)))
	}
	for _, e := range edges {
		dg.SetEdge(simple.Edge{F: simple.Node(int64(e.u)), T: simple.Node(int64(e.v))})
	}
	want := network.PageRank(dg, 0.85, 1e-10)

	for u := 1; u <= 5; u++ {
		assert.InDelta(t, want[int64(u)], res.Scores[u]/5, 1e-6, "node %d", u)
	}
}

func TestGlobalRankMassAndLostFlow(t *testing.T) {
	g := buildGraph(t, 5, []edge{{1, 2, 2}, {2, 3, 1}, {3, 1, 1}, {3, 2, 1}})
	res, err := NewGlobalRanker(DefaultGlobalOptions()).Rank(context.Background(), g)
	require.NoError(t, err)

	values := make([]float64, 0, len(res.Scores))
	for _, s := range res.Scores {
		values = append(values, s)
	}
	assert.InDelta(t, 4.0, floats.Sum(values), 1e-9)
	// node 4 is a sink and the taxation leaks on every other node
	assert.Greater(t, res.LostFlow, 0.0)
	assert.Greater(t, res.Scores[2], res.Scores[4])
}

func TestGlobalRankEmptyGraph(t *testing.T) {
	res, err := NewGlobalRanker(DefaultGlobalOptions()).Rank(context.Background(), graph.NewBuilder(1).Build())
	require.NoError(t, err)
	assert.Empty(t, res.Scores)
}

func TestDistribute(t *testing.T) {
	scores := Scores{1: 3, 2: 1, 4: 7}
	items := map[int][]string{
		1: {"a", "b", "a"},
		2: {"b"},
		3: {"c"},
		4: {},
	}
	totals := Distribute(scores, items)
	assert.Equal(t, map[string]float64{"a": 2, "b": 2}, totals)
	assert.Equal(t, []string{"a"}, TopItems(totals, 1))
	assert.Equal(t, []string{"a", "b"}, TopItems(totals, 5))
}

func TestScoresTop(t *testing.T) {
	s := Scores{5: 1, 3: 2, 9: 2, 1: 0.5}
	assert.Equal(t, []int{3, 9, 5}, s.Top(3))
	assert.Len(t, s.Top(-1), 4)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("indegree")
	require.NoError(t, err)
	assert.Equal(t, StrategyInDegree, s)
	_, err = ParseStrategy("pagerank")
	assert.Error(t, err)
}
