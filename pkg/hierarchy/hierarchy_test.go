package hierarchy

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/cutcluster/pkg/describe"
	"github.com/gilchrisn/cutcluster/pkg/graph"
	"github.com/gilchrisn/cutcluster/pkg/ranking"
	"github.com/gilchrisn/cutcluster/pkg/unionfind"
)

// twoCommunities is a 25-clique "a*" and a 22-clique "b*" joined by one
// weak mention, plus a detached pair "c1 c2".
func twoCommunities(t *testing.T) *graph.Dataset {
	t.Helper()
	var sb strings.Builder
	clique := func(prefix string, k int) {
		for i := 1; i <= k; i++ {
			for j := 1; j <= k; j++ {
				if i != j {
					fmt.Fprintf(&sb, "%s%d %s%d\n", prefix, i, prefix, j)
				}
			}
		}
	}
	clique("a", 25)
	clique("b", 22)
	sb.WriteString("a25 b1 0.01\n")
	sb.WriteString("c1 c2\n")

	ds, err := graph.ReadEdgeList(strings.NewReader(sb.String()))
	require.NoError(t, err)

	for i := 1; i <= 25; i++ {
		id, _ := ds.Names.Lookup(fmt.Sprintf("a%d", i))
		ds.Terms.Add(id, "apples", 1)
	}
	for i := 1; i <= 22; i++ {
		id, _ := ds.Names.Lookup(fmt.Sprintf("b%d", i))
		ds.Terms.Add(id, "bananas", 2)
	}
	return ds
}

func TestValidateAlphas(t *testing.T) {
	assert.NoError(t, ValidateAlphas([]float64{0.1, 0.01, 0.005, 0}))
	for _, bad := range [][]float64{
		nil,
		{0.1, 0.1},
		{0.01, 0.1},
		{0.5, -0.1},
	} {
		assert.ErrorIs(t, ValidateAlphas(bad), ErrAlphaOrder, "%v", bad)
	}
}

func TestComputeChildrenDetectsSplit(t *testing.T) {
	prev := unionfind.New(4, nil)
	prev.Union(1, 2)
	next := unionfind.New(4, nil)
	next.Union(2, 3)

	_, err := computeChildren(prev, next)
	assert.ErrorIs(t, err, ErrNotNested)
}

func TestBuildTwoCommunities(t *testing.T) {
	ds := twoCommunities(t)
	tree, err := Build(context.Background(), ds.Graph, Options{
		Alphas: []float64{0.05, 0.001, 0},
		Seed:   42,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	require.Len(t, tree.Levels, 4)
	assert.True(t, tree.Levels[0].Synthetic)
	assert.Equal(t, 0.0, tree.Levels[1].Alpha)
	assert.Equal(t, 0.05, tree.Levels[3].Alpha)

	// the root holds the merged community and the detached pair
	require.Len(t, tree.Root.Children, 2)
	assert.Equal(t, 49, tree.Root.Size)

	sizes := func(level int) []int {
		var out []int
		for _, members := range tree.Partition(level) {
			out = append(out, len(members))
		}
		sort.Ints(out)
		return out
	}
	assert.Equal(t, []int{2, 47}, sizes(1))
	assert.Equal(t, []int{2, 22, 25}, sizes(2))
	assert.Equal(t, []int{2, 22, 25}, sizes(3))
}

func TestBuildPartitionsNest(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := graph.NewBuilder(61)
	for i := 0; i < 240; i++ {
		u, v := 1+rng.Intn(60), 1+rng.Intn(60)
		// denser inside blocks of ten
		if rng.Intn(3) > 0 {
			v = (u-1)/10*10 + 1 + rng.Intn(10)
		}
		if u != v {
			require.NoError(t, b.AddEdge(u, v, 1+rng.Float64()))
		}
	}
	g := b.Build()

	tree, err := Build(context.Background(), g, Options{
		Alphas: []float64{1, 0.3, 0.1, 0.03, 0.01, 0},
		Seed:   1,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	prevCount := -1
	for li := len(tree.Levels) - 1; li >= 1; li-- {
		classOf := make(map[int]int)
		for root, members := range tree.Partition(li) {
			for _, x := range members {
				_, dup := classOf[x]
				require.False(t, dup, "node %d in two classes at level %d", x, li)
				classOf[x] = root
			}
		}
		assert.Len(t, classOf, 60)

		count := len(tree.NodesAt(li))
		if prevCount >= 0 {
			assert.LessOrEqual(t, count, prevCount, "level %d coarsens", li)
		}
		prevCount = count

		for _, n := range tree.NodesAt(li) {
			sum := 0
			for _, c := range n.Children {
				sum += c.Size
				for _, x := range tree.Members(c) {
					assert.Equal(t, classOf[x], n.ID)
				}
			}
			assert.Equal(t, n.Size, sum)
		}
	}
}

func TestBuildRejectsAlphas(t *testing.T) {
	_, err := Build(context.Background(), graph.NewBuilder(3).Build(), Options{Alphas: []float64{0, 0.1}})
	assert.ErrorIs(t, err, ErrAlphaOrder)
}

func TestBuildEmptyGraph(t *testing.T) {
	tree, err := Build(context.Background(), graph.NewBuilder(1).Build(), Options{Alphas: []float64{0.1}})
	require.NoError(t, err)
	assert.Equal(t, 0, tree.Root.Size)
	assert.Empty(t, tree.Members(tree.Root))
}

// handTree has nodes 1..8:
//
//	root -> {1: [1,4], 5: [5,7]} -> {1: [1,2,3], 4: [4], 5: [5,6], 7: [7,8]}
func handTree() *Tree {
	return newTree(9, []Level{
		{Synthetic: true, Children: map[int][]int{0: {1, 5}}},
		{Alpha: 0.01, Children: map[int][]int{1: {1, 4}, 5: {5, 7}}},
		{Alpha: 0.1, Children: map[int][]int{1: {1, 2, 3}, 4: {4}, 5: {5, 6}, 7: {7, 8}}},
	})
}

type orderRanker struct{}

func (orderRanker) Rank(_ context.Context, _ *graph.Directed, members []int) (ranking.Ranking, error) {
	return ranking.Ranking{Order: members, Method: ranking.StrategyTrivial}, nil
}

type sizeDescriber struct{}

func (sizeDescriber) Describe(members []int) []string {
	return []string{fmt.Sprintf("n%d", len(members))}
}

func handNames() *graph.Names {
	names := graph.NewNames()
	for i := 1; i <= 8; i++ {
		names.Intern(fmt.Sprintf("u%d", i))
	}
	return names
}

func TestTreeShape(t *testing.T) {
	tree := handTree()
	assert.Equal(t, 8, tree.Root.Size)
	assert.Equal(t, []int{1, 2, 3, 4}, tree.Members(tree.Node(1, 1)))
	assert.Equal(t, []int{7, 8}, tree.Members(tree.Node(2, 7)))
	assert.Nil(t, tree.Node(1, 4))
	assert.Equal(t, Leaf, tree.Node(3, 6).Kind)
	assert.Len(t, tree.NodesAt(2), 4)
}

func TestReportTraversalOrder(t *testing.T) {
	lines, err := Report(context.Background(), handTree(), nil, ReportOptions{
		MinClusterSize: 2,
		TopMembers:     2,
		Workers:        2,
		Ranker:         orderRanker{},
		Describer:      sizeDescriber{},
		Logger:         zerolog.Nop(),
	})
	require.NoError(t, err)

	type summary struct{ depth, level, root, size int }
	got := make([]summary, len(lines))
	for i, l := range lines {
		got[i] = summary{l.Depth, l.Level, l.Root, l.Size}
	}
	// class 1 has a single qualifying child, so it adds no line of its own
	assert.Equal(t, []summary{
		{0, 1, 1, 4},
		{0, 1, 5, 4},
		{1, 2, 5, 2},
		{1, 2, 7, 2},
	}, got)
	assert.Equal(t, []int{1, 2}, lines[0].Leaders)
	assert.Equal(t, []string{"n4"}, lines[0].Terms)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, lines, handNames()))
	assert.Equal(t,
		"4, led by u1 u2, talking about n4\n"+
			"4, led by u5 u6, talking about n4\n"+
			"  2, led by u5 u6, talking about n2\n"+
			"  2, led by u7 u8, talking about n2\n",
		buf.String())
}

func TestReportMinSizeFiltersEverything(t *testing.T) {
	lines, err := Report(context.Background(), handTree(), nil, ReportOptions{
		MinClusterSize: 5,
		Ranker:         orderRanker{},
	})
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, err = Report(context.Background(), handTree(), nil, ReportOptions{})
	assert.Error(t, err)
}

func TestReportTwoCommunities(t *testing.T) {
	ds := twoCommunities(t)
	tree, err := Build(context.Background(), ds.Graph, Options{
		Alphas: []float64{0.05, 0.001, 0},
		Seed:   42,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	rankOpts := ranking.DefaultOptions()
	rankOpts.TimeBudget = 0
	lines, err := Report(context.Background(), tree, ds.Graph, ReportOptions{
		MinClusterSize: 20,
		TopMembers:     5,
		Ranker:         ranking.NewRanker(rankOpts),
		Describer:      describe.NewDescriber(ds.Terms, 10),
		Logger:         zerolog.Nop(),
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, 25, lines[0].Size)
	assert.Equal(t, []string{"apples"}, lines[0].Terms)
	assert.Equal(t, 22, lines[1].Size)
	assert.Equal(t, []string{"bananas"}, lines[1].Terms)
	for _, l := range lines {
		assert.Equal(t, 0, l.Depth)
		assert.Len(t, l.Leaders, 5)
	}
	for _, u := range lines[0].Leaders {
		assert.True(t, strings.HasPrefix(ds.Names.Name(u), "a"))
	}
}

func TestFileWriter(t *testing.T) {
	tree := handTree()
	dir := t.TempDir()
	require.NoError(t, NewFileWriter(handNames()).WriteAll(tree, dir, "run"))

	root, err := os.ReadFile(filepath.Join(dir, "run.root"))
	require.NoError(t, err)
	assert.Equal(t, "c0_l2_1\nc0_l2_5\n", string(root))

	mapping, err := os.ReadFile(filepath.Join(dir, "run.mapping"))
	require.NoError(t, err)
	assert.Equal(t, "c0_l2_1\n4\nu1\nu2\nu3\nu4\nc0_l2_5\n4\nu5\nu6\nu7\nu8\n", string(mapping))

	hier, err := os.ReadFile(filepath.Join(dir, "run.hierarchy"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(hier), "c0_l2_1\n2\nc0_l1_1\nc0_l1_4\n"))
	assert.Contains(t, string(hier), "c0_l1_7\n2\nu7\nu8\n")
}
