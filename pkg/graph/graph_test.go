package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderAccumulatesAndSorts(t *testing.T) {
	b := NewBuilder(4)
	require.NoError(t, b.AddEdge(1, 3, 1.0))
	require.NoError(t, b.AddEdge(1, 2, 2.0))
	require.NoError(t, b.AddEdge(1, 3, 0.5))
	require.NoError(t, b.AddEdge(2, 2, 9.0)) // self loop dropped
	g := b.Build()

	require.NoError(t, g.Validate())
	targets, weights := g.Neighbors(1)
	assert.Equal(t, []int{2, 3}, targets)
	assert.Equal(t, []float64{2.0, 1.5}, weights)
	assert.InDelta(t, 3.5, g.OutWeight[1], 1e-12)
	assert.InDelta(t, 1.5, g.InWeight[3], 1e-12)
	assert.Equal(t, 0.0, g.Weight(2, 2))
	assert.Equal(t, 2, g.NumEdges())
}

func TestBuilderRejectsBadEdges(t *testing.T) {
	b := NewBuilder(3)
	assert.Error(t, b.AddEdge(0, 1, 1.0), "drain as source")
	assert.Error(t, b.AddEdge(1, 0, 1.0), "drain as target")
	assert.Error(t, b.AddEdge(1, 5, 1.0), "out of range")
	assert.Error(t, b.AddEdge(1, 2, 0), "zero weight")
	assert.Error(t, b.AddEdge(1, 2, -1), "negative weight")
}

func TestNeighborsOutOfRange(t *testing.T) {
	g := NewBuilder(2).Build()
	targets, weights := g.Neighbors(7)
	assert.Nil(t, targets)
	assert.Nil(t, weights)
}

func TestReadEdgeList(t *testing.T) {
	input := `# who mentions whom
alice bob 2
alice carol
bob alice 1.5
carol carol 4
bob alice
`
	ds, err := ReadEdgeList(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 4, ds.Names.Len())
	assert.Equal(t, DrainName, ds.Names.Name(0))
	alice, ok := ds.Names.Lookup("alice")
	require.True(t, ok)
	bob, _ := ds.Names.Lookup("bob")
	carol, _ := ds.Names.Lookup("carol")

	assert.Equal(t, 2.0, ds.Graph.Weight(alice, bob))
	assert.Equal(t, 1.0, ds.Graph.Weight(alice, carol))
	assert.Equal(t, 2.5, ds.Graph.Weight(bob, alice))
	assert.Equal(t, 0.0, ds.Graph.OutWeight[carol])
}

func TestReadEdgeListErrors(t *testing.T) {
	cases := map[string]string{
		"short line":    "alice\n",
		"bad weight":    "alice bob x\n",
		"reserved name": "alice *ARTIFICIAL*\n",
		"zero weight":   "alice bob 0\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadEdgeList(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}

func TestReadTermsAndItems(t *testing.T) {
	ds, err := ReadEdgeList(strings.NewReader("alice bob\n"))
	require.NoError(t, err)

	require.NoError(t, ds.ReadTerms(strings.NewReader("alice golang 3\nalice rust\nmallory golang 9\n")))
	alice, _ := ds.Names.Lookup("alice")
	bob, _ := ds.Names.Lookup("bob")
	assert.Equal(t, map[string]int{"golang": 3, "rust": 1}, ds.Terms.Terms(alice))
	assert.Empty(t, ds.Terms.Terms(bob))

	items, err := ds.ReadItems(strings.NewReader("alice http://a\nalice http://a\nbob http://b\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a", "http://a"}, items[alice])
	assert.Equal(t, []string{"http://b"}, items[bob])
}

func TestFromAdjacency(t *testing.T) {
	g, err := FromAdjacency(3, map[int]map[int]float64{1: {2: 4}})
	require.NoError(t, err)
	assert.Equal(t, 4.0, g.Weight(1, 2))

	_, err = FromAdjacency(3, map[int]map[int]float64{0: {2: 4}})
	assert.Error(t, err)
}
