// Package describe labels a cluster with the terms that set it apart from
// the rest of the graph.
package describe

import (
	"container/heap"
	"sort"

	"github.com/gilchrisn/cutcluster/pkg/graph"
)

// Term is a scored descriptive term.
type Term struct {
	Name    string  `json:"name"`
	Inside  int     `json:"inside"`
	Outside int     `json:"outside"`
	Score   float64 `json:"score"`
	// Exclusive is set when the term never occurs outside the cluster.
	Exclusive bool `json:"exclusive"`
}

// better orders terms: exclusive terms first, then by score, then by name.
func better(a, b Term) bool {
	if a.Exclusive != b.Exclusive {
		return a.Exclusive
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Name < b.Name
}

// worstFirst is a min-heap on better, so the root is the term to evict.
type worstFirst []Term

func (h worstFirst) Len() int            { return len(h) }
func (h worstFirst) Less(i, j int) bool  { return better(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x interface{}) { *h = append(*h, x.(Term)) }
func (h *worstFirst) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}

// Describer picks the top terms of clusters over one term table.
type Describer struct {
	terms  graph.TermTable
	totals map[string]int
	k      int
}

// NewDescriber precomputes graph-wide term totals. k is the number of terms
// returned per cluster.
func NewDescriber(terms graph.TermTable, k int) *Describer {
	totals := make(map[string]int)
	for u := 1; u < len(terms); u++ {
		for term, c := range terms[u] {
			totals[term] += c
		}
	}
	return &Describer{terms: terms, totals: totals, k: k}
}

// Describe returns the names of the top terms of members.
func (d *Describer) Describe(members []int) []string {
	scored := d.Score(members)
	names := make([]string, len(scored))
	for i, t := range scored {
		names[i] = t.Name
	}
	return names
}

// Score returns up to k terms of members, best first. Terms seen only inside
// the cluster rank by inside count ahead of all others; the rest rank by
// inside/outside ratio.
func (d *Describer) Score(members []int) []Term {
	if d.k <= 0 || len(members) == 0 {
		return []Term{}
	}

	inside := make(map[string]int)
	for _, u := range members {
		for term, c := range d.terms.Terms(u) {
			inside[term] += c
		}
	}

	h := make(worstFirst, 0, d.k+1)
	for name, in := range inside {
		if in <= 0 {
			continue
		}
		t := Term{Name: name, Inside: in, Outside: d.totals[name] - in}
		if t.Outside <= 0 {
			t.Outside = 0
			t.Exclusive = true
			t.Score = float64(in)
		} else {
			t.Score = float64(in) / float64(t.Outside)
		}
		if h.Len() < d.k {
			heap.Push(&h, t)
			continue
		}
		if better(t, h[0]) {
			h[0] = t
			heap.Fix(&h, 0)
		}
	}

	out := []Term(h)
	sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })
	return out
}
