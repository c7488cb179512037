// Package ranking orders the members of a cluster by importance and ranks
// the whole graph with a taxed random walk.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/gilchrisn/cutcluster/pkg/graph"
	"github.com/gilchrisn/cutcluster/pkg/metrics"
	"github.com/gilchrisn/cutcluster/pkg/progress"
)

// Strategy names a ranking method.
type Strategy string

const (
	StrategyPageRank  Strategy = "pagerank"
	StrategyInDegree  Strategy = "indegree"
	StrategyCloseness Strategy = "closeness"
	StrategyTrivial   Strategy = "trivial"
)

// ParseStrategy validates a heuristic name for large clusters.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyInDegree, StrategyCloseness:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown large-cluster strategy %q (want %q or %q)", s, StrategyInDegree, StrategyCloseness)
}

// Scores maps a node to its score.
type Scores map[int]float64

// Top returns up to k nodes by descending score, ties by node index.
func (s Scores) Top(k int) []int {
	nodes := make([]int, 0, len(s))
	for u := range s {
		nodes = append(nodes, u)
	}
	sortByScore(nodes, s)
	if k >= 0 && k < len(nodes) {
		nodes = nodes[:k]
	}
	return nodes
}

func sortByScore(nodes []int, s map[int]float64) {
	sort.Slice(nodes, func(i, j int) bool {
		a, b := s[nodes[i]], s[nodes[j]]
		if a != b {
			return a > b
		}
		return nodes[i] < nodes[j]
	})
}

// Options configures a Ranker.
type Options struct {
	// Clusters of at least SizeThreshold members use LargeStrategy instead of
	// the random walk. Zero disables the switch.
	SizeThreshold int
	MaxIterations int
	// Epsilon stops the walk once no score moves by more than it. Zero runs
	// the full MaxIterations.
	Epsilon float64
	// TimeBudget bounds one cluster's walk. Zero means unlimited.
	TimeBudget time.Duration
	// TeleportWeight is the extra outgoing weight every member sends to the
	// absorbing node.
	TeleportWeight      float64
	LargeStrategy       Strategy
	ClosenessCandidates int

	Clock   progress.Clock
	Metrics *metrics.Collector
	Logger  zerolog.Logger
}

// DefaultOptions returns the settings used by the report.
func DefaultOptions() Options {
	return Options{
		SizeThreshold:       5000,
		MaxIterations:       1000,
		TimeBudget:          10 * time.Second,
		TeleportWeight:      1.0,
		LargeStrategy:       StrategyCloseness,
		ClosenessCandidates: 100,
		Clock:               progress.SystemClock{},
		Logger:              zerolog.Nop(),
	}
}

// Ranking is the ordered membership of one cluster.
type Ranking struct {
	// Order holds every member, most important first.
	Order []int
	// Scores covers the members the method scored. For the closeness
	// heuristic that is the candidate set only.
	Scores     Scores
	Method     Strategy
	Iterations int
	Expired    bool
}

// Top returns the first k members of the order.
func (r Ranking) Top(k int) []int {
	if k >= 0 && k < len(r.Order) {
		return r.Order[:k]
	}
	return r.Order
}

// Ranker ranks cluster members. It is safe for concurrent use.
type Ranker struct {
	opts Options
}

// NewRanker creates a ranker.
func NewRanker(opts Options) *Ranker {
	if opts.Clock == nil {
		opts.Clock = progress.SystemClock{}
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 1000
	}
	if opts.TeleportWeight < 0 {
		opts.TeleportWeight = 0
	}
	if opts.LargeStrategy == "" {
		opts.LargeStrategy = StrategyCloseness
	}
	return &Ranker{opts: opts}
}

// Rank orders members of g restricted to the induced subgraph. Edges leaving
// the cluster are ignored.
func (r *Ranker) Rank(ctx context.Context, g *graph.Directed, members []int) (Ranking, error) {
	nodes := make([]int, 0, len(members))
	seen := make(map[int]bool, len(members))
	for _, u := range members {
		if u <= graph.Drain || u >= g.NumNodes {
			return Ranking{}, fmt.Errorf("member %d out of range [1, %d)", u, g.NumNodes)
		}
		if !seen[u] {
			seen[u] = true
			nodes = append(nodes, u)
		}
	}
	sort.Ints(nodes)

	switch len(nodes) {
	case 0:
		return Ranking{Order: []int{}, Scores: Scores{}, Method: StrategyTrivial}, nil
	case 1:
		return Ranking{Order: nodes, Scores: Scores{nodes[0]: 1.0}, Method: StrategyTrivial}, nil
	}

	sub := induce(g, nodes)
	if r.opts.SizeThreshold > 0 && len(nodes) >= r.opts.SizeThreshold {
		return r.rankLarge(ctx, sub)
	}
	return r.rankWalk(ctx, sub)
}

func (r *Ranker) rankWalk(ctx context.Context, sub *subgraph) (Ranking, error) {
	c := sub.walk(r.opts.TeleportWeight)
	budget := progress.NewBudget(r.opts.Clock, r.opts.TimeBudget)

	res, err := c.iterate(ctx, r.opts.MaxIterations, r.opts.Epsilon, budget)
	if err != nil {
		return Ranking{}, err
	}
	r.opts.Metrics.ObserveRank(res.iterations)
	if res.expired {
		r.opts.Metrics.Expired("rank")
		r.opts.Logger.Warn().
			Int("members", len(sub.nodes)).
			Int("iterations", res.iterations).
			Dur("budget", r.opts.TimeBudget).
			Msg("Ranking time budget exhausted, using current scores")
	}
	if !massOK(res.scores) {
		r.opts.Logger.Warn().
			Int("members", len(sub.nodes)).
			Float64("mass", floats.Sum(res.scores)).
			Msg("Ranking mass drifted")
	}

	scores := make(Scores, len(sub.nodes))
	for i, u := range sub.nodes {
		scores[u] = res.scores[i]
	}
	order := append([]int(nil), sub.nodes...)
	sortByScore(order, scores)

	return Ranking{
		Order:      order,
		Scores:     scores,
		Method:     StrategyPageRank,
		Iterations: res.iterations,
		Expired:    res.expired,
	}, nil
}

func (r *Ranker) rankLarge(ctx context.Context, sub *subgraph) (Ranking, error) {
	indeg := sub.inDegree()
	byDegree := append([]int(nil), sub.nodes...)
	sortByScore(byDegree, indeg)

	r.opts.Logger.Debug().
		Int("members", len(sub.nodes)).
		Str("strategy", string(r.opts.LargeStrategy)).
		Msg("Large cluster, using heuristic ranking")

	if r.opts.LargeStrategy != StrategyCloseness {
		return Ranking{Order: byDegree, Scores: indeg, Method: StrategyInDegree}, nil
	}

	m := r.opts.ClosenessCandidates
	if m <= 0 || m > len(byDegree) {
		m = len(byDegree)
	}
	candidates := byDegree[:m]
	closeness, err := sub.closeness(ctx, candidates)
	if err != nil {
		return Ranking{}, err
	}

	head := append([]int(nil), candidates...)
	sort.SliceStable(head, func(i, j int) bool {
		return closeness[head[i]] > closeness[head[j]]
	})
	order := append(head, byDegree[m:]...)

	return Ranking{Order: order, Scores: closeness, Method: StrategyCloseness}, nil
}

func sortNames(names []string, s map[string]float64) {
	sort.Slice(names, func(i, j int) bool {
		a, b := s[names[i]], s[names[j]]
		if a != b {
			return a > b
		}
		return names[i] < names[j]
	})
}
