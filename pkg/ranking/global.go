package ranking

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/gilchrisn/cutcluster/pkg/graph"
	"github.com/gilchrisn/cutcluster/pkg/metrics"
	"github.com/gilchrisn/cutcluster/pkg/progress"
)

// GlobalOptions configures a GlobalRanker.
type GlobalOptions struct {
	// Taxation is the share of every node's score that teleports.
	Taxation      float64
	Epsilon       float64
	MaxIterations int
	TimeBudget    time.Duration

	Clock   progress.Clock
	Metrics *metrics.Collector
	Logger  zerolog.Logger
}

// DefaultGlobalOptions returns taxation 0.15 and a 0.001 max-norm stop.
func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		Taxation:      0.15,
		Epsilon:       0.001,
		MaxIterations: 10000,
		Clock:         progress.SystemClock{},
		Logger:        zerolog.Nop(),
	}
}

// GlobalResult holds whole-graph scores.
type GlobalResult struct {
	Scores     Scores
	Iterations int
	Converged  bool
	Expired    bool
	// LostFlow is the mass that teleported or left a sink in the final step.
	LostFlow float64
}

// GlobalRanker scores every node of a graph.
type GlobalRanker struct {
	opts GlobalOptions
}

// NewGlobalRanker creates a global ranker.
func NewGlobalRanker(opts GlobalOptions) *GlobalRanker {
	if opts.Clock == nil {
		opts.Clock = progress.SystemClock{}
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 10000
	}
	return &GlobalRanker{opts: opts}
}

// Rank runs the taxed walk over g. Node u follows edge w with probability
// (1-taxation)*w/tw(u); the remainder, and the full score of a node without
// out-edges, is spread evenly over all nodes. Scores sum to the node count.
func (r *GlobalRanker) Rank(ctx context.Context, g *graph.Directed) (GlobalResult, error) {
	logger := r.opts.Logger
	n := g.NumNodes - 1
	if n <= 0 {
		return GlobalResult{Scores: Scores{}, Converged: true}, nil
	}

	c := &chain{
		n:       n,
		offsets: make([]int, n+1),
		targets: make([]int, 0, g.NumEdges()),
		probs:   make([]float64, 0, g.NumEdges()),
		leak:    make([]float64, n),
	}
	keep := 1 - r.opts.Taxation
	for u := 1; u <= n; u++ {
		i := u - 1
		tw := g.OutWeight[u]
		targets, weights := g.Neighbors(u)
		if tw <= 0 || len(targets) == 0 {
			c.leak[i] = 1.0
		} else {
			for k, v := range targets {
				c.targets = append(c.targets, v-1)
				c.probs = append(c.probs, keep*weights[k]/tw)
			}
			c.leak[i] = r.opts.Taxation
		}
		c.offsets[i+1] = len(c.targets)
	}

	budget := progress.NewBudget(r.opts.Clock, r.opts.TimeBudget)
	start := r.opts.Clock.Now()
	res, err := c.iterate(ctx, r.opts.MaxIterations, r.opts.Epsilon, budget)
	if err != nil {
		return GlobalResult{}, err
	}
	r.opts.Metrics.ObserveRank(res.iterations)
	r.opts.Metrics.ObserveStage("global_rank", r.opts.Clock.Now().Sub(start))

	out := GlobalResult{
		Scores:     make(Scores, n),
		Iterations: res.iterations,
		Converged:  r.opts.Epsilon > 0 && res.delta < r.opts.Epsilon,
		Expired:    res.expired,
		LostFlow:   res.lost,
	}
	for i, s := range res.scores {
		out.Scores[i+1] = s
	}

	if res.expired {
		r.opts.Metrics.Expired("global_rank")
		logger.Warn().
			Int("iterations", res.iterations).
			Dur("budget", r.opts.TimeBudget).
			Msg("Global ranking time budget exhausted, using current scores")
	} else if !out.Converged && r.opts.Epsilon > 0 {
		logger.Warn().
			Int("iterations", res.iterations).
			Float64("delta", res.delta).
			Msg("Global ranking hit the iteration cap before converging")
	}
	if !massOK(res.scores) {
		logger.Warn().
			Float64("mass", floats.Sum(res.scores)).
			Int("nodes", n).
			Msg("Global ranking mass drifted")
	}

	logger.Info().
		Int("nodes", n).
		Int("iterations", res.iterations).
		Float64("lost_flow", res.lost).
		Msg("Global ranking completed")

	return out, nil
}

// Distribute hands every node's score to the items it mentioned, split
// evenly; an item listed twice by a node gets two shares. Nodes without
// items pass nothing on.
func Distribute(scores Scores, items map[int][]string) map[string]float64 {
	totals := make(map[string]float64)
	for u, list := range items {
		if len(list) == 0 {
			continue
		}
		s, ok := scores[u]
		if !ok {
			continue
		}
		share := s / float64(len(list))
		for _, item := range list {
			totals[item] += share
		}
	}
	return totals
}

// TopItems returns up to k items by descending score, ties by name.
func TopItems(totals map[string]float64, k int) []string {
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sortNames(names, totals)
	if k >= 0 && k < len(names) {
		names = names[:k]
	}
	return names
}
