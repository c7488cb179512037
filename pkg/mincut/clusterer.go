// Package mincut implements cut clustering (Flake, Tarjan and Tsioutsiouliklis,
// "Graph Clustering and Minimum Cut Trees", 2004) over a background graph.
package mincut

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/cutcluster/pkg/metrics"
	"github.com/gilchrisn/cutcluster/pkg/progress"
	"github.com/gilchrisn/cutcluster/pkg/trace"
	"github.com/gilchrisn/cutcluster/pkg/unionfind"
)

// residualEpsilon is the smallest residual capacity treated as usable.
// Float subtraction leaves crumbs like 1e-17 on saturated edges.
const residualEpsilon = 1e-12

// Options configures a clustering pass.
type Options struct {
	// TimeBudget bounds one pass. It is checked between source nodes, never
	// inside an augmenting path search. Zero means unlimited.
	TimeBudget time.Duration

	Reporter *progress.Reporter
	Metrics  *metrics.Collector
	Tracker  *trace.MergeTracker
	Logger   zerolog.Logger
}

// PassStats summarises one clustering pass.
type PassStats struct {
	Level    int           `json:"level"`
	Alpha    float64       `json:"alpha"`
	Nodes    int           `json:"nodes"`
	Sources  int           `json:"sources"`
	Paths    int           `json:"paths"`
	Merges   int           `json:"merges"`
	Expired  bool          `json:"expired"`
	Duration time.Duration `json:"duration"`
}

// Clusterer runs min-cut clustering passes.
type Clusterer struct {
	opts Options
}

// NewClusterer creates a clusterer.
func NewClusterer(opts Options) *Clusterer {
	return &Clusterer{opts: opts}
}

// Run merges the classes of uf along the min cuts of bg. For every class x,
// heaviest first, it computes a maximum flow from x to the drain and unions x
// with every class still reachable from x in the residual graph. Classes
// swept into an earlier cut are not used as sources again.
//
// When the time budget runs out the pass stops between two sources; merges
// already made are kept and stats.Expired is set.
func (c *Clusterer) Run(ctx context.Context, bg *Background, uf *unionfind.UnionFind, level int) (PassStats, error) {
	logger := c.opts.Logger
	clock := c.opts.Reporter.Clock()
	start := clock.Now()
	budget := progress.NewBudget(clock, c.opts.TimeBudget)

	n := bg.Len()
	stats := PassStats{Level: level, Alpha: bg.Alpha, Nodes: n - 1}

	order := make([]int, 0, n-1)
	for u := 1; u < n; u++ {
		order = append(order, u)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return bg.Degree[order[i]] > bg.Degree[order[j]]
	})

	f := newFlow(bg, c.opts.Metrics)
	touched := make([]bool, n)
	numTouched := 0

	logger.Debug().
		Int("level", level).
		Float64("alpha", bg.Alpha).
		Int("nodes", n-1).
		Int("edges", len(bg.Targets)/2).
		Msg("Starting clustering pass")

	for _, x := range order {
		if touched[x] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if budget.Expired() {
			stats.Expired = true
			c.opts.Metrics.Expired("flow")
			logger.Warn().
				Int("level", level).
				Float64("alpha", bg.Alpha).
				Int("touched", numTouched).
				Int("nodes", n-1).
				Dur("budget", c.opts.TimeBudget).
				Msg("Flow time budget exhausted, keeping partial clustering")
			break
		}

		c.opts.Metrics.FlowStarted()
		stats.Sources++
		paths, seen := f.minCut(x)
		stats.Paths += paths

		merged := 0
		for _, y := range seen {
			if !touched[y] {
				touched[y] = true
				numTouched++
			}
			if uf.Union(bg.Roots[x], bg.Roots[y]) {
				merged++
				c.opts.Tracker.LogMerge(level, bg.Alpha, bg.Roots[x], bg.Roots[y], uf.Find(bg.Roots[x]))
			}
		}
		stats.Merges += merged
		c.opts.Metrics.Merged(merged)

		c.opts.Reporter.Tick("clustering", numTouched, n-1)
	}

	stats.Duration = clock.Now().Sub(start)
	c.opts.Metrics.ObserveStage("clustering", stats.Duration)

	logger.Info().
		Int("level", level).
		Float64("alpha", bg.Alpha).
		Int("nodes", stats.Nodes).
		Int("sources", stats.Sources).
		Int("paths", stats.Paths).
		Int("merges", stats.Merges).
		Dur("took", stats.Duration).
		Msg("Clustering pass completed")

	return stats, nil
}

// flow holds the scratch buffers reused across sources.
type flow struct {
	bg       *Background
	metrics  *metrics.Collector
	residual []float64
	pred     []int // edge record used to reach a node
	mark     []int
	stamp    int
	queue    []int
}

func newFlow(bg *Background, collector *metrics.Collector) *flow {
	return &flow{
		bg:       bg,
		metrics:  collector,
		residual: make([]float64, len(bg.Weights)),
		pred:     make([]int, bg.Len()),
		mark:     make([]int, bg.Len()),
		queue:    make([]int, 0, bg.Len()),
	}
}

// minCut runs Edmonds-Karp from x to the drain and returns the number of
// augmenting paths and the source side of the minimum cut (x included).
func (f *flow) minCut(x int) (int, []int) {
	copy(f.residual, f.bg.Weights)
	paths := 0
	for f.augmentingPath(x) {
		f.push(x)
		f.metrics.PathAugmented()
		paths++
	}
	seen := make([]int, len(f.queue))
	copy(seen, f.queue)
	return paths, seen
}

// augmentingPath runs a breadth-first search over edges with positive
// residual capacity. On failure f.queue holds every node reached.
func (f *flow) augmentingPath(x int) bool {
	f.stamp++
	f.queue = f.queue[:0]
	f.queue = append(f.queue, x)
	f.mark[x] = f.stamp

	for head := 0; head < len(f.queue); head++ {
		u := f.queue[head]
		targets, _, first := f.bg.Edges(u)
		for i, v := range targets {
			e := first + i
			if f.residual[e] <= residualEpsilon || f.mark[v] == f.stamp {
				continue
			}
			f.mark[v] = f.stamp
			f.pred[v] = e
			if v == 0 {
				return true
			}
			f.queue = append(f.queue, v)
		}
	}
	return false
}

// push sends the bottleneck residual capacity along the path found by the
// last search.
func (f *flow) push(x int) {
	bottleneck := -1.0
	for v := 0; v != x; {
		e := f.pred[v]
		if bottleneck < 0 || f.residual[e] < bottleneck {
			bottleneck = f.residual[e]
		}
		v = f.bg.Targets[f.bg.Twin[e]]
	}
	for v := 0; v != x; {
		e := f.pred[v]
		f.residual[e] -= bottleneck
		f.residual[f.bg.Twin[e]] += bottleneck
		v = f.bg.Targets[f.bg.Twin[e]]
	}
}
