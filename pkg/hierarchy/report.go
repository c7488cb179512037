package hierarchy

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gilchrisn/cutcluster/pkg/graph"
	"github.com/gilchrisn/cutcluster/pkg/metrics"
	"github.com/gilchrisn/cutcluster/pkg/ranking"
)

// MemberRanker orders the members of a cluster.
type MemberRanker interface {
	Rank(ctx context.Context, g *graph.Directed, members []int) (ranking.Ranking, error)
}

// TermDescriber picks descriptive terms for a cluster.
type TermDescriber interface {
	Describe(members []int) []string
}

// ReportOptions configures Report.
type ReportOptions struct {
	MinClusterSize int
	TopMembers     int
	Workers        int

	Ranker    MemberRanker
	Describer TermDescriber
	Metrics   *metrics.Collector
	Logger    zerolog.Logger
}

// Line is one reported cluster.
type Line struct {
	Depth   int              `json:"depth"`
	Level   int              `json:"level"`
	Root    int              `json:"root"`
	Size    int              `json:"size"`
	Leaders []int            `json:"leaders"`
	Terms   []string         `json:"terms"`
	Method  ranking.Strategy `json:"method"`
}

// Report walks the tree from the root and emits one line per cluster worth
// showing. Children smaller than MinClusterSize are dropped. When exactly one
// child is left the walk descends into it without a line, so long chains of
// unchanged clusters print once. Otherwise the children are listed largest
// first (ties by representative), each followed by its own subtree one
// level deeper.
//
// Sibling clusters are ranked and described concurrently; the output order
// does not depend on scheduling.
func Report(ctx context.Context, t *Tree, g *graph.Directed, opts ReportOptions) ([]Line, error) {
	if opts.Ranker == nil {
		return nil, fmt.Errorf("report needs a member ranker")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	type frame struct {
		node  *Node
		depth int
		line  *Line
	}

	var lines []Line
	stack := []frame{{node: t.Root}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.line != nil {
			lines = append(lines, *top.line)
			opts.Metrics.Reported()
			continue
		}

		kids := qualifying(top.node, opts.MinClusterSize)
		switch len(kids) {
		case 0:
			continue
		case 1:
			stack = append(stack, frame{node: kids[0], depth: top.depth})
			continue
		}

		described, err := describeAll(ctx, t, g, kids, top.depth, workers, opts)
		if err != nil {
			return nil, err
		}
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack,
				frame{node: kids[i], depth: top.depth + 1},
				frame{line: &described[i]},
			)
		}
	}

	opts.Logger.Info().
		Int("lines", len(lines)).
		Int("min_cluster_size", opts.MinClusterSize).
		Msg("Report assembled")
	return lines, nil
}

func qualifying(n *Node, minSize int) []*Node {
	if n == nil || n.Kind == Leaf {
		return nil
	}
	kids := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		if c.Size >= minSize {
			kids = append(kids, c)
		}
	}
	sort.Slice(kids, func(i, j int) bool {
		if kids[i].Size != kids[j].Size {
			return kids[i].Size > kids[j].Size
		}
		return kids[i].ID < kids[j].ID
	})
	return kids
}

func describeAll(ctx context.Context, t *Tree, g *graph.Directed, kids []*Node, depth, workers int, opts ReportOptions) ([]Line, error) {
	lines := make([]Line, len(kids))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for i, c := range kids {
		i, c := i, c
		eg.Go(func() error {
			members := t.Members(c)
			r, err := opts.Ranker.Rank(egCtx, g, members)
			if err != nil {
				return fmt.Errorf("ranking cluster %d at level %d: %w", c.ID, c.Level, err)
			}
			var terms []string
			if opts.Describer != nil {
				terms = opts.Describer.Describe(members)
			}
			lines[i] = Line{
				Depth:   depth,
				Level:   c.Level,
				Root:    c.ID,
				Size:    c.Size,
				Leaders: append([]int(nil), r.Top(opts.TopMembers)...),
				Terms:   terms,
				Method:  r.Method,
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return lines, nil
}

// WriteText renders lines as "<size>, led by <names>, talking about <terms>",
// indented two spaces per depth.
func WriteText(w io.Writer, lines []Line, names *graph.Names) error {
	for _, l := range lines {
		leaders := make([]string, len(l.Leaders))
		for i, u := range l.Leaders {
			leaders[i] = names.Name(u)
		}
		_, err := fmt.Fprintf(w, "%s%d, led by %s, talking about %s\n",
			strings.Repeat("  ", l.Depth), l.Size,
			strings.Join(leaders, " "), strings.Join(l.Terms, " "))
		if err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	return nil
}
