package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gilchrisn/cutcluster/pkg/describe"
	"github.com/gilchrisn/cutcluster/pkg/graph"
	"github.com/gilchrisn/cutcluster/pkg/hierarchy"
	"github.com/gilchrisn/cutcluster/pkg/ranking"
	"github.com/gilchrisn/cutcluster/pkg/trace"
)

func newClusterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster <edges>",
		Short: "Build the cluster hierarchy and print the cluster report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCluster(cmd, args[0])
		},
	}

	f := cmd.Flags()
	f.String("terms", "", "term table file with \"node term [count]\" rows")
	f.String("alphas", "", "background pulls, strongest first (e.g. 0.1,0.01,0)")
	f.Duration("flow-budget", 0, "time budget per clustering pass (0 = unlimited)")
	f.Int("min-size", 20, "smallest cluster shown in the report")
	f.Int("top", 5, "members listed per cluster")
	f.Int("terms-top", 10, "terms listed per cluster")
	f.Int("workers", 0, "clusters ranked in parallel")
	f.Int64("seed", 42, "random seed for merge tie-breaking")
	f.Bool("track-merges", false, "write every merge as a JSON line")
	f.String("merges-file", "merges.jsonl", "merge trace file")
	f.String("output-dir", "", "also write .mapping, .hierarchy and .root files here")
	f.String("prefix", "clusters", "file name prefix for --output-dir")

	a.keys[cmd] = flagKeys{
		"alphas":       "clustering.alphas",
		"flow-budget":  "clustering.flow_time_budget",
		"min-size":     "report.min_cluster_size",
		"top":          "report.top_members",
		"terms-top":    "report.top_terms",
		"workers":      "performance.num_workers",
		"seed":         "algorithm.random_seed",
		"track-merges": "analysis.track_merges",
		"merges-file":  "analysis.output_file",
	}
	return cmd
}

func (a *app) runCluster(cmd *cobra.Command, edgesPath string) error {
	ctx := cmd.Context()
	logger := a.logger
	start := time.Now()

	ds, err := graph.LoadEdgeList(edgesPath)
	if err != nil {
		return err
	}
	if termsPath, _ := cmd.Flags().GetString("terms"); termsPath != "" {
		if err := ds.LoadTerms(termsPath); err != nil {
			return err
		}
	}
	logger.Info().
		Str("file", edgesPath).
		Int("nodes", ds.Graph.NumNodes-1).
		Int("edges", ds.Graph.NumEdges()).
		Msg("Graph loaded")

	var tracker *trace.MergeTracker
	if a.cfg.EnableMergeTracking() {
		tracker, err = trace.NewMergeTracker(a.cfg.TrackingOutputFile())
		if err != nil {
			return err
		}
		defer func() {
			if cerr := tracker.Close(); cerr != nil {
				logger.Warn().Err(cerr).Msg("Failed to close merge trace")
			}
		}()
	}

	hopts, err := a.cfg.HierarchyOptions(logger, a.cfg.CreateReporter(logger), a.metrics, tracker)
	if err != nil {
		return err
	}
	tree, err := hierarchy.Build(ctx, ds.Graph, hopts)
	if err != nil {
		return fmt.Errorf("clustering failed: %w", err)
	}

	ropts, err := a.cfg.RankerOptions(logger, a.metrics)
	if err != nil {
		return err
	}
	ranker := ranking.NewRanker(ropts)
	describer := describe.NewDescriber(ds.Terms, a.cfg.TopTerms())

	lines, err := hierarchy.Report(ctx, tree, ds.Graph, a.cfg.ReportOptions(logger, a.metrics, ranker, describer))
	if err != nil {
		return fmt.Errorf("report failed: %w", err)
	}
	if err := hierarchy.WriteText(cmd.OutOrStdout(), lines, ds.Names); err != nil {
		return err
	}

	if dir, _ := cmd.Flags().GetString("output-dir"); dir != "" {
		prefix, _ := cmd.Flags().GetString("prefix")
		if err := hierarchy.NewFileWriter(ds.Names).WriteAll(tree, dir, prefix); err != nil {
			return err
		}
		logger.Info().Str("dir", dir).Str("prefix", prefix).Msg("Hierarchy files written")
	}

	logger.Info().
		Int("levels", len(tree.Levels)).
		Int("lines", len(lines)).
		Int("merges_traced", tracker.Count()).
		Dur("took", time.Since(start)).
		Msg("Cluster report completed")
	return nil
}
