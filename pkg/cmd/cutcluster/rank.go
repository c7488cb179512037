package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gilchrisn/cutcluster/pkg/graph"
	"github.com/gilchrisn/cutcluster/pkg/ranking"
	"github.com/gilchrisn/cutcluster/pkg/scorestore"
)

func newRankCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank <edges>",
		Short: "Rank every node with a taxed random walk, optionally scoring mentioned items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRank(cmd, args[0])
		},
	}

	f := cmd.Flags()
	f.String("items", "", "item file with \"node item\" rows; scores are passed on to the items")
	f.Int("top", 20, "entries printed per table")
	f.Float64("taxation", 0.15, "share of every score that teleports")
	f.Float64("epsilon", 0.001, "stop once no score moves by more than this")
	f.Int("max-iterations", 10000, "iteration cap")
	f.String("store", "", "SQLite file to save the score tables in")

	a.keys[cmd] = flagKeys{
		"taxation":       "global.taxation",
		"epsilon":        "global.epsilon",
		"max-iterations": "global.max_iterations",
		"store":          "storage.path",
	}
	return cmd
}

func (a *app) runRank(cmd *cobra.Command, edgesPath string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	top, _ := cmd.Flags().GetInt("top")

	ds, err := graph.LoadEdgeList(edgesPath)
	if err != nil {
		return err
	}

	res, err := ranking.NewGlobalRanker(a.cfg.GlobalOptions(a.logger, a.metrics)).Rank(ctx, ds.Graph)
	if err != nil {
		return fmt.Errorf("ranking failed: %w", err)
	}

	byName := make(map[string]float64, len(res.Scores))
	for u, s := range res.Scores {
		byName[ds.Names.Name(u)] = s
	}
	fmt.Fprintf(out, "# nodes (%d iterations, lost flow %.6f)\n", res.Iterations, res.LostFlow)
	if err := printTable(out, byName, top); err != nil {
		return err
	}

	var itemScores map[string]float64
	if itemsPath, _ := cmd.Flags().GetString("items"); itemsPath != "" {
		items, err := ds.LoadItems(itemsPath)
		if err != nil {
			return err
		}
		itemScores = ranking.Distribute(res.Scores, items)
		fmt.Fprintf(out, "# items (%d)\n", len(itemScores))
		if err := printTable(out, itemScores, top); err != nil {
			return err
		}
	}

	storePath := a.cfg.StoragePath()
	if storePath == "" {
		return nil
	}
	store, err := scorestore.Open(ctx, storePath)
	if err != nil {
		return err
	}
	defer store.Close()

	label := filepath.Base(edgesPath)
	run, err := store.Save(ctx, scorestore.Run{
		Kind:       scorestore.KindNodes,
		Label:      label,
		Iterations: res.Iterations,
		LostFlow:   res.LostFlow,
	}, byName)
	if err != nil {
		return err
	}
	a.logger.Info().Str("run", run.ID).Str("kind", run.Kind).Int("entries", run.Entries).Msg("Scores stored")

	if itemScores != nil {
		run, err := store.Save(ctx, scorestore.Run{
			Kind:       scorestore.KindItems,
			Label:      label,
			Iterations: res.Iterations,
		}, itemScores)
		if err != nil {
			return err
		}
		a.logger.Info().Str("run", run.ID).Str("kind", run.Kind).Int("entries", run.Entries).Msg("Scores stored")
	}
	return nil
}

func printTable(w io.Writer, scores map[string]float64, k int) error {
	for _, name := range ranking.TopItems(scores, k) {
		if _, err := fmt.Fprintf(w, "%s\t%.6f\n", name, scores[name]); err != nil {
			return err
		}
	}
	return nil
}
