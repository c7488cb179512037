package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gilchrisn/cutcluster/pkg/scorestore"
)

func newShowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print the top scores of a stored run (the newest one by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return a.runShow(cmd, runID)
		},
	}

	f := cmd.Flags()
	f.String("store", "", "SQLite file holding the score tables")
	f.String("kind", "", "with no run id, pick the newest run of this kind (nodes or items)")
	f.Int("top", 20, "entries printed")
	f.Bool("list", false, "list stored runs instead")

	a.keys[cmd] = flagKeys{"store": "storage.path"}
	return cmd
}

func (a *app) runShow(cmd *cobra.Command, runID string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	path := a.cfg.StoragePath()
	if path == "" {
		return fmt.Errorf("no score store configured (use --store or storage.path)")
	}
	store, err := scorestore.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	if list, _ := cmd.Flags().GetBool("list"); list {
		runs, err := store.Runs(ctx)
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Fprintf(out, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.Kind, r.Label, r.Entries, r.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	}

	var run scorestore.Run
	if runID == "" {
		kind, _ := cmd.Flags().GetString("kind")
		run, err = store.Latest(ctx, kind)
	} else {
		run, err = store.Run(ctx, runID)
	}
	if err != nil {
		return err
	}

	top, _ := cmd.Flags().GetInt("top")
	entries, err := store.Top(ctx, run.ID, top)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "# %s %s (%s)\n", run.Kind, run.ID, run.Label)
	for _, e := range entries {
		fmt.Fprintf(out, "%s\t%.6f\n", e.Key, e.Score)
	}
	return nil
}
