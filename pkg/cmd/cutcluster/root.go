package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gilchrisn/cutcluster/pkg/config"
	"github.com/gilchrisn/cutcluster/pkg/metrics"
)

// app is the state shared by every subcommand once the config is loaded.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Collector
	keys    map[*cobra.Command]flagKeys
}

// flagKeys binds command flags to config keys. Flags left unset fall back to
// the config file, the environment and the defaults, in that order.
type flagKeys map[string]string

func newRootCmd() *cobra.Command {
	a := &app{
		cfg:  config.NewConfig(),
		keys: make(map[*cobra.Command]flagKeys),
	}

	root := &cobra.Command{
		Use:           "cutcluster",
		Short:         "Min-cut clustering and ranking of mention graphs",
		Long:          "cutcluster sweeps a background pull over a directed mention graph, builds the nested min-cut cluster hierarchy and describes each cluster by its leading members and terms.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("metrics-file", "", "write Prometheus metrics in text format to this file")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			if err := a.cfg.LoadFromFile(path); err != nil {
				return err
			}
		}
		if err := a.bind(cmd, flagKeys{
			"log-level":    "logging.level",
			"metrics-file": "metrics.output_file",
		}); err != nil {
			return err
		}
		if err := a.bind(cmd, a.keys[cmd]); err != nil {
			return err
		}
		if err := a.cfg.Validate(); err != nil {
			return err
		}
		a.logger = a.cfg.CreateLogger()
		a.metrics = metrics.NewCollector("cutcluster")
		return nil
	}
	root.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return a.writeMetrics()
	}

	root.AddCommand(newClusterCmd(a), newRankCmd(a), newShowCmd(a))
	return root
}

// bind ties the named flags of cmd to config keys.
func (a *app) bind(cmd *cobra.Command, keys flagKeys) error {
	for name, key := range keys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			return fmt.Errorf("unknown flag %q", name)
		}
		if err := a.cfg.Viper().BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	return nil
}

func (a *app) writeMetrics() error {
	path := a.cfg.MetricsOutputFile()
	if path == "" {
		return nil
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	if err := a.metrics.WriteText(file); err != nil {
		file.Close()
		return err
	}
	a.logger.Info().Str("file", path).Msg("Metrics written")
	return file.Close()
}
