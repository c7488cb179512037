// Package config holds the viper-backed run configuration and turns it into
// the option structs of the clustering, ranking and report packages.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/gilchrisn/cutcluster/pkg/hierarchy"
	"github.com/gilchrisn/cutcluster/pkg/metrics"
	"github.com/gilchrisn/cutcluster/pkg/mincut"
	"github.com/gilchrisn/cutcluster/pkg/progress"
	"github.com/gilchrisn/cutcluster/pkg/ranking"
	"github.com/gilchrisn/cutcluster/pkg/trace"
)

// EnvPrefix prefixes environment overrides, e.g. CUTCLUSTER_REPORT_MIN_CLUSTER_SIZE.
const EnvPrefix = "CUTCLUSTER"

// Config manages run configuration using Viper
type Config struct {
	v *viper.Viper
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	v := viper.New()

	// Clustering
	v.SetDefault("clustering.alphas", []float64{0.1, 0.01, 0.005, 0})
	v.SetDefault("clustering.flow_time_budget", "0s")

	// Report
	v.SetDefault("report.min_cluster_size", 20)
	v.SetDefault("report.top_members", 5)
	v.SetDefault("report.top_terms", 10)

	// Cluster ranking
	v.SetDefault("ranking.size_threshold", 5000)
	v.SetDefault("ranking.max_iterations", 1000)
	v.SetDefault("ranking.time_budget", "10s")
	v.SetDefault("ranking.teleport_weight", 1.0)
	v.SetDefault("ranking.epsilon", 0.0)
	v.SetDefault("ranking.large_strategy", string(ranking.StrategyCloseness))
	v.SetDefault("ranking.closeness_candidates", 100)

	// Whole-graph ranking
	v.SetDefault("global.taxation", 0.15)
	v.SetDefault("global.epsilon", 0.001)
	v.SetDefault("global.max_iterations", 10000)
	v.SetDefault("global.time_budget", "0s")

	v.SetDefault("algorithm.random_seed", 42)
	v.SetDefault("performance.num_workers", runtime.NumCPU())

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.progress_interval_ms", 10000)
	v.SetDefault("logging.enable_progress", true)

	v.SetDefault("analysis.track_merges", false)
	v.SetDefault("analysis.output_file", "merges.jsonl")

	v.SetDefault("storage.path", "")
	v.SetDefault("metrics.output_file", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{v: v}
}

// LoadFromFile loads configuration from file
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	if err := c.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return nil
}

// Set allows dynamic configuration changes
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// Viper exposes the underlying store for flag binding.
func (c *Config) Viper() *viper.Viper { return c.v }

// Alphas returns the background pull sequence. It accepts a list, or a
// comma or space separated string from the environment.
func (c *Config) Alphas() ([]float64, error) {
	raw := c.v.Get("clustering.alphas")
	var items []interface{}
	switch val := raw.(type) {
	case []float64:
		return append([]float64(nil), val...), nil
	case string:
		for _, f := range strings.FieldsFunc(val, func(r rune) bool { return r == ',' || r == ' ' }) {
			items = append(items, f)
		}
	default:
		s, err := cast.ToSliceE(raw)
		if err != nil {
			return nil, fmt.Errorf("clustering.alphas: %w", err)
		}
		items = s
	}

	alphas := make([]float64, 0, len(items))
	for i, item := range items {
		a, err := cast.ToFloat64E(item)
		if err != nil {
			return nil, fmt.Errorf("clustering.alphas[%d]: %w", i, err)
		}
		alphas = append(alphas, a)
	}
	return alphas, nil
}

func (c *Config) FlowTimeBudget() time.Duration { return c.v.GetDuration("clustering.flow_time_budget") }

func (c *Config) MinClusterSize() int { return c.v.GetInt("report.min_cluster_size") }
func (c *Config) TopMembers() int { return c.v.GetInt("report.top_members") }
func (c *Config) TopTerms() int { return c.v.GetInt("report.top_terms") }

func (c *Config) SizeThreshold() int { return c.v.GetInt("ranking.size_threshold") }
func (c *Config) RankMaxIterations() int { return c.v.GetInt("ranking.max_iterations") }
func (c *Config) RankTimeBudget() time.Duration { return c.v.GetDuration("ranking.time_budget") }
func (c *Config) TeleportWeight() float64 { return c.v.GetFloat64("ranking.teleport_weight") }
func (c *Config) RankEpsilon() float64 { return c.v.GetFloat64("ranking.epsilon") }
func (c *Config) LargeStrategy() string { return c.v.GetString("ranking.large_strategy") }
func (c *Config) ClosenessCandidates() int { return c.v.GetInt("ranking.closeness_candidates") }

func (c *Config) Taxation() float64 { return c.v.GetFloat64("global.taxation") }
func (c *Config) GlobalEpsilon() float64 { return c.v.GetFloat64("global.epsilon") }
func (c *Config) GlobalMaxIterations() int { return c.v.GetInt("global.max_iterations") }
func (c *Config) GlobalTimeBudget() time.Duration { return c.v.GetDuration("global.time_budget") }

func (c *Config) RandomSeed() int64 { return c.v.GetInt64("algorithm.random_seed") }
func (c *Config) NumWorkers() int { return c.v.GetInt("performance.num_workers") }

func (c *Config) LogLevel() string { return c.v.GetString("logging.level") }
func (c *Config) ProgressIntervalMS() int { return c.v.GetInt("logging.progress_interval_ms") }
func (c *Config) EnableProgress() bool { return c.v.GetBool("logging.enable_progress") }

func (c *Config) EnableMergeTracking() bool { return c.v.GetBool("analysis.track_merges") }
func (c *Config) TrackingOutputFile() string { return c.v.GetString("analysis.output_file") }

func (c *Config) StoragePath() string { return c.v.GetString("storage.path") }
func (c *Config) MetricsOutputFile() string { return c.v.GetString("metrics.output_file") }

// Validate checks every setting before a run starts.
func (c *Config) Validate() error {
	alphas, err := c.Alphas()
	if err != nil {
		return err
	}
	if err := hierarchy.ValidateAlphas(alphas); err != nil {
		return fmt.Errorf("clustering.alphas: %w", err)
	}
	if _, err := ranking.ParseStrategy(c.LargeStrategy()); err != nil {
		return fmt.Errorf("ranking.large_strategy: %w", err)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel()); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	checks := []struct {
		ok  bool
		msg string
	}{
		{c.MinClusterSize() >= 1, "report.min_cluster_size must be at least 1"},
		{c.TopMembers() >= 0, "report.top_members must not be negative"},
		{c.TopTerms() >= 0, "report.top_terms must not be negative"},
		{c.SizeThreshold() >= 0, "ranking.size_threshold must not be negative"},
		{c.RankMaxIterations() >= 1, "ranking.max_iterations must be at least 1"},
		{c.TeleportWeight() >= 0, "ranking.teleport_weight must not be negative"},
		{c.RankEpsilon() >= 0, "ranking.epsilon must not be negative"},
		{c.Taxation() >= 0 && c.Taxation() < 1, "global.taxation must be in [0, 1)"},
		{c.GlobalEpsilon() >= 0, "global.epsilon must not be negative"},
		{c.GlobalMaxIterations() >= 1, "global.max_iterations must be at least 1"},
		{c.NumWorkers() >= 1, "performance.num_workers must be at least 1"},
		{c.FlowTimeBudget() >= 0, "clustering.flow_time_budget must not be negative"},
		{c.RankTimeBudget() >= 0, "ranking.time_budget must not be negative"},
		{c.GlobalTimeBudget() >= 0, "global.time_budget must not be negative"},
	}
	for _, check := range checks {
		if !check.ok {
			return fmt.Errorf("invalid configuration: %s", check.msg)
		}
	}
	return nil
}

// CreateLogger creates a zerolog logger based on config
func (c *Config) CreateLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Str("service", "cutcluster").Logger()
}

// CreateReporter returns the heartbeat reporter for long passes.
func (c *Config) CreateReporter(logger zerolog.Logger) *progress.Reporter {
	interval := time.Duration(c.ProgressIntervalMS()) * time.Millisecond
	return progress.NewReporter(progress.SystemClock{}, logger, interval, c.EnableProgress())
}

// HierarchyOptions builds the clustering sweep options. tracker may be nil.
func (c *Config) HierarchyOptions(logger zerolog.Logger, reporter *progress.Reporter, collector *metrics.Collector, tracker *trace.MergeTracker) (hierarchy.Options, error) {
	alphas, err := c.Alphas()
	if err != nil {
		return hierarchy.Options{}, err
	}
	return hierarchy.Options{
		Alphas: alphas,
		Seed:   c.RandomSeed(),
		Clusterer: mincut.Options{
			TimeBudget: c.FlowTimeBudget(),
			Reporter:   reporter,
			Metrics:    collector,
			Tracker:    tracker,
			Logger:     logger,
		},
		Metrics: collector,
		Logger:  logger,
	}, nil
}

// RankerOptions builds the per-cluster ranking options.
func (c *Config) RankerOptions(logger zerolog.Logger, collector *metrics.Collector) (ranking.Options, error) {
	strategy, err := ranking.ParseStrategy(c.LargeStrategy())
	if err != nil {
		return ranking.Options{}, err
	}
	return ranking.Options{
		SizeThreshold:       c.SizeThreshold(),
		MaxIterations:       c.RankMaxIterations(),
		Epsilon:             c.RankEpsilon(),
		TimeBudget:          c.RankTimeBudget(),
		TeleportWeight:      c.TeleportWeight(),
		LargeStrategy:       strategy,
		ClosenessCandidates: c.ClosenessCandidates(),
		Clock:               progress.SystemClock{},
		Metrics:             collector,
		Logger:              logger,
	}, nil
}

// GlobalOptions builds the whole-graph ranking options.
func (c *Config) GlobalOptions(logger zerolog.Logger, collector *metrics.Collector) ranking.GlobalOptions {
	return ranking.GlobalOptions{
		Taxation:      c.Taxation(),
		Epsilon:       c.GlobalEpsilon(),
		MaxIterations: c.GlobalMaxIterations(),
		TimeBudget:    c.GlobalTimeBudget(),
		Clock:         progress.SystemClock{},
		Metrics:       collector,
		Logger:        logger,
	}
}

// ReportOptions builds the report options around a ranker and describer.
func (c *Config) ReportOptions(logger zerolog.Logger, collector *metrics.Collector, ranker hierarchy.MemberRanker, describer hierarchy.TermDescriber) hierarchy.ReportOptions {
	return hierarchy.ReportOptions{
		MinClusterSize: c.MinClusterSize(),
		TopMembers:     c.TopMembers(),
		Workers:        c.NumWorkers(),
		Ranker:         ranker,
		Describer:      describer,
		Metrics:        collector,
		Logger:         logger,
	}
}
