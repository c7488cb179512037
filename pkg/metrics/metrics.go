// Package metrics holds the Prometheus instruments for clustering and
// ranking passes.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Collector holds all Prometheus metrics for one run. A nil *Collector is
// valid; every method is then a no-op.
type Collector struct {
	registry *prometheus.Registry

	FlowComputations prometheus.Counter
	AugmentingPaths  prometheus.Counter
	Merges           prometheus.Counter
	BudgetExpired    *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	RankIterations   prometheus.Histogram
	ClustersReported prometheus.Counter
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		FlowComputations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_computations_total",
			Help:      "Number of max-flow computations started",
		}),
		AugmentingPaths: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "augmenting_paths_total",
			Help:      "Number of augmenting paths pushed",
		}),
		Merges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "Number of union operations that merged two classes",
		}),
		BudgetExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_expired_total",
			Help:      "Number of passes stopped early by their time budget",
		}, []string{"operation"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
		RankIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rank_iterations",
			Help:      "Power iterations performed per ranking call",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000, 5000},
		}),
		ClustersReported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clusters_reported_total",
			Help:      "Number of clusters emitted by the reporting traversal",
		}),
	}

	registry.MustRegister(
		c.FlowComputations,
		c.AugmentingPaths,
		c.Merges,
		c.BudgetExpired,
		c.StageDuration,
		c.RankIterations,
		c.ClustersReported,
	)

	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) FlowStarted() {
	if c != nil {
		c.FlowComputations.Inc()
	}
}

func (c *Collector) PathAugmented() {
	if c != nil {
		c.AugmentingPaths.Inc()
	}
}

func (c *Collector) Merged(n int) {
	if c != nil && n > 0 {
		c.Merges.Add(float64(n))
	}
}

func (c *Collector) Expired(operation string) {
	if c != nil {
		c.BudgetExpired.WithLabelValues(operation).Inc()
	}
}

func (c *Collector) ObserveStage(stage string, took time.Duration) {
	if c != nil {
		c.StageDuration.WithLabelValues(stage).Observe(took.Seconds())
	}
}

func (c *Collector) ObserveRank(iterations int) {
	if c != nil {
		c.RankIterations.Observe(float64(iterations))
	}
}

func (c *Collector) Reported() {
	if c != nil {
		c.ClustersReported.Inc()
	}
}

// WriteText writes every gathered metric family in the Prometheus text format.
func (c *Collector) WriteText(w io.Writer) error {
	if c == nil {
		return nil
	}
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
