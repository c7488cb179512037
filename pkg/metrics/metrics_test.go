package metrics

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector("cutcluster")
	c.FlowStarted()
	c.FlowStarted()
	c.PathAugmented()
	c.Merged(3)
	c.Merged(0)
	c.Expired("flow")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.FlowComputations))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.AugmentingPaths))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.Merges))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.BudgetExpired.WithLabelValues("flow")))
}

func TestWriteText(t *testing.T) {
	c := NewCollector("cutcluster")
	c.ObserveStage("level", 20*time.Millisecond)
	c.ObserveRank(12)
	c.Reported()

	var buf bytes.Buffer
	require.NoError(t, c.WriteText(&buf))
	out := buf.String()
	assert.Contains(t, out, "cutcluster_clusters_reported_total 1")
	assert.Contains(t, out, `cutcluster_stage_duration_seconds_count{stage="level"} 1`)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.FlowStarted()
	c.PathAugmented()
	c.Merged(1)
	c.Expired("rank")
	c.ObserveStage("x", time.Second)
	c.ObserveRank(1)
	c.Reported()
	assert.Nil(t, c.Registry())
	assert.NoError(t, c.WriteText(&bytes.Buffer{}))
}
