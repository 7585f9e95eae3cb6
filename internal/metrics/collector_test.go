package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollectorRegistersMetrics(t *testing.T) {
	c := NewCollector()
	require.NotNil(t, c.Registry())

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, want := range []string{
		"dprod_worker_uptime_seconds",
		"dprod_jobs_active",
		"dprod_builds_total",
		"dprod_deployments_total",
		"dprod_build_duration_seconds",
		"dprod_deploy_duration_seconds",
	} {
		assert.True(t, names[want], "expected metric %s to be registered", want)
	}
}

func TestRecordBuildAndDeployment(t *testing.T) {
	c := NewCollector()
	c.RecordBuild(true, 2*time.Second)
	c.RecordBuild(false, time.Second)
	c.RecordDeployment("running", 500*time.Millisecond)
	c.RecordDeployment("failed", time.Second)

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	for _, f := range families {
		switch f.GetName() {
		case "dprod_builds_total":
			assert.Len(t, f.Metric, 2)
		case "dprod_deployments_total":
			assert.Len(t, f.Metric, 2)
		}
	}
}

func TestActiveJobsGauge(t *testing.T) {
	c := NewCollector()
	c.IncActiveJobs()
	c.IncActiveJobs()
	c.DecActiveJobs()

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	for _, f := range families {
		if f.GetName() == "dprod_jobs_active" {
			require.Len(t, f.Metric, 1)
			assert.Equal(t, float64(1), f.Metric[0].GetGauge().GetValue())
			return
		}
	}
	t.Fatal("dprod_jobs_active metric not found")
}
