package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/dprod-run/dprod/internal/containerrt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleClassifiesOptimalByDefault(t *testing.T) {
	mock := containerrt.NewMockEngine()
	mock.SetMockStats(containerrt.StatsSnapshot{
		CPUPercent:   45,
		MemoryUsageB: 50 * 1024 * 1024,
		MemoryLimitB: 100 * 1024 * 1024,
		SampledAt:    time.Now(),
	})

	s := NewSampler(mock, 0.015)
	r, err := s.Sample(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, UtilizationOptimal, r.CPUClass)
	assert.Equal(t, UtilizationOptimal, r.MemoryClass)
	assert.Equal(t, 50.0, r.MemoryPercent)
	assert.Contains(t, r.Hints, "Resource utilization is within the optimal range")
}

func TestSampleClassifiesLowCPUAndHighMemory(t *testing.T) {
	mock := containerrt.NewMockEngine()
	mock.SetMockStats(containerrt.StatsSnapshot{
		CPUPercent:   2,
		MemoryUsageB: 95 * 1024 * 1024,
		MemoryLimitB: 100 * 1024 * 1024,
	})

	s := NewSampler(mock, 0.015)
	r, err := s.Sample(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, UtilizationLow, r.CPUClass)
	assert.Equal(t, UtilizationHigh, r.MemoryClass)
	assert.Len(t, r.Hints, 2)
}

func TestSamplePropagatesEngineError(t *testing.T) {
	mock := containerrt.NewMockEngine()
	mock.SetStatsError(assertError("daemon unreachable"))

	s := NewSampler(mock, 0.015)
	_, err := s.Sample(context.Background(), "c1")
	assert.Error(t, err)
}

func TestCostPerHourScalesWithMemoryLimit(t *testing.T) {
	mock := containerrt.NewMockEngine()
	mock.SetMockStats(containerrt.StatsSnapshot{
		MemoryLimitB: 2 * 1024 * 1024 * 1024, // 2 GB
	})

	s := NewSampler(mock, 0.02)
	r, err := s.Sample(context.Background(), "c1")
	require.NoError(t, err)
	assert.InDelta(t, 0.04, r.CostPerHour, 0.0001)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertError(msg string) error { return simpleErr(msg) }
