// Package telemetry implements the Telemetry Sampler (C10): snapshotting
// a live container's resource usage and deriving a utilization
// classification plus optimization hints and a cost estimate.
package telemetry

import (
	"context"
	"fmt"

	"github.com/dprod-run/dprod/internal/containerrt"
)

// Utilization classifies a dimension against the fixed thresholds of §4.7.
type Utilization string

const (
	UtilizationLow     Utilization = "low"
	UtilizationOptimal Utilization = "optimal"
	UtilizationHigh    Utilization = "high"
)

// Report is one point-in-time telemetry sample, classified and hinted.
type Report struct {
	CPUPercent    float64
	MemoryPercent float64
	MemoryUsedMB  float64
	MemoryLimitMB float64
	NetworkRxB    uint64
	NetworkTxB    uint64
	BlockReadB    uint64
	BlockWriteB   uint64

	CPUClass    Utilization
	MemoryClass Utilization
	Hints       []string
	CostPerHour float64
}

// Sampler takes telemetry snapshots against a container runtime.
type Sampler struct {
	engine          containerrt.Engine
	unitPricePerGBHour float64
}

func NewSampler(engine containerrt.Engine, unitPricePerGBHour float64) *Sampler {
	return &Sampler{engine: engine, unitPricePerGBHour: unitPricePerGBHour}
}

// Sample takes a single stats snapshot for containerID and classifies it.
func (s *Sampler) Sample(ctx context.Context, containerID string) (Report, error) {
	snap, err := s.engine.Stats(ctx, containerID)
	if err != nil {
		return Report{}, fmt.Errorf("sampling stats for %s: %w", containerID, err)
	}
	return s.classify(snap), nil
}

func (s *Sampler) classify(snap containerrt.StatsSnapshot) Report {
	const mb = 1024 * 1024
	const gb = 1024 * mb

	memPercent := 0.0
	if snap.MemoryLimitB > 0 {
		memPercent = float64(snap.MemoryUsageB) / float64(snap.MemoryLimitB) * 100
	}

	r := Report{
		CPUPercent:    snap.CPUPercent,
		MemoryPercent: memPercent,
		MemoryUsedMB:  float64(snap.MemoryUsageB) / mb,
		MemoryLimitMB: float64(snap.MemoryLimitB) / mb,
		NetworkRxB:    snap.NetworkRxB,
		NetworkTxB:    snap.NetworkTxB,
		BlockReadB:    snap.BlockReadB,
		BlockWriteB:   snap.BlockWriteB,
		CPUClass:      classifyCPU(snap.CPUPercent),
		MemoryClass:   classifyMemory(memPercent),
		CostPerHour:   (float64(snap.MemoryLimitB) / gb) * s.unitPricePerGBHour,
	}
	r.Hints = hints(r)
	return r
}

func classifyCPU(pct float64) Utilization {
	switch {
	case pct < 10:
		return UtilizationLow
	case pct > 80:
		return UtilizationHigh
	default:
		return UtilizationOptimal
	}
}

func classifyMemory(pct float64) Utilization {
	switch {
	case pct < 30:
		return UtilizationLow
	case pct > 85:
		return UtilizationHigh
	default:
		return UtilizationOptimal
	}
}

// hints emits one textual hint for each dimension (CPU, memory) that is
// outside the optimal band, or a single overall hint when both are optimal.
// A dimension never gets more than one hint.
func hints(r Report) []string {
	var out []string

	switch r.CPUClass {
	case UtilizationLow:
		out = append(out, "CPU utilization is low; consider reducing the CPU quota to cut cost")
	case UtilizationHigh:
		out = append(out, "CPU utilization is high; consider raising the CPU quota or scaling out")
	}

	switch r.MemoryClass {
	case UtilizationLow:
		out = append(out, "Memory utilization is low; consider lowering the memory limit")
	case UtilizationHigh:
		out = append(out, "Memory utilization is high; consider raising the memory limit to avoid OOM kills")
	}

	if len(out) == 0 {
		out = append(out, "Resource utilization is within the optimal range")
	}

	return out
}
