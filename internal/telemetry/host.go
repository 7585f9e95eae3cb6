package telemetry

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// HostSnapshot is a worker-host-level reading, distinct from a container's
// own stats — it answers "is this worker machine itself under pressure",
// which informs whether MAX_CONCURRENT_JOBS should be turned down.
type HostSnapshot struct {
	CPUPercent    float64
	MemoryPercent float64
	MemoryUsedMB  float64
	MemoryTotalMB float64
}

// SampleHost reads the worker process's own machine utilization via
// gopsutil, independent of any container.
func SampleHost(ctx context.Context) (HostSnapshot, error) {
	percentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return HostSnapshot{}, fmt.Errorf("sampling host cpu: %w", err)
	}
	cpuPct := 0.0
	if len(percentages) > 0 {
		cpuPct = percentages[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return HostSnapshot{}, fmt.Errorf("sampling host memory: %w", err)
	}

	const mb = 1024 * 1024
	return HostSnapshot{
		CPUPercent:    cpuPct,
		MemoryPercent: vm.UsedPercent,
		MemoryUsedMB:  float64(vm.Used) / mb,
		MemoryTotalMB: float64(vm.Total) / mb,
	}, nil
}
