// Package containerrt is the Container Runtime Adapter (C5): the
// capability set the orchestrator, worker, and telemetry sampler rely on
// to build images, run and inspect containers, and stream their logs and
// stats. A Moby-SDK-backed Engine talks to the real Docker daemon; a
// MockEngine exercises the same capability set in tests.
package containerrt

import (
	"context"
	"io"
	"time"
)

// PortBinding pairs a container-internal port with the host port the
// runtime assigned it.
type PortBinding struct {
	Container int
	Host      int
}

// RunSpec describes a container to create and start.
type RunSpec struct {
	Image    string
	Name     string
	Env      map[string]string
	Ports    []PortBinding // Host left at 0 requests a dynamically assigned port
	MemLimit int64         // bytes; 0 selects the adapter default
	CPUQuota int64         // microseconds per 100ms period; 0 selects the adapter default
	Labels   map[string]string
	Network  string
}

// InspectResult is the adapter's normalized view of a container's state.
type InspectResult struct {
	ID        string
	Status    string // created, running, paused, restarting, removing, exited, dead
	Ports     []PortBinding
	CreatedAt time.Time
	Networks  []string
	ExitCode  int
}

// StatsSnapshot is one point-in-time resource reading (C10 consumes this).
type StatsSnapshot struct {
	CPUPercent    float64
	MemoryUsageB  uint64
	MemoryLimitB  uint64
	NetworkRxB    uint64
	NetworkTxB    uint64
	BlockReadB    uint64
	BlockWriteB   uint64
	SampledAt     time.Time
}

// Engine is the capability set of §4.3: build, run, inspect, tail logs,
// stop, remove, and sample stats for containers.
type Engine interface {
	BuildImage(ctx context.Context, contextDir, tag string, labels map[string]string, buildOutput io.Writer) (imageID string, err error)
	RunContainer(ctx context.Context, spec RunSpec) (containerID string, ports []PortBinding, err error)
	InspectContainer(ctx context.Context, id string) (InspectResult, error)
	Logs(ctx context.Context, id string, tail int, timestamps bool) ([]byte, error)
	StopContainer(ctx context.Context, id string, timeout time.Duration) error
	RemoveContainer(ctx context.Context, id string, force bool) error
	Stats(ctx context.Context, id string) (StatsSnapshot, error)
	EnsureNetwork(ctx context.Context, name string) error
	Close() error
}

// Default resource limits enforced when a RunSpec leaves them at zero
// (§4.3): 512 MB memory, 50% of one CPU core (period 100000, quota 50000).
const (
	DefaultMemLimitBytes = 512 * 1024 * 1024
	DefaultCPUPeriod     = int64(100_000)
	DefaultCPUQuota      = int64(50_000)
)
