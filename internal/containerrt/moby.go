package containerrt

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"encoding/json"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// MobyEngine implements Engine against a real Docker daemon via the
// official SDK client.
type MobyEngine struct {
	cli *client.Client
}

// NewMobyEngine connects to the daemon at socketAddr (empty string selects
// client.FromEnv's default, typically unix:///var/run/docker.sock).
func NewMobyEngine(socketAddr string) (*MobyEngine, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if socketAddr != "" {
		opts = append(opts, client.WithHost(socketAddr))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &MobyEngine{cli: cli}, nil
}

// Client exposes the underlying SDK client for callers that need
// lower-level daemon access the Engine interface doesn't cover, such as
// the event watcher's subscription to the event stream.
func (e *MobyEngine) Client() *client.Client { return e.cli }

// BuildImage tars contextDir and sends it to the daemon's build endpoint,
// streaming build output to buildOutput so the caller can retain the tail
// for BuildError reporting (§4.5, §7).
func (e *MobyEngine) BuildImage(ctx context.Context, contextDir, tag string, labels map[string]string, buildOutput io.Writer) (string, error) {
	buildCtx, err := tarDirectory(contextDir)
	if err != nil {
		return "", fmt.Errorf("building tar context: %w", err)
	}

	resp, err := e.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{tag},
		Remove:      true,
		ForceRemove: true,
		Labels:      labels,
	})
	if err != nil {
		return "", fmt.Errorf("build request failed: %w", err)
	}
	defer resp.Body.Close()

	imageID, err := drainBuildResponse(resp.Body, buildOutput)
	if err != nil {
		return "", err
	}
	if imageID == "" {
		// Older daemons don't emit an aux imageID message; resolve by tag.
		inspect, _, inspectErr := e.cli.ImageInspectWithRaw(ctx, tag)
		if inspectErr == nil {
			imageID = inspect.ID
		}
	}
	return imageID, nil
}

func (e *MobyEngine) RunContainer(ctx context.Context, spec RunSpec) (string, []PortBinding, error) {
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	exposedPorts := make(nat.PortSet)
	portBindings := make(nat.PortMap)
	for _, p := range spec.Ports {
		containerPort := nat.Port(strconv.Itoa(p.Container) + "/tcp")
		exposedPorts[containerPort] = struct{}{}
		hostPort := ""
		if p.Host != 0 {
			hostPort = strconv.Itoa(p.Host)
		}
		portBindings[containerPort] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: hostPort}}
	}

	memLimit := spec.MemLimit
	if memLimit == 0 {
		memLimit = DefaultMemLimitBytes
	}
	cpuQuota := spec.CPUQuota
	if cpuQuota == 0 {
		cpuQuota = DefaultCPUQuota
	}

	cfg := &container.Config{
		Image:        spec.Image,
		Env:          env,
		ExposedPorts: exposedPorts,
		Labels:       spec.Labels,
	}
	hostCfg := &container.HostConfig{
		PortBindings: portBindings,
		Resources: container.Resources{
			Memory:    memLimit,
			CPUPeriod: DefaultCPUPeriod,
			CPUQuota:  cpuQuota,
		},
	}
	var netCfg *network.NetworkingConfig
	if spec.Network != "" {
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {},
			},
		}
	}

	resp, err := e.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		return "", nil, fmt.Errorf("creating container %s: %w", spec.Name, err)
	}

	if err := e.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return resp.ID, nil, fmt.Errorf("starting container %s: %w", resp.ID, err)
	}

	assigned, err := e.resolvedPorts(ctx, resp.ID, spec.Ports)
	if err != nil {
		return resp.ID, nil, err
	}
	return resp.ID, assigned, nil
}

func (e *MobyEngine) resolvedPorts(ctx context.Context, id string, requested []PortBinding) ([]PortBinding, error) {
	inspect, err := e.cli.ContainerInspect(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("inspecting container %s for port resolution: %w", id, err)
	}
	out := make([]PortBinding, 0, len(requested))
	for _, p := range requested {
		key := nat.Port(strconv.Itoa(p.Container) + "/tcp")
		bindings, ok := inspect.NetworkSettings.Ports[key]
		if !ok || len(bindings) == 0 {
			out = append(out, p)
			continue
		}
		hostPort, _ := strconv.Atoi(bindings[0].HostPort)
		out = append(out, PortBinding{Container: p.Container, Host: hostPort})
	}
	return out, nil
}

func (e *MobyEngine) InspectContainer(ctx context.Context, id string) (InspectResult, error) {
	inspect, err := e.cli.ContainerInspect(ctx, id)
	if err != nil {
		return InspectResult{}, fmt.Errorf("inspecting container %s: %w", id, err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, inspect.Created)

	var ports []PortBinding
	for containerPort, bindings := range inspect.NetworkSettings.Ports {
		if len(bindings) == 0 {
			continue
		}
		hostPort, _ := strconv.Atoi(bindings[0].HostPort)
		ports = append(ports, PortBinding{Container: containerPort.Int(), Host: hostPort})
	}

	var networks []string
	for name := range inspect.NetworkSettings.Networks {
		networks = append(networks, name)
	}

	exitCode := 0
	if inspect.State != nil {
		exitCode = inspect.State.ExitCode
	}

	return InspectResult{
		ID:        inspect.ID,
		Status:    inspect.State.Status,
		Ports:     ports,
		CreatedAt: createdAt,
		Networks:  networks,
		ExitCode:  exitCode,
	}, nil
}

func (e *MobyEngine) Logs(ctx context.Context, id string, tail int, timestamps bool) ([]byte, error) {
	tailStr := "all"
	if tail > 0 {
		tailStr = strconv.Itoa(tail)
	}
	reader, err := e.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tailStr,
		Timestamps: timestamps,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching logs for %s: %w", id, err)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func (e *MobyEngine) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	secs := int(timeout.Seconds())
	if err := e.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &secs}); err != nil {
		return fmt.Errorf("stopping container %s: %w", id, err)
	}
	return nil
}

func (e *MobyEngine) RemoveContainer(ctx context.Context, id string, force bool) error {
	if err := e.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: force}); err != nil {
		return fmt.Errorf("removing container %s: %w", id, err)
	}
	return nil
}

func (e *MobyEngine) Stats(ctx context.Context, id string) (StatsSnapshot, error) {
	resp, err := e.cli.ContainerStatsOneShot(ctx, id)
	if err != nil {
		return StatsSnapshot{}, fmt.Errorf("sampling stats for %s: %w", id, err)
	}
	defer resp.Body.Close()

	var raw types.StatsJSON
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return StatsSnapshot{}, fmt.Errorf("decoding stats for %s: %w", id, err)
	}
	return snapshotFromStatsJSON(raw), nil
}

func (e *MobyEngine) EnsureNetwork(ctx context.Context, name string) error {
	networks, err := e.cli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return fmt.Errorf("listing networks: %w", err)
	}
	for _, n := range networks {
		if n.Name == name {
			return nil
		}
	}
	_, err = e.cli.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{"dprod": "true"},
	})
	if err != nil {
		return fmt.Errorf("creating network %s: %w", name, err)
	}
	return nil
}

func (e *MobyEngine) Close() error {
	return e.cli.Close()
}

// tarDirectory packages a directory tree as an uncompressed tar stream
// suitable for ImageBuild's build context argument.
func tarDirectory(root string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
			return tw.WriteHeader(hdr)
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
