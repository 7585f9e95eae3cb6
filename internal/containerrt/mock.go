package containerrt

import (
	"context"
	"io"
	"sync"
	"time"
)

// MockEngine implements Engine without a Docker daemon, for orchestrator
// and worker tests. Each capability can be made to fail via its Set*Error
// setter; successful calls record enough state for assertions.
type MockEngine struct {
	mu sync.Mutex

	buildErr   error
	runErr     error
	inspectErr error
	logsErr    error
	statsErr   error

	nextImageID     string
	nextContainerID string
	mockLogs        []byte
	mockStats       StatsSnapshot
	inspectResult   InspectResult

	BuiltContexts []string
	RunContainers []RunSpec
	Removed       []string
	Stopped       []string
	Networks      map[string]bool
}

func NewMockEngine() *MockEngine {
	return &MockEngine{
		nextImageID:     "mock-image-id",
		nextContainerID: "mock-container-id",
		inspectResult:   InspectResult{Status: "running"},
		Networks:        make(map[string]bool),
	}
}

func (m *MockEngine) SetBuildError(err error)   { m.buildErr = err }
func (m *MockEngine) SetRunError(err error)     { m.runErr = err }
func (m *MockEngine) SetInspectError(err error) { m.inspectErr = err }
func (m *MockEngine) SetLogsError(err error)    { m.logsErr = err }
func (m *MockEngine) SetStatsError(err error)   { m.statsErr = err }

func (m *MockEngine) SetNextImageID(id string)          { m.nextImageID = id }
func (m *MockEngine) SetNextContainerID(id string)      { m.nextContainerID = id }
func (m *MockEngine) SetMockLogs(b []byte)              { m.mockLogs = b }
func (m *MockEngine) SetMockStats(s StatsSnapshot)      { m.mockStats = s }
func (m *MockEngine) SetInspectResult(r InspectResult)  { m.inspectResult = r }

func (m *MockEngine) BuildImage(ctx context.Context, contextDir, tag string, labels map[string]string, buildOutput io.Writer) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BuiltContexts = append(m.BuiltContexts, contextDir)
	if m.buildErr != nil {
		if buildOutput != nil {
			buildOutput.Write([]byte(m.buildErr.Error()))
		}
		return "", m.buildErr
	}
	return m.nextImageID, nil
}

func (m *MockEngine) RunContainer(ctx context.Context, spec RunSpec) (string, []PortBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunContainers = append(m.RunContainers, spec)
	if m.runErr != nil {
		return "", nil, m.runErr
	}
	ports := make([]PortBinding, len(spec.Ports))
	for i, p := range spec.Ports {
		host := p.Host
		if host == 0 {
			host = 30000 + i
		}
		ports[i] = PortBinding{Container: p.Container, Host: host}
	}
	return m.nextContainerID, ports, nil
}

func (m *MockEngine) InspectContainer(ctx context.Context, id string) (InspectResult, error) {
	if m.inspectErr != nil {
		return InspectResult{}, m.inspectErr
	}
	r := m.inspectResult
	r.ID = id
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return r, nil
}

func (m *MockEngine) Logs(ctx context.Context, id string, tail int, timestamps bool) ([]byte, error) {
	if m.logsErr != nil {
		return nil, m.logsErr
	}
	return m.mockLogs, nil
}

func (m *MockEngine) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stopped = append(m.Stopped, id)
	return nil
}

func (m *MockEngine) RemoveContainer(ctx context.Context, id string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Removed = append(m.Removed, id)
	return nil
}

func (m *MockEngine) Stats(ctx context.Context, id string) (StatsSnapshot, error) {
	if m.statsErr != nil {
		return StatsSnapshot{}, m.statsErr
	}
	return m.mockStats, nil
}

func (m *MockEngine) EnsureNetwork(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Networks[name] = true
	return nil
}

func (m *MockEngine) Close() error { return nil }
