// Package orchestrator implements the Deployment Orchestrator (C6): the
// extract → detect → synthesize → build → run → inspect → publish
// pipeline that turns a source bundle into a running container.
package orchestrator

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dprod-run/dprod/internal/containerrt"
	"github.com/dprod-run/dprod/internal/detect"
	"github.com/dprod-run/dprod/internal/domain"
	"github.com/dprod-run/dprod/internal/errs"
	"github.com/dprod-run/dprod/internal/recipe"
	"github.com/rs/zerolog/log"
)

// DeploymentInfo is the successful result of Deploy (§4.4 step 7).
type DeploymentInfo struct {
	ProjectID   string
	ContainerID string
	ImageID     string
	Status      string
	URL         string
	Ports       []containerrt.PortBinding
	Config      domain.Config
}

// Orchestrator holds the active-deployment map (C6's non-persistent
// container record) guarded by a mutex, and the collaborators it drives.
type Orchestrator struct {
	engine    containerrt.Engine
	detector  *detect.Engine
	devMode   bool
	baseDomain string

	mu      sync.Mutex
	records map[string]domain.ContainerRecord // keyed by project id
}

// New builds an Orchestrator. devMode selects localhost URLs; when false,
// URLs are composed as https://<subdomain>.<baseDomain>.
func New(engine containerrt.Engine, detector *detect.Engine, devMode bool, baseDomain string) *Orchestrator {
	return &Orchestrator{
		engine:     engine,
		detector:   detector,
		devMode:    devMode,
		baseDomain: baseDomain,
		records:    make(map[string]domain.ContainerRecord),
	}
}

// BuildLogSink receives build output lines as they stream from the
// container runtime, so callers (the worker, via C9) can append structured
// log entries without the orchestrator knowing about persistence.
type BuildLogSink interface {
	Append(message string)
}

// Deploy runs the full pipeline against an already-extracted project
// directory: detect, synthesize, build, run, inspect, publish. Bundle
// extraction is handled by ExtractBundle so callers control the temp
// directory's lifetime precisely (§4.4 step 1's scoped-release
// requirement lives at the call site, not inside Deploy).
func (o *Orchestrator) Deploy(ctx context.Context, projectID, projectName, slug string, bundleDir string, env map[string]string, logs BuildLogSink) (DeploymentInfo, error) {
	cfg, err := o.detector.Detect(bundleDir)
	if err != nil {
		return DeploymentInfo{}, errs.Wrap(errs.KindDetection, err)
	}
	if cfg.Environment == nil {
		cfg.Environment = make(map[string]string)
	}
	for k, v := range env {
		cfg.Environment[k] = v
	}

	rec, err := recipe.Synthesize(cfg)
	if err != nil {
		return DeploymentInfo{}, errs.Wrap(errs.KindBuild, err)
	}
	if err := writeRecipe(bundleDir, rec); err != nil {
		return DeploymentInfo{}, errs.Wrap(errs.KindBuild, err)
	}

	tag := fmt.Sprintf("dprod/%s:latest", slug)
	labels := map[string]string{
		"dprod":      "true",
		"project":    projectName,
		"project_id": projectID,
	}

	buildLog := &tailCollector{sink: logs}
	imageID, err := o.engine.BuildImage(ctx, bundleDir, tag, labels, buildLog)
	if err != nil {
		return DeploymentInfo{}, errs.WrapWithLog(errs.KindBuild, err, buildLog.Tail(64))
	}
	if logs != nil {
		logs.Append(fmt.Sprintf("image built %s", shortID(imageID)))
	}

	name := containerName(slug)
	runSpec := containerrt.RunSpec{
		Image:  imageID,
		Name:   name,
		Env:    cfg.Environment,
		Labels: labels,
		Ports:  []containerrt.PortBinding{{Container: cfg.Port}},
	}
	containerID, ports, err := o.engine.RunContainer(ctx, runSpec)
	if err != nil {
		return DeploymentInfo{}, errs.Wrap(errs.KindRuntime, err)
	}

	inspect, err := o.engine.InspectContainer(ctx, containerID)
	if err != nil {
		return DeploymentInfo{}, errs.Wrap(errs.KindRuntime, err)
	}

	hostPort := firstHostPort(ports, inspect.Ports)
	url := o.composeURL(slug, hostPort)

	info := DeploymentInfo{
		ProjectID:   projectID,
		ContainerID: containerID,
		ImageID:     imageID,
		Status:      "running",
		URL:         url,
		Ports:       ports,
		Config:      cfg,
	}

	o.mu.Lock()
	o.records[projectID] = domain.ContainerRecord{
		ProjectID:   projectID,
		ContainerID: containerID,
		ImageID:     imageID,
		Status:      "running",
		Ports:       toDomainPorts(ports),
		CreatedAt:   time.Now(),
		Config:      cfg,
	}
	o.mu.Unlock()

	return info, nil
}

// Record returns the in-memory container record for a project, if any.
// Non-persistent across restart, as §3 specifies; callers that need an
// authoritative view after a crash must re-derive it from the container
// runtime (InspectContainer against recovered labels).
func (o *Orchestrator) Record(projectID string) (domain.ContainerRecord, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.records[projectID]
	return r, ok
}

func (o *Orchestrator) composeURL(slug string, hostPort int) string {
	if o.devMode {
		return fmt.Sprintf("http://localhost:%d", hostPort)
	}
	return fmt.Sprintf("https://%s.%s", slug, o.baseDomain)
}

func firstHostPort(assigned []containerrt.PortBinding, inspected []containerrt.PortBinding) int {
	for _, p := range assigned {
		if p.Host != 0 {
			return p.Host
		}
	}
	for _, p := range inspected {
		if p.Host != 0 {
			return p.Host
		}
	}
	return 0
}

func toDomainPorts(ports []containerrt.PortBinding) []domain.PortBinding {
	out := make([]domain.PortBinding, len(ports))
	for i, p := range ports {
		out[i] = domain.PortBinding{Container: p.Container, Host: p.Host}
	}
	return out
}

func writeRecipe(dir string, r recipe.Recipe) error {
	if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte(r.Dockerfile), 0o644); err != nil {
		return fmt.Errorf("writing Dockerfile: %w", err)
	}
	for name, content := range r.AuxFiles {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}

// containerName follows the dprod-<slug>-<random8> convention (§4.3).
func containerName(slug string) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		log.Warn().Err(err).Msg("falling back to time-based container suffix")
		return fmt.Sprintf("dprod-%s-%08x", slug, time.Now().UnixNano()&0xffffffff)
	}
	return fmt.Sprintf("dprod-%s-%s", slug, hex.EncodeToString(buf))
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// tailCollector implements io.Writer, forwarding each line to an optional
// BuildLogSink while retaining the last lines for BuildError reporting.
type tailCollector struct {
	sink BuildLogSink
	mu   sync.Mutex
	tail []string
}

func (c *tailCollector) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		c.tail = append(c.tail, line)
		if c.sink != nil {
			c.sink.Append(line)
		}
	}
	return len(p), nil
}

func (c *tailCollector) Tail(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return errs.TailLines(c.tail, n)
}

// ExtractBundle gunzips and untars r into a fresh temporary directory,
// returning its path and a cleanup func the caller must defer-call on
// every exit path (§4.4 step 1's scoped-acquisition requirement).
func ExtractBundle(r io.Reader) (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "dprod-bundle-*")
	if err != nil {
		return "", nil, errs.Wrap(errs.KindExtraction, err)
	}
	cleanup = func() { os.RemoveAll(dir) }

	gz, err := gzip.NewReader(r)
	if err != nil {
		cleanup()
		return "", nil, errs.Wrap(errs.KindExtraction, fmt.Errorf("opening gzip stream: %w", err))
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	count := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			cleanup()
			return "", nil, errs.Wrap(errs.KindExtraction, fmt.Errorf("reading tar entry: %w", err))
		}

		target := filepath.Join(dir, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
			cleanup()
			return "", nil, errs.Wrap(errs.KindExtraction, fmt.Errorf("tar entry escapes bundle root: %s", hdr.Name))
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				cleanup()
				return "", nil, errs.Wrap(errs.KindExtraction, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				cleanup()
				return "", nil, errs.Wrap(errs.KindExtraction, err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode&0o777))
			if err != nil {
				cleanup()
				return "", nil, errs.Wrap(errs.KindExtraction, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				cleanup()
				return "", nil, errs.Wrap(errs.KindExtraction, err)
			}
			f.Close()
			count++
		}
	}

	if count == 0 {
		cleanup()
		return "", nil, errs.New(errs.KindExtraction, "bundle contains no regular files")
	}

	return dir, cleanup, nil
}
