// Command dprod-local runs the deployment pipeline (C6) inline against a
// single bundle, with no job queue or worker involved — the "local mode"
// named in spec.md §2/§4.4 for single-node use.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dprod-run/dprod/internal/config"
	"github.com/dprod-run/dprod/internal/containerrt"
	"github.com/dprod-run/dprod/internal/detect"
	"github.com/dprod-run/dprod/internal/domain"
	"github.com/dprod-run/dprod/internal/logging"
	"github.com/dprod-run/dprod/internal/orchestrator"
	"github.com/dprod-run/dprod/internal/status"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type envFlags map[string]string

func (e envFlags) String() string { return "" }
func (e envFlags) Set(value string) error {
	k, v, ok := strings.Cut(value, "=")
	if !ok {
		return fmt.Errorf("expected KEY=VALUE, got %q", value)
	}
	e[k] = v
	return nil
}

// stdoutSink prints build log lines as they arrive, mirroring what the
// status updater would otherwise persist.
type stdoutSink struct{}

func (stdoutSink) Append(message string) { fmt.Println(message) }

func main() {
	bundlePath := flag.String("bundle", "", "path to a .tar.gz project bundle (required)")
	projectName := flag.String("name", "local-app", "project name / slug for this deployment")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s -bundle path/to/project.tar.gz [-name app] [-env KEY=VALUE ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	env := make(envFlags)
	flag.Var(env, "env", "environment variable to inject, KEY=VALUE (repeatable)")
	flag.Parse()

	if *bundlePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	logging.Setup(cfg.LogLevel, true)

	f, err := os.Open(*bundlePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open bundle")
	}
	defer f.Close()

	bundleDir, cleanup, err := orchestrator.ExtractBundle(f)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to extract bundle")
	}
	defer cleanup()

	engine, err := containerrt.NewMobyEngine(cfg.DockerSocket)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to docker daemon")
	}
	defer engine.Close()

	ctx := context.Background()
	if err := engine.EnsureNetwork(ctx, cfg.ContainerNetwork); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure container network")
	}

	orch := orchestrator.New(engine, detect.NewEngine(), !cfg.IsProd(), cfg.BaseDomain)

	store, err := status.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open status store")
	}
	defer store.Close()

	project, err := store.CreateProject(domain.Project{
		ID:          uuid.NewString(),
		OwnerUserID: "local",
		DisplayName: *projectName,
		Slug:        *projectName,
		Status:      domain.ProjectStatusActive,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create project record")
	}

	deploymentID := uuid.NewString()
	if err := store.CreateDeployment(domain.Deployment{
		ID:        deploymentID,
		ProjectID: project.ID,
		CreatedAt: time.Now(),
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to create deployment record")
	}
	if err := store.MarkBuilding(deploymentID, "local"); err != nil {
		log.Fatal().Err(err).Msg("failed to mark deployment building")
	}

	info, err := orch.Deploy(ctx, deploymentID, project.Slug, project.Slug, bundleDir, env, stdoutSink{})
	if err != nil {
		_ = store.MarkFailed(deploymentID, err.Error())
		log.Fatal().Err(err).Msg("deployment failed")
	}

	if err := store.MarkDeploying(deploymentID, info.ImageID); err != nil {
		log.Fatal().Err(err).Msg("failed to persist deploying state")
	}
	if err := store.MarkRunning(deploymentID, info.ContainerID, info.URL); err != nil {
		log.Fatal().Err(err).Msg("failed to persist running state")
	}

	fmt.Printf("deployed %s -> %s (container %s)\n", project.Slug, info.URL, shortID(info.ContainerID))
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
