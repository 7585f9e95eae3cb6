// Command dprodd is the worker daemon: it polls the job queue, drives the
// build-and-run pipeline, reports status, and serves the ops endpoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dprod-run/dprod/internal/config"
	"github.com/dprod-run/dprod/internal/containerrt"
	"github.com/dprod-run/dprod/internal/detect"
	"github.com/dprod-run/dprod/internal/events"
	"github.com/dprod-run/dprod/internal/logging"
	"github.com/dprod-run/dprod/internal/metrics"
	"github.com/dprod-run/dprod/internal/ops"
	"github.com/dprod-run/dprod/internal/orchestrator"
	"github.com/dprod-run/dprod/internal/queue"
	"github.com/dprod-run/dprod/internal/status"
	"github.com/dprod-run/dprod/internal/worker"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, !cfg.IsProd())

	store, err := status.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open status store")
	}
	defer store.Close()

	engine, err := containerrt.NewMobyEngine(cfg.DockerSocket)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to docker daemon")
	}
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.EnsureNetwork(ctx, cfg.ContainerNetwork); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure container network")
	}

	var q queue.Queue
	if cfg.SQSQueueURL != "" {
		sqsQueue, err := queue.NewSQSQueue(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to construct sqs queue")
		}
		q = sqsQueue
		log.Info().Str("queue_url", cfg.SQSQueueURL).Msg("using SQS job queue")
	} else {
		q = queue.NewMemQueue(cfg.MaxConcurrentJobs * 4)
		log.Warn().Msg("SQS_QUEUE_URL not set, using in-memory queue (single-process only)")
	}

	orch := orchestrator.New(engine, detect.NewEngine(), !cfg.IsProd(), cfg.BaseDomain)

	w := worker.New(worker.Config{
		WorkerID:                 cfg.WorkerID,
		MaxConcurrentJobs:        cfg.MaxConcurrentJobs,
		PollInterval:             cfg.PollInterval,
		MessageVisibilityTimeout: cfg.MessageVisibilityTimeout,
	}, q, orch, store, logging.ForWorker(cfg.WorkerID))

	metrics.InitGlobal()
	watcher := events.New(engine.Client(), store, logging.ForWorker(cfg.WorkerID))
	opsServer := ops.New(cfg.HTTPAddr, metrics.DefaultCollector, store)

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("worker loop exited")
		}
	}()

	go func() {
		if err := watcher.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("event watcher exited")
		}
	}()

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting ops endpoint")
		if err := opsServer.ListenAndServe(); err != nil {
			log.Fatal().Err(err).Msg("ops endpoint failed")
		}
	}()

	log.Info().Str("worker_id", cfg.WorkerID).Int("max_concurrent_jobs", cfg.MaxConcurrentJobs).Msg("dprodd started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down dprodd")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops endpoint forced shutdown")
	}

	log.Info().Msg("dprodd exited")
}
