// Package worker implements the Worker (C8): the long-running process
// that polls the job queue (C7), drives the orchestrator (C6) through a
// build-and-run attempt, and reports status via the status updater (C9).
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dprod-run/dprod/internal/advisor"
	"github.com/dprod-run/dprod/internal/domain"
	"github.com/dprod-run/dprod/internal/errs"
	"github.com/dprod-run/dprod/internal/metrics"
	"github.com/dprod-run/dprod/internal/orchestrator"
	"github.com/dprod-run/dprod/internal/queue"
	"github.com/dprod-run/dprod/internal/status"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config holds the worker's pacing knobs, read from the shared process
// config (§6).
type Config struct {
	WorkerID                 string
	MaxConcurrentJobs        int
	PollInterval             time.Duration
	MessageVisibilityTimeout time.Duration
}

// Worker ties a queue, an orchestrator, and a status updater together into
// the poll → dispatch → report loop of §4.5.
type Worker struct {
	cfg     Config
	q       queue.Queue
	orch    *orchestrator.Orchestrator
	store   status.Updater
	advisor advisor.Advisor
	logger  zerolog.Logger
}

// New builds a Worker with advisor.NoopAdvisor{} wired in; the advisory hook
// is never a hard dependency (§9). Use WithAdvisor to plug in a real one.
func New(cfg Config, q queue.Queue, orch *orchestrator.Orchestrator, store status.Updater, logger zerolog.Logger) *Worker {
	return &Worker{cfg: cfg, q: q, orch: orch, store: store, advisor: advisor.NoopAdvisor{}, logger: logger}
}

// WithAdvisor swaps in a real advisory-agent implementation.
func (w *Worker) WithAdvisor(a advisor.Advisor) *Worker {
	w.advisor = a
	return w
}

// Run polls the queue until ctx is canceled. Each receive batch is
// dispatched to an errgroup so one job's failure never cancels its
// siblings (§4.5 "errgroup-like semantics").
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		messages, err := w.q.Receive(ctx, w.cfg.MaxConcurrentJobs, w.cfg.PollInterval)
		if err != nil {
			w.logger.Error().Err(err).Msg("queue receive failed")
			continue
		}
		if len(messages) == 0 {
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(w.cfg.MaxConcurrentJobs)
		for _, msg := range messages {
			msg := msg
			g.Go(func() error {
				w.handle(gctx, msg)
				return nil
			})
		}
		_ = g.Wait()
	}
}

// handle processes one message end to end, never returning an error to
// the caller: every failure path is already converted into an ack/no-ack
// decision and (when applicable) a persisted failed state.
func (w *Worker) handle(ctx context.Context, msg queue.Message) {
	if msg.Job.DeploymentID == "" {
		w.logger.Error().Str("raw", string(msg.Raw)).Msg("invalid message: missing deployment_id, dropping")
		w.ackAndLog(ctx, msg.ReceiptHandle, "invalid message dropped")
		return
	}

	job := msg.Job
	existing, err := w.store.GetStatus(job.DeploymentID)
	if err != nil {
		// Persistence is unreachable: don't ack, let the queue redeliver.
		w.logger.Error().Err(err).Str("deployment_id", job.DeploymentID).Msg("status lookup failed")
		return
	}
	if existing.IsTerminal() {
		w.logger.Info().Str("deployment_id", job.DeploymentID).Str("status", string(existing)).Msg("duplicate delivery for terminal deployment, acking and discarding")
		w.store.AppendLog(job.DeploymentID, w.cfg.WorkerID, "duplicate delivery observed, deployment already "+string(existing))
		w.ackAndLog(ctx, msg.ReceiptHandle, "duplicate")
		return
	}

	stopExtend := w.extendVisibilityPeriodically(ctx, msg.ReceiptHandle)
	defer stopExtend()

	metrics.IncActiveJobs()
	defer metrics.DecActiveJobs()

	start := time.Now()
	err = w.runJob(ctx, job)
	if err != nil {
		if wrapped, ok := err.(*errs.Error); ok && wrapped.Retryable() {
			w.logger.Error().Err(err).Str("deployment_id", job.DeploymentID).Msg("retryable error, not acking")
			return
		}
		w.logger.Error().Err(err).Str("deployment_id", job.DeploymentID).Msg("job failed terminally")
		metrics.RecordDeployment("failed", time.Since(start))
	} else {
		metrics.RecordDeployment("running", time.Since(start))
	}

	w.ackAndLog(ctx, msg.ReceiptHandle, "job complete")
}

// runJob drives one deployment through building → deploying → running
// (or failed), persisting each transition via C9 per the table in §4.6.
func (w *Worker) runJob(ctx context.Context, job domain.JobMessage) error {
	if err := w.store.MarkBuilding(job.DeploymentID, w.cfg.WorkerID); err != nil {
		return errs.Wrap(errs.KindPersistence, err)
	}
	w.store.AppendLog(job.DeploymentID, w.cfg.WorkerID, fmt.Sprintf("build started on %s", w.cfg.WorkerID))

	bundleDir, cleanup, err := materializeFiles(job.ProjectFiles)
	if err != nil {
		failErr := errs.Wrap(errs.KindExtraction, err)
		w.fail(ctx, job, failErr)
		return failErr
	}
	defer cleanup()

	sink := &logAppender{store: w.store, deploymentID: job.DeploymentID, workerID: w.cfg.WorkerID}

	buildStart := time.Now()
	info, err := w.orch.Deploy(ctx, job.DeploymentID, job.ProjectName, job.ProjectName, bundleDir, job.Environment, sink)
	metrics.RecordBuild(err == nil, time.Since(buildStart))
	if err != nil {
		w.fail(ctx, job, err)
		return err
	}

	if err := w.store.MarkDeploying(job.DeploymentID, info.ImageID); err != nil {
		return errs.Wrap(errs.KindPersistence, err)
	}
	w.store.AppendLog(job.DeploymentID, w.cfg.WorkerID, fmt.Sprintf("image built %s", shortID(info.ImageID)))

	if err := w.store.MarkRunning(job.DeploymentID, info.ContainerID, info.URL); err != nil {
		return errs.Wrap(errs.KindPersistence, err)
	}
	w.store.AppendLog(job.DeploymentID, w.cfg.WorkerID, fmt.Sprintf("deployment live at %s", info.URL))
	w.verifyOutcome(ctx, job, true, "deployment reached running")
	return nil
}

func (w *Worker) fail(ctx context.Context, job domain.JobMessage, cause error) {
	var reason string
	if e, ok := cause.(*errs.Error); ok {
		reason = e.FailureReason()
	} else {
		reason = "runtime:" + cause.Error()
	}
	if err := w.store.MarkFailed(job.DeploymentID, reason); err != nil {
		w.logger.Error().Err(err).Str("deployment_id", job.DeploymentID).Msg("failed to persist failure")
	}
	w.verifyOutcome(ctx, job, false, reason)
}

// verifyOutcome reports the deployment's outcome back to the advisory hook
// when the job carries a decision id. With the default NoopAdvisor this is
// a no-op; a real advisor never blocks the pipeline on its result.
func (w *Worker) verifyOutcome(ctx context.Context, job domain.JobMessage, success bool, note string) {
	if job.DecisionID == nil || *job.DecisionID == "" {
		return
	}
	if err := w.advisor.VerifyOutcome(ctx, *job.DecisionID, success, note); err != nil {
		w.logger.Warn().Err(err).Str("decision_id", *job.DecisionID).Msg("advisor outcome report failed")
	}
}

func (w *Worker) ackAndLog(ctx context.Context, receiptHandle, reason string) {
	if err := w.q.Ack(ctx, receiptHandle); err != nil {
		w.logger.Error().Err(err).Str("reason", reason).Msg("ack failed")
	}
}

// extendVisibilityPeriodically runs a ticker at 2/3 of the visibility
// timeout so a build that runs long never loses its lease mid-flight
// (§4.5 "visibility extension"). The returned func stops the ticker.
func (w *Worker) extendVisibilityPeriodically(ctx context.Context, receiptHandle string) func() {
	interval := w.cfg.MessageVisibilityTimeout * 2 / 3
	if interval <= 0 {
		return func() {}
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := w.q.ExtendVisibility(ctx, receiptHandle, w.cfg.MessageVisibilityTimeout); err != nil {
					w.logger.Warn().Err(err).Msg("visibility extension failed")
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

// materializeFiles writes a JobMessage's path→bytes map into a fresh
// temporary directory, mirroring orchestrator.ExtractBundle's
// scoped-acquisition contract for callers that already have decoded files
// rather than a gzip-tar stream.
func materializeFiles(files map[string][]byte) (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "dprod-job-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating job workspace: %w", err)
	}
	cleanup = func() { os.RemoveAll(dir) }

	for path, content := range files {
		// ProjectFiles keys arrive over the wire (§6) and are untrusted; a
		// key like "../../etc/cron.d/x" must not escape dir, mirroring
		// orchestrator.ExtractBundle's containment check for tar entries.
		full := filepath.Join(dir, filepath.Clean(path))
		if !strings.HasPrefix(full, filepath.Clean(dir)+string(os.PathSeparator)) {
			cleanup()
			return "", nil, fmt.Errorf("project file escapes job workspace: %s", path)
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			cleanup()
			return "", nil, err
		}
		if err := os.WriteFile(full, content, 0o644); err != nil {
			cleanup()
			return "", nil, err
		}
	}
	if len(files) == 0 {
		cleanup()
		return "", nil, fmt.Errorf("job message carries no project files")
	}
	return dir, cleanup, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// logAppender adapts the status Updater to orchestrator.BuildLogSink.
type logAppender struct {
	store        status.Updater
	deploymentID string
	workerID     string
}

func (l *logAppender) Append(message string) {
	_ = l.store.AppendLog(l.deploymentID, l.workerID, message)
}
