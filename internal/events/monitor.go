// Package events watches the Docker event stream for out-of-band container
// deaths and folds them into the deployment state machine (A7, §4.9).
package events

import (
	"context"
	"fmt"

	"github.com/dprod-run/dprod/internal/domain"
	"github.com/dprod-run/dprod/internal/status"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog"
)

// Watcher subscribes to the Docker daemon's event stream, filtered down to
// containers dprod itself started, and reports crashes to the status
// updater so a running deployment doesn't sit stale until the next poll.
type Watcher struct {
	client *client.Client
	store  status.Updater
	logger zerolog.Logger
}

func New(dockerClient *client.Client, store status.Updater, logger zerolog.Logger) *Watcher {
	return &Watcher{client: dockerClient, store: store, logger: logger}
}

// Run subscribes to container die/oom events carrying the dprod=true label
// and marks the owning deployment failed. It blocks until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	args := filters.NewArgs()
	args.Add("type", "container")
	args.Add("label", "dprod=true")

	eventsChan, errChan := w.client.Events(ctx, events.ListOptions{Filters: args})

	w.logger.Info().Msg("event watcher subscribed to docker event stream")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errChan:
			if err != nil {
				w.logger.Error().Err(err).Msg("docker event stream error")
			}
		case evt := <-eventsChan:
			w.handle(evt)
		}
	}
}

// handle reacts to a single Docker event. Only die/oom events for
// containers carrying a project_id label (every container dprod starts
// does, via RunSpec.Labels) are acted on; everything else is ignored.
func (w *Watcher) handle(evt events.Message) {
	if string(evt.Type) != "container" {
		return
	}

	action := string(evt.Action)
	if action != "die" && action != "oom" {
		return
	}

	deploymentID := evt.Actor.Attributes["project_id"]
	if deploymentID == "" {
		return
	}

	current, err := w.store.GetStatus(deploymentID)
	if err != nil {
		w.logger.Error().Err(err).Str("deployment_id", deploymentID).Msg("status lookup failed for crashed container")
		return
	}
	if current == domain.StatusFailed || current == domain.StatusStopped {
		// Already terminal for an unrelated reason; the crash event is
		// redundant (e.g. the worker issued the stop that produced "die").
		return
	}

	reason := fmt.Sprintf("container crash observed: %s", action)
	if err := w.store.MarkFailed(deploymentID, reason); err != nil {
		w.logger.Error().Err(err).Str("deployment_id", deploymentID).Msg("failed to persist crash-observed failure")
		return
	}
	_ = w.store.AppendLog(deploymentID, "event-watcher", reason)
	w.logger.Warn().Str("deployment_id", deploymentID).Str("container_id", evt.Actor.ID).Str("action", action).Msg("container crashed out of band")
}
