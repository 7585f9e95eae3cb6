package status

import (
	"fmt"
	"time"

	"github.com/dprod-run/dprod/internal/domain"
)

// Updater is the capability set the worker (C8) drives through a
// deployment's lifecycle (§4.6). Each method persists exactly the columns
// the transition table names for that edge.
type Updater interface {
	GetStatus(deploymentID string) (domain.DeploymentStatus, error)
	MarkBuilding(deploymentID, workerID string) error
	MarkDeploying(deploymentID, imageID string) error
	MarkRunning(deploymentID, containerID, url string) error
	MarkFailed(deploymentID, failureReason string) error
	MarkStopped(deploymentID string) error
	AppendLog(deploymentID, workerID, message string) error
}

var _ Updater = (*Store)(nil)

// GetStatus reads only the status column, used by the worker's duplicate-
// delivery check (§4.5/§5 at-least-once handling) before doing any work.
func (s *Store) GetStatus(deploymentID string) (domain.DeploymentStatus, error) {
	var statusStr string
	err := s.db.QueryRow(`SELECT status FROM deployments WHERE id = ?`, deploymentID).Scan(&statusStr)
	if err != nil {
		return "", fmt.Errorf("reading status for %s: %w", deploymentID, err)
	}
	return domain.DeploymentStatus(statusStr), nil
}

// MarkBuilding transitions queued→building, persisting build_started_at
// and bumping attempt_count. A worker observing an already-building
// deployment (§8 scenario S6, a redelivered message after a crash) still
// calls this: it is a no-op status update with a fresh worker_id.
func (s *Store) MarkBuilding(deploymentID, workerID string) error {
	_, err := s.db.Exec(
		`UPDATE deployments
		 SET status = ?, worker_id = ?, attempt_count = attempt_count + 1,
		     build_started_at = COALESCE(build_started_at, ?)
		 WHERE id = ?`,
		string(domain.StatusBuilding), workerID, time.Now(), deploymentID,
	)
	if err != nil {
		return fmt.Errorf("marking %s building: %w", deploymentID, err)
	}
	return nil
}

// MarkDeploying transitions building→deploying, persisting image_id and
// build_complete_at.
func (s *Store) MarkDeploying(deploymentID, imageID string) error {
	_, err := s.db.Exec(
		`UPDATE deployments SET status = ?, image_id = ?, build_complete_at = ? WHERE id = ?`,
		string(domain.StatusDeploying), imageID, time.Now(), deploymentID,
	)
	if err != nil {
		return fmt.Errorf("marking %s deploying: %w", deploymentID, err)
	}
	return nil
}

// MarkRunning transitions deploying→running, persisting container_id, url,
// and deployed_at.
func (s *Store) MarkRunning(deploymentID, containerID, url string) error {
	_, err := s.db.Exec(
		`UPDATE deployments SET status = ?, container_id = ?, url = ?, deployed_at = ? WHERE id = ?`,
		string(domain.StatusRunning), containerID, url, time.Now(), deploymentID,
	)
	if err != nil {
		return fmt.Errorf("marking %s running: %w", deploymentID, err)
	}
	return nil
}

// MarkFailed sets the deployment to failed, persisting failure_reason and
// failed_at. It does not check the current status: callers decide whether
// the transition applies (the event watcher uses it on running rows).
func (s *Store) MarkFailed(deploymentID, failureReason string) error {
	_, err := s.db.Exec(
		`UPDATE deployments SET status = ?, failure_reason = ?, failed_at = ? WHERE id = ?`,
		string(domain.StatusFailed), failureReason, time.Now(), deploymentID,
	)
	if err != nil {
		return fmt.Errorf("marking %s failed: %w", deploymentID, err)
	}
	return nil
}

// MarkStopped transitions running→stopped by explicit request, persisting
// stopped_at.
func (s *Store) MarkStopped(deploymentID string) error {
	_, err := s.db.Exec(
		`UPDATE deployments SET status = ?, stopped_at = ? WHERE id = ?`,
		string(domain.StatusStopped), time.Now(), deploymentID,
	)
	if err != nil {
		return fmt.Errorf("marking %s stopped: %w", deploymentID, err)
	}
	return nil
}

// AppendLog appends a totally-ordered build-log entry (§5: "one writer per
// deployment" makes a simple MAX(sequence)+1 safe without a dedicated
// sequence table).
func (s *Store) AppendLog(deploymentID, workerID, message string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning log append transaction: %w", err)
	}
	defer tx.Rollback()

	var next int64
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM build_log_entries WHERE deployment_id = ?`,
		deploymentID,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("computing next log sequence: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO build_log_entries (deployment_id, sequence, timestamp, message, worker_id)
		 VALUES (?, ?, ?, ?, ?)`,
		deploymentID, next, time.Now(), message, workerID,
	)
	if err != nil {
		return fmt.Errorf("inserting log entry: %w", err)
	}

	return tx.Commit()
}
