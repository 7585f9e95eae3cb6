// Package status implements the Status Updater (C9): persistence of
// deployment state transitions and append-only build-log entries, backed
// by SQLite.
package status

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dprod-run/dprod/internal/domain"
)

// Store is the SQLite-backed persistence layer for Projects, Deployments,
// and their build-log entries.
type Store struct {
	db *sql.DB
}

// Open creates the parent directory for a file-based DATABASE_URL (or
// connects as-is for ":memory:") and applies the schema.
func Open(databaseURL string) (*Store, error) {
	if databaseURL != ":memory:" {
		if dir := filepath.Dir(databaseURL); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
	}

	dsn := databaseURL + "?_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the underlying database connection is reachable,
// used by the ops endpoint's /healthz liveness check.
func (s *Store) Ping() error { return s.db.Ping() }

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	owner_user_id TEXT NOT NULL,
	display_name TEXT NOT NULL,
	slug TEXT NOT NULL UNIQUE,
	tech TEXT NOT NULL DEFAULT 'unknown',
	status TEXT NOT NULL DEFAULT 'pending',
	url TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS deployments (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	status TEXT NOT NULL DEFAULT 'queued',
	container_id TEXT NOT NULL DEFAULT '',
	image_id TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	worker_id TEXT NOT NULL DEFAULT '',
	attempt_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	build_started_at DATETIME,
	build_complete_at DATETIME,
	deployed_at DATETIME,
	failed_at DATETIME,
	stopped_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_deployments_project_id ON deployments(project_id);

CREATE TABLE IF NOT EXISTS build_log_entries (
	deployment_id TEXT NOT NULL REFERENCES deployments(id) ON DELETE CASCADE,
	sequence INTEGER NOT NULL,
	timestamp DATETIME NOT NULL,
	message TEXT NOT NULL,
	worker_id TEXT NOT NULL,
	PRIMARY KEY (deployment_id, sequence)
);

CREATE TABLE IF NOT EXISTS environment_secrets (
	deployment_id TEXT NOT NULL REFERENCES deployments(id) ON DELETE CASCADE,
	key TEXT NOT NULL,
	encrypted_value TEXT NOT NULL,
	PRIMARY KEY (deployment_id, key)
);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// CreateProject inserts a new project row, assigning a unique slug suffix
// on collision (§3: "the orchestrator appends a monotonic suffix").
func (s *Store) CreateProject(p domain.Project) (domain.Project, error) {
	slug := p.Slug
	for attempt := 0; ; attempt++ {
		candidate := slug
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%d", slug, attempt)
		}
		_, err := s.db.Exec(
			`INSERT INTO projects (id, owner_user_id, display_name, slug, tech, status, url, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.OwnerUserID, p.DisplayName, candidate, string(p.Tech), string(p.Status), p.URL, p.CreatedAt,
		)
		if err == nil {
			p.Slug = candidate
			return p, nil
		}
		if !isUniqueConstraintErr(err) {
			return domain.Project{}, fmt.Errorf("inserting project: %w", err)
		}
		if attempt > 1000 {
			return domain.Project{}, fmt.Errorf("exhausted slug suffixes for %s", slug)
		}
	}
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && (containsAny(err.Error(), "UNIQUE constraint failed"))
}

func containsAny(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// CreateDeployment inserts a new queued deployment row.
func (s *Store) CreateDeployment(d domain.Deployment) error {
	_, err := s.db.Exec(
		`INSERT INTO deployments (id, project_id, status, created_at, attempt_count)
		 VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.ProjectID, string(domain.StatusQueued), d.CreatedAt, 0,
	)
	if err != nil {
		return fmt.Errorf("inserting deployment: %w", err)
	}
	return nil
}

// GetDeployment loads a deployment row and its build log.
func (s *Store) GetDeployment(deploymentID string) (domain.Deployment, error) {
	row := s.db.QueryRow(
		`SELECT id, project_id, status, container_id, image_id, url, failure_reason,
		        worker_id, attempt_count, created_at,
		        build_started_at, build_complete_at, deployed_at, failed_at, stopped_at
		 FROM deployments WHERE id = ?`, deploymentID)

	var d domain.Deployment
	var statusStr string
	if err := row.Scan(
		&d.ID, &d.ProjectID, &statusStr, &d.ContainerID, &d.ImageID, &d.URL, &d.FailureReason,
		&d.WorkerID, &d.AttemptCount, &d.CreatedAt,
		&d.BuildStartedAt, &d.BuildCompleteAt, &d.DeployedAt, &d.FailedAt, &d.StoppedAt,
	); err != nil {
		return domain.Deployment{}, fmt.Errorf("loading deployment %s: %w", deploymentID, err)
	}
	d.Status = domain.DeploymentStatus(statusStr)

	logs, err := s.logsFor(deploymentID)
	if err != nil {
		return domain.Deployment{}, err
	}
	d.Logs = logs
	return d, nil
}

func (s *Store) logsFor(deploymentID string) ([]domain.BuildLogEntry, error) {
	rows, err := s.db.Query(
		`SELECT sequence, timestamp, message, worker_id FROM build_log_entries
		 WHERE deployment_id = ? ORDER BY sequence ASC`, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("loading build logs for %s: %w", deploymentID, err)
	}
	defer rows.Close()

	var entries []domain.BuildLogEntry
	for rows.Next() {
		var e domain.BuildLogEntry
		if err := rows.Scan(&e.Sequence, &e.Timestamp, &e.Message, &e.WorkerID); err != nil {
			return nil, fmt.Errorf("scanning build log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
