package status

import (
	"testing"
	"time"

	"github.com/dprod-run/dprod/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedDeployment(t *testing.T, s *Store) (projectID, deploymentID string) {
	t.Helper()
	projectID = uuid.NewString()
	deploymentID = uuid.NewString()

	_, err := s.CreateProject(domain.Project{
		ID: projectID, OwnerUserID: "u1", DisplayName: "app", Slug: "app",
		Tech: domain.TechNodeJS, Status: domain.ProjectStatusActive, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, s.CreateDeployment(domain.Deployment{
		ID: deploymentID, ProjectID: projectID, CreatedAt: time.Now(),
	}))
	return
}

func TestLifecycleTransitionsPersistExpectedColumns(t *testing.T) {
	s := newTestStore(t)
	_, depID := seedDeployment(t, s)

	require.NoError(t, s.MarkBuilding(depID, "worker-1"))
	d, err := s.GetDeployment(depID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBuilding, d.Status)
	assert.NotNil(t, d.BuildStartedAt)
	assert.Equal(t, 1, d.AttemptCount)

	require.NoError(t, s.MarkDeploying(depID, "img-123"))
	d, err = s.GetDeployment(depID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeploying, d.Status)
	assert.Equal(t, "img-123", d.ImageID)
	assert.NotNil(t, d.BuildCompleteAt)

	require.NoError(t, s.MarkRunning(depID, "container-1", "http://localhost:3000"))
	d, err = s.GetDeployment(depID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, d.Status)
	assert.Equal(t, "container-1", d.ContainerID)
	assert.Equal(t, "http://localhost:3000", d.URL)
	assert.NotNil(t, d.DeployedAt)
}

func TestMarkFailedPersistsFailureReason(t *testing.T) {
	s := newTestStore(t)
	_, depID := seedDeployment(t, s)

	require.NoError(t, s.MarkBuilding(depID, "worker-1"))
	require.NoError(t, s.MarkFailed(depID, "build:npm install exited 1"))

	d, err := s.GetDeployment(depID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, d.Status)
	assert.Equal(t, "build:npm install exited 1", d.FailureReason)
	assert.NotNil(t, d.FailedAt)
}

func TestAppendLogIsOrderedAndAppendOnly(t *testing.T) {
	s := newTestStore(t)
	_, depID := seedDeployment(t, s)

	require.NoError(t, s.AppendLog(depID, "worker-1", "build started"))
	require.NoError(t, s.AppendLog(depID, "worker-1", "image built abc123"))

	d, err := s.GetDeployment(depID)
	require.NoError(t, err)
	require.Len(t, d.Logs, 2)
	assert.Equal(t, int64(1), d.Logs[0].Sequence)
	assert.Equal(t, "build started", d.Logs[0].Message)
	assert.Equal(t, int64(2), d.Logs[1].Sequence)
	assert.Equal(t, "image built abc123", d.Logs[1].Message)
}

func TestCreateProjectAppendsSuffixOnSlugCollision(t *testing.T) {
	s := newTestStore(t)
	p1, err := s.CreateProject(domain.Project{ID: uuid.NewString(), Slug: "dup", DisplayName: "a", OwnerUserID: "u", CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, "dup", p1.Slug)

	p2, err := s.CreateProject(domain.Project{ID: uuid.NewString(), Slug: "dup", DisplayName: "b", OwnerUserID: "u", CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, "dup-1", p2.Slug)
}
