package worker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dprod-run/dprod/internal/containerrt"
	"github.com/dprod-run/dprod/internal/detect"
	"github.com/dprod-run/dprod/internal/domain"
	"github.com/dprod-run/dprod/internal/orchestrator"
	"github.com/dprod-run/dprod/internal/queue"
	"github.com/dprod-run/dprod/internal/status"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T) (*Worker, *status.Store, *queue.MemQueue) {
	t.Helper()
	store, err := status.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	q := queue.NewMemQueue(4)
	orch := orchestrator.New(containerrt.NewMockEngine(), detect.NewEngine(), true, "dprod.app")

	w := New(Config{
		WorkerID:                 "worker-test",
		MaxConcurrentJobs:        2,
		PollInterval:             50 * time.Millisecond,
		MessageVisibilityTimeout: time.Second,
	}, q, orch, store, zerolog.Nop())

	return w, store, q
}

func seedQueuedDeployment(t *testing.T, store *status.Store) (projectID, deploymentID string) {
	t.Helper()
	projectID = uuid.NewString()
	deploymentID = uuid.NewString()
	_, err := store.CreateProject(domain.Project{
		ID: projectID, Slug: "app", DisplayName: "app", OwnerUserID: "u", CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, store.CreateDeployment(domain.Deployment{
		ID: deploymentID, ProjectID: projectID, CreatedAt: time.Now(),
	}))
	return
}

func TestHandleNodeJobEndsRunning(t *testing.T) {
	w, store, _ := newTestWorker(t)
	_, depID := seedQueuedDeployment(t, store)

	job := domain.JobMessage{
		DeploymentID: depID,
		ProjectName:  "app",
		ProjectFiles: map[string][]byte{
			"package.json": []byte(`{"name":"app","scripts":{"start":"node server.js"}}`),
			"server.js":    []byte("listen(3000)"),
		},
	}

	w.handle(context.Background(), queue.Message{Job: job, ReceiptHandle: "rh-1"})

	d, err := store.GetDeployment(depID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRunning, d.Status)
	require.NotEmpty(t, d.URL)
	require.NotEmpty(t, d.Logs)
}

func TestHandleDuplicateDeliveryForTerminalDeploymentIsNoop(t *testing.T) {
	w, store, _ := newTestWorker(t)
	_, depID := seedQueuedDeployment(t, store)
	require.NoError(t, store.MarkBuilding(depID, "other-worker"))
	require.NoError(t, store.MarkDeploying(depID, "img"))
	require.NoError(t, store.MarkRunning(depID, "c1", "http://localhost:1"))

	job := domain.JobMessage{DeploymentID: depID, ProjectName: "app"}
	w.handle(context.Background(), queue.Message{Job: job, ReceiptHandle: "rh-2"})

	d, err := store.GetDeployment(depID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRunning, d.Status)
	require.Equal(t, "c1", d.ContainerID, "duplicate handling must not create a new container")
}

func TestHandleInvalidMessageIsDroppedWithoutStoreAccess(t *testing.T) {
	w, _, _ := newTestWorker(t)
	w.handle(context.Background(), queue.Message{Job: domain.JobMessage{}, ReceiptHandle: "rh-3", Raw: []byte("garbage")})
}

func TestHandleMissingProjectFilesFailsDeployment(t *testing.T) {
	w, store, _ := newTestWorker(t)
	_, depID := seedQueuedDeployment(t, store)

	job := domain.JobMessage{DeploymentID: depID, ProjectName: "app"}
	w.handle(context.Background(), queue.Message{Job: job, ReceiptHandle: "rh-4"})

	d, err := store.GetDeployment(depID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, d.Status)
	require.Contains(t, d.FailureReason, "extraction:")
}

func TestMaterializeFilesRejectsPathTraversal(t *testing.T) {
	_, cleanup, err := materializeFiles(map[string][]byte{
		"../../etc/cron.d/x": []byte("* * * * * root evil"),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "escapes job workspace")
	if cleanup != nil {
		cleanup()
	}
}

func TestHandleJobWithPathTraversalProjectFileFailsDeployment(t *testing.T) {
	w, store, _ := newTestWorker(t)
	_, depID := seedQueuedDeployment(t, store)

	job := domain.JobMessage{
		DeploymentID: depID,
		ProjectName:  "app",
		ProjectFiles: map[string][]byte{
			"../../etc/cron.d/x": []byte("* * * * * root evil"),
		},
	}
	w.handle(context.Background(), queue.Message{Job: job, ReceiptHandle: "rh-5"})

	d, err := store.GetDeployment(depID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, d.Status)
	require.Contains(t, d.FailureReason, "extraction:")

	_, statErr := os.Stat("/etc/cron.d/x")
	require.True(t, os.IsNotExist(statErr), "traversal key must never be written outside the job workspace")
}
