package status

import (
	"testing"
	"time"

	"github.com/dprod-run/dprod/internal/crypto"
	"github.com/dprod-run/dprod/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testMasterKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestSaveAndLoadEnvironmentRoundTrip(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	projectID := uuid.NewString()
	deploymentID := uuid.NewString()
	_, err = store.CreateProject(domain.Project{
		ID: projectID, Slug: "app", DisplayName: "app", OwnerUserID: "u", CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, store.CreateDeployment(domain.Deployment{
		ID: deploymentID, ProjectID: projectID, CreatedAt: time.Now(),
	}))

	key := testMasterKey()
	env := map[string]string{"DATABASE_URL": "postgres://secret", "API_KEY": "hunter2"}
	require.NoError(t, store.SaveEnvironment(deploymentID, env, key))

	loaded, err := store.LoadEnvironment(deploymentID, key)
	require.NoError(t, err)
	require.Equal(t, env, loaded)
}

func TestLoadEnvironmentFailsUnderWrongDeploymentID(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	projectID := uuid.NewString()
	depA := uuid.NewString()
	depB := uuid.NewString()
	_, err = store.CreateProject(domain.Project{
		ID: projectID, Slug: "app", DisplayName: "app", OwnerUserID: "u", CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, store.CreateDeployment(domain.Deployment{ID: depA, ProjectID: projectID, CreatedAt: time.Now()}))
	require.NoError(t, store.CreateDeployment(domain.Deployment{ID: depB, ProjectID: projectID, CreatedAt: time.Now()}))

	key := testMasterKey()
	require.NoError(t, store.SaveEnvironment(depA, map[string]string{"SECRET": "value"}, key))

	row := store.db.QueryRow(`SELECT encrypted_value FROM environment_secrets WHERE deployment_id = ? AND key = ?`, depA, "SECRET")
	var token string
	require.NoError(t, row.Scan(&token))

	_, err = crypto.DecryptForDeployment(key, depB, token)
	require.Error(t, err)
}
