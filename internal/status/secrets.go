package status

import (
	"fmt"
	"sort"

	"github.com/dprod-run/dprod/internal/crypto"
)

// SaveEnvironment encrypts every value in env with masterKey and persists
// it against deploymentID, so a deployment's Config.Environment survives a
// worker restart without secrets ever touching disk in plaintext.
func (s *Store) SaveEnvironment(deploymentID string, env map[string]string, masterKey []byte) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning environment save transaction: %w", err)
	}
	defer tx.Rollback()

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		token, err := crypto.EncryptForDeployment(masterKey, deploymentID, env[k])
		if err != nil {
			return fmt.Errorf("encrypting %s: %w", k, err)
		}
		_, err = tx.Exec(
			`INSERT INTO environment_secrets (deployment_id, key, encrypted_value) VALUES (?, ?, ?)
			 ON CONFLICT(deployment_id, key) DO UPDATE SET encrypted_value = excluded.encrypted_value`,
			deploymentID, k, token,
		)
		if err != nil {
			return fmt.Errorf("persisting encrypted value for %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// LoadEnvironment decrypts and returns the environment map previously
// saved for deploymentID.
func (s *Store) LoadEnvironment(deploymentID string, masterKey []byte) (map[string]string, error) {
	rows, err := s.db.Query(
		`SELECT key, encrypted_value FROM environment_secrets WHERE deployment_id = ?`, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("loading environment for %s: %w", deploymentID, err)
	}
	defer rows.Close()

	env := make(map[string]string)
	for rows.Next() {
		var key, token string
		if err := rows.Scan(&key, &token); err != nil {
			return nil, fmt.Errorf("scanning environment row: %w", err)
		}
		value, err := crypto.DecryptForDeployment(masterKey, deploymentID, token)
		if err != nil {
			return nil, fmt.Errorf("decrypting %s: %w", key, err)
		}
		env[key] = value
	}
	return env, rows.Err()
}
