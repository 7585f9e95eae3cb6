package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	c := Load()
	assert.Equal(t, 3, c.MaxConcurrentJobs)
	assert.Equal(t, 20*time.Second, c.PollInterval)
	assert.Equal(t, 15*time.Minute, c.MessageVisibilityTimeout)
	assert.Equal(t, "dev", c.DeployMode)
	assert.False(t, c.IsProd())
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_JOBS", "8")
	t.Setenv("MESSAGE_VISIBILITY_TIMEOUT", "45s")
	t.Setenv("DEPLOY_MODE", "prod")
	t.Setenv("BASE_DOMAIN", "example.com")

	c := Load()
	assert.Equal(t, 8, c.MaxConcurrentJobs)
	assert.Equal(t, 45*time.Second, c.MessageVisibilityTimeout)
	assert.True(t, c.IsProd())
	assert.Equal(t, "example.com", c.BaseDomain)
}

func TestDurationEnvAcceptsBareSeconds(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "30")
	c := Load()
	assert.Equal(t, 30*time.Second, c.PollInterval)
}
