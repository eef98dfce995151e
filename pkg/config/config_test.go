package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	c := LoadFromEnv()
	assert.Equal(t, 30*time.Second, c.Engine.DefaultTimeout)
	assert.Equal(t, 100, c.Engine.DefaultTransitiveDepth)
	assert.Equal(t, 1_000, c.Engine.MaxTransitiveDepth)
	assert.Equal(t, 1, c.Engine.SameBindingLimit)
	assert.Equal(t, 10_000, c.Engine.ActionLimit)
	assert.Equal(t, "error", c.Engine.AcyclicCheckOverflow)
	assert.True(t, c.Database.InMemory)
	assert.NoError(t, c.Validate())
}

func TestLoadFromEnvOverride(t *testing.T) {
	t.Setenv("MEW_ENGINE_MAX_TRANSITIVE_DEPTH", "8")
	t.Setenv("MEW_ENGINE_DEFAULT_TRANSITIVE_DEPTH", "16")
	c := LoadFromEnv()
	assert.Equal(t, 8, c.Engine.MaxTransitiveDepth)
	assert.Error(t, c.Validate())
}

func TestLoadFromFileOverlay(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "mew-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("engine:\n  max_cascade_count: 42\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	c := LoadFromEnv()
	require.NoError(t, c.LoadFromFile(f.Name()))
	assert.Equal(t, 42, c.Engine.MaxCascadeCount)
}

func TestLoadFromFileMissingIsNotError(t *testing.T) {
	c := LoadFromEnv()
	assert.NoError(t, c.LoadFromFile("/nonexistent/mew.yaml"))
}

func TestFeatureFlagsToggle(t *testing.T) {
	restore := WithPlanCacheDisabled()
	assert.False(t, IsPlanCacheEnabled())
	restore()
	assert.True(t, IsPlanCacheEnabled())
}
