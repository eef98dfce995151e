package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanCachePutGet(t *testing.T) {
	c, err := NewPlanCache(1<<16, 0)
	require.NoError(t, err)
	defer c.Close()

	key := c.Key("MATCH (n:Person) RETURN n", nil)
	c.Put(key, "compiled-plan", 1)
	c.Wait()

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "compiled-plan", got)
}

func TestPlanCacheKeyStableAcrossParamValues(t *testing.T) {
	c, err := NewPlanCache(1<<16, 0)
	require.NoError(t, err)
	defer c.Close()

	k1 := c.Key("MATCH (n:Person) WHERE n.name = $name RETURN n", []string{"name"})
	k2 := c.Key("MATCH (n:Person) WHERE n.name = $name RETURN n", []string{"name"})
	assert.Equal(t, k1, k2)
}

func TestPlanCacheDisabled(t *testing.T) {
	c, err := NewPlanCache(1<<16, 0)
	require.NoError(t, err)
	defer c.Close()

	c.SetEnabled(false)
	key := c.Key("MATCH (n) RETURN n", nil)
	c.Put(key, "plan", 1)
	c.Wait()
	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestPlanCacheTTLExpiry(t *testing.T) {
	c, err := NewPlanCache(1<<16, 10*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	key := c.Key("MATCH (n) RETURN n", nil)
	c.Put(key, "plan", 1)
	c.Wait()
	time.Sleep(50 * time.Millisecond)
	_, ok := c.Get(key)
	assert.False(t, ok)
}
