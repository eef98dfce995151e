// Package cache caches compiled query plans so repeated MATCH/WALK
// statements skip re-planning. Backed by ristretto/v2, a better fit for a
// concurrent, cost-aware cache than a mutex-guarded list.
package cache

import (
	"hash/fnv"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// PlanCache is a thread-safe, cost-aware cache for compiled query plans,
// keyed by a hash of statement text.
type PlanCache struct {
	rc      *ristretto.Cache[uint64, any]
	ttl     time.Duration
	enabled bool
}

// Stats surfaces ristretto's hit/miss counters.
type Stats struct {
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// NewPlanCache builds a plan cache with the given max cost (bytes-ish unit,
// ristretto's NumCounters is derived from it) and entry TTL (0 disables
// expiry).
func NewPlanCache(maxCost int64, ttl time.Duration) (*PlanCache, error) {
	if maxCost <= 0 {
		maxCost = 1 << 20
	}
	rc, err := ristretto.NewCache(&ristretto.Config[uint64, any]{
		NumCounters: maxCost / 8 * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &PlanCache{rc: rc, ttl: ttl, enabled: true}, nil
}

// Key hashes statement text (plus bound parameter names, not values, so a
// parameterized statement's plan is shared across calls with different
// literal bindings) into a cache key.
func (c *PlanCache) Key(statement string, paramNames []string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(statement))
	for _, p := range paramNames {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return h.Sum64()
}

// Get retrieves a cached plan.
func (c *PlanCache) Get(key uint64) (any, bool) {
	if !c.enabled {
		return nil, false
	}
	return c.rc.Get(key)
}

// Put stores a plan under key with the given cost (1 counts entries
// rather than bytes, a reasonable default).
func (c *PlanCache) Put(key uint64, plan any, cost int64) {
	if !c.enabled {
		return
	}
	if c.ttl > 0 {
		c.rc.SetWithTTL(key, plan, cost, c.ttl)
	} else {
		c.rc.Set(key, plan, cost)
	}
}

// Del evicts one cached plan.
func (c *PlanCache) Del(key uint64) {
	c.rc.Del(key)
}

// Wait blocks until all pending Set/Del calls have been applied; ristretto
// is asynchronous, so tests that assert on Stats/Get after a Put must call
// this first.
func (c *PlanCache) Wait() {
	c.rc.Wait()
}

// Clear discards every cached plan, used on LOAD ONTOLOGY (a fresh Registry
// invalidates every plan compiled against the old one).
func (c *PlanCache) Clear() {
	c.rc.Clear()
}

// SetEnabled enables or disables the cache; Put/Get become no-ops when
// disabled.
func (c *PlanCache) SetEnabled(enabled bool) {
	c.enabled = enabled
	if !enabled {
		c.rc.Clear()
	}
}

// Stats reports ristretto's hit/miss counters.
func (c *PlanCache) Stats() Stats {
	m := c.rc.Metrics
	if m == nil {
		return Stats{}
	}
	hits, misses := m.Hits(), m.Misses()
	total := hits + misses
	var rate float64
	if total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	return Stats{Hits: hits, Misses: misses, HitRate: rate}
}

// Close releases ristretto's background goroutines.
func (c *PlanCache) Close() {
	c.rc.Close()
}
