package metrics

import (
	"sync"
	"time"

	"github.com/skimworks/skim/types"
)

// seriesCache is a TTL cache private to the metric source. Nothing
// outside this package ever sees cached state; rules only consume
// immutable series values.
type seriesCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	clock   func() time.Time
}

type cacheEntry struct {
	series  types.MetricSeries
	expires time.Time
}

func newSeriesCache(ttl time.Duration, clock func() time.Time) *seriesCache {
	if clock == nil {
		clock = time.Now
	}
	return &seriesCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		clock:   clock,
	}
}

func (c *seriesCache) get(key string) (types.MetricSeries, bool) {
	if c.ttl <= 0 {
		return types.MetricSeries{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || c.clock().After(entry.expires) {
		delete(c.entries, key)
		return types.MetricSeries{}, false
	}
	return entry.series, true
}

func (c *seriesCache) put(key string, series types.MetricSeries) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{series: series, expires: c.clock().Add(c.ttl)}
}
