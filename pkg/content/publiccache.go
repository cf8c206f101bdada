package content

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/campuscms/campuscms/pkg/observability"
)

const defaultPublicCacheSize = 512

// PublicCache is an in-process LRU over published content responses.
// Any content mutation purges it wholesale; entries are cheap to rebuild
// and staleness across instances is bounded by the purge-on-write in the
// instance that took the mutation.
type PublicCache struct {
	entries *lru.Cache[string, interface{}]
	metrics *observability.Metrics
}

// NewPublicCache creates a public content cache. size <= 0 uses the
// default. metrics may be nil.
func NewPublicCache(size int, metrics *observability.Metrics) (*PublicCache, error) {
	if size <= 0 {
		size = defaultPublicCacheSize
	}
	entries, err := lru.New[string, interface{}](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create public cache: %w", err)
	}
	return &PublicCache{entries: entries, metrics: metrics}, nil
}

// Get looks up a cached response
func (c *PublicCache) Get(key string) (interface{}, bool) {
	if c == nil {
		return nil, false
	}
	value, ok := c.entries.Get(key)
	c.record(ok)
	return value, ok
}

// Add stores a response under the given key
func (c *PublicCache) Add(key string, value interface{}) {
	if c == nil {
		return
	}
	c.entries.Add(key, value)
}

// Purge drops every cached entry
func (c *PublicCache) Purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
}

// Len returns the number of cached entries
func (c *PublicCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

func (c *PublicCache) record(hit bool) {
	if c.metrics == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	c.metrics.PublicCacheHitsTotal.WithLabelValues(outcome).Inc()
}
