package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nullroute/nr-dns/internal/dns/domain"
	"github.com/nullroute/nr-dns/internal/dns/repos/rules"
)

// decisionCache is an LRU-backed implementation of rules.DecisionCache.
// Get and Put are each serialized under the library's single mutex, which is
// the locking discipline the cascade relies on: an observed hit can never
// race an eviction of the same entry, and values are copied out rather than
// referenced. It tracks basic metrics: hits, misses, and evictions.
type decisionCache struct {
	lru       *lru.Cache[string, domain.Decision]
	capacity  int
	hits      uint64
	misses    uint64
	evictions uint64
}

// disabledCache is a no-op DecisionCache used when size <= 0.
type disabledCache struct{}

// New creates a DecisionCache with the given capacity. If size <= 0, a
// disabled no-op cache is returned that always misses and tracks no metrics.
func New(size int) (rules.DecisionCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	var dc decisionCache
	// Use NewWithEvict to observe evictions, including Purge-induced ones.
	cache, err := lru.NewWithEvict(size, func(_ string, _ domain.Decision) {
		atomic.AddUint64(&dc.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	dc.lru = cache
	dc.capacity = size
	return &dc, nil
}

// Get looks up a decision by name, promoting the entry on hit.
func (c *decisionCache) Get(name string) (domain.Decision, bool) {
	if val, ok := c.lru.Get(name); ok {
		atomic.AddUint64(&c.hits, 1)
		return val, true
	}
	atomic.AddUint64(&c.misses, 1)
	return domain.Decision{}, false
}

// Put stores a decision by name, updating in place when present and evicting
// the least-recently-used entry when at capacity.
func (c *decisionCache) Put(name string, d domain.Decision) {
	c.lru.Add(name, d)
}

// Len returns the number of entries in the cache.
func (c *decisionCache) Len() int { return c.lru.Len() }

// Purge clears all entries. Evictions are counted via the eviction callback.
func (c *decisionCache) Purge() { c.lru.Purge() }

// Stats returns a snapshot of the cache counters.
func (c *decisionCache) Stats() rules.CacheStats {
	return rules.CacheStats{
		Capacity:  c.capacity,
		Size:      c.lru.Len(),
		Hits:      atomic.LoadUint64(&c.hits),
		Misses:    atomic.LoadUint64(&c.misses),
		Evictions: atomic.LoadUint64(&c.evictions),
	}
}

// disabledCache implementation

func (d *disabledCache) Get(string) (domain.Decision, bool) {
	return domain.Decision{}, false
}

func (d *disabledCache) Put(string, domain.Decision) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() rules.CacheStats { return rules.CacheStats{} }

var _ rules.DecisionCache = (*decisionCache)(nil)
var _ rules.DecisionCache = (*disabledCache)(nil)
