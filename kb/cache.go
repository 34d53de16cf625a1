package kb

import (
	"sort"
	"sync"
	"time"
)

// Query cache sizing.
const (
	DefaultCacheTTL = 180 * time.Second

	// cacheMaxEntries caps the cache; cacheEvictBatch oldest entries are
	// dropped together when the cap is hit so eviction stays infrequent.
	cacheMaxEntries = 512
	cacheEvictBatch = 64
)

type cacheEntry struct {
	res     Result
	expires time.Time
	added   time.Time
}

// queryCache is a TTL cache for KB query results. Entries are keyed by
// query, top-k, and index signature, so a rebuild naturally misses.
type queryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func newQueryCache(ttl time.Duration) *queryCache {
	return &queryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *queryCache) get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return Result{}, false
	}
	return e.res, true
}

func (c *queryCache) put(key string, res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= cacheMaxEntries {
		c.evictOldestLocked(cacheEvictBatch)
	}
	now := c.now()
	c.entries[key] = cacheEntry{res: res, expires: now.Add(c.ttl), added: now}
}

// purge drops every entry. Called after an index rebuild.
func (c *queryCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *queryCache) evictOldestLocked(n int) {
	type aged struct {
		key   string
		added time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, added: e.added})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].added.Before(all[j].added) })
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
}

func (c *queryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
