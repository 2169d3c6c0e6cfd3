// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package dedupe implements the idempotency-key cache: a
// TTL-bounded, capacity-bounded admission cache guarded by a single
// mutex. No lock spans both the cache and the WAL.
package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/amoskys/amoskys/internal/clock"
)

// DefaultTTL is BUS_DEDUPE_TTL_SEC's default.
const DefaultTTL = 300 * time.Second

// DefaultMaxEntries is BUS_DEDUPE_MAX's default.
const DefaultMaxEntries = 50000

type entry struct {
	key         string
	admittedTS  time.Time
	listElement *list.Element
}

// Cache is the dedupe admission cache. Entries are evicted in
// insertion order once MaxEntries is exceeded, and independently
// expire after TTL.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*entry
	order      *list.List // front = oldest

	hits      uint64
	misses    uint64
	evictions uint64
}

// New builds a Cache with the given TTL and capacity. Zero values fall
// back to the package defaults.
func New(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
		order:      list.New(),
	}
}

// SeenOrAdmit is the dedupe step: if key has already been
// admitted (and not expired), it reports true without mutating the
// cache. Otherwise it inserts key, evicting the oldest entry if over
// capacity, and reports false.
func (c *Cache) SeenOrAdmit(key string) bool {
	now := clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		if now.Sub(e.admittedTS) <= c.ttl {
			c.hits++
			return true
		}
		// Expired: treat as not-seen, refresh.
		c.order.Remove(e.listElement)
		delete(c.entries, key)
	}

	c.misses++
	el := c.order.PushBack(key)
	c.entries[key] = &entry{key: key, admittedTS: now, listElement: el}

	for len(c.entries) > c.maxEntries {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(string))
		c.evictions++
	}
	return false
}

// Remove deletes key from the cache unconditionally. Used when a WAL
// write that followed a dedupe-miss admission turns out to be a
// transient failure: a duplicate key during a retry is a legitimate
// dedupe hit, but a retryable write error must not leave a phantom
// cache entry).
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.order.Remove(e.listElement)
		delete(c.entries, key)
	}
}

// Stats is a point-in-time snapshot for the Prometheus registry.
type Stats struct {
	Size      int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Stats returns current cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
