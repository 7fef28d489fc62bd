package workflow

import (
	"sync"
	"time"

	"github.com/ledgerline/docaudit/internal/model"
)

const (
	defaultCacheCapacity = 256
	defaultCacheTTL      = 1 * time.Hour
)

type cacheEntry struct {
	context  model.ContractContext
	expires  time.Time
	storedAt time.Time
}

// contractCache is a bounded TTL cache of contract contexts keyed by PO
// number and vendor name. It fronts the store so invoice processing does not
// hit the database for every lookup, and it keeps working when persistence
// is degraded.
type contractCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]cacheEntry
	now      func() time.Time
}

func newContractCache(capacity int, ttl time.Duration) *contractCache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &contractCache{
		capacity: capacity,
		ttl:      ttl,
		entries:  map[string]cacheEntry{},
		now:      time.Now,
	}
}

// Put indexes the context under its PO number and vendor name.
func (c *contractCache) Put(cc model.ContractContext) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry := cacheEntry{context: cc, expires: now.Add(c.ttl), storedAt: now}
	if cc.PONumber != "" {
		c.put("po:"+cc.PONumber, entry)
	}
	if cc.VendorName != "" {
		c.put("vendor:"+cc.VendorName, entry)
	}
}

// Get returns the cached context for the PO number, falling back to the
// vendor name. Expired entries are treated as absent.
func (c *contractCache) Get(poNumber, vendorName string) (model.ContractContext, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if poNumber != "" {
		if entry, ok := c.entries["po:"+poNumber]; ok && entry.expires.After(now) {
			return entry.context, true
		}
	}
	if vendorName != "" {
		if entry, ok := c.entries["vendor:"+vendorName]; ok && entry.expires.After(now) {
			return entry.context, true
		}
	}
	return model.ContractContext{}, false
}

func (c *contractCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// put assumes c.mu is held. When the cache is full it drops expired entries
// first and then the oldest entry, keeping the memory footprint bounded.
func (c *contractCache) put(key string, entry cacheEntry) {
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evict()
	}
	c.entries[key] = entry
}

func (c *contractCache) evict() {
	now := c.now()
	for key, entry := range c.entries {
		if !entry.expires.After(now) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) < c.capacity {
		return
	}
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for key, entry := range c.entries {
		if oldestKey == "" || entry.storedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
