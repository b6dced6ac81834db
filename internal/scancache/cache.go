// Package scancache holds deep-scan results keyed by repository revision so
// an unchanged repository is never content-scanned twice.
package scancache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// Entry is the immutable result of one deep content scan.
type Entry struct {
	ManifestSignals []string
	ImportSignals   []string
	TextBlob        string
	ScannedAt       time.Time
}

// Key builds the cache key for a repository at a given revision. The
// revision marker is the last-pushed timestamp, so a new push naturally
// invalidates the old entry.
func Key(owner, name, branch string, pushedAt time.Time) string {
	return fmt.Sprintf("%s/%s:%s:%d", owner, name, branch, pushedAt.Unix())
}

// Cache is a capacity-bounded map with oldest-inserted-first eviction.
// Eviction is by insertion order, not access recency: entries never change
// once written and a revision bump produces a fresh key, so recency tracking
// buys nothing here.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = oldest insertion
}

type cacheItem struct {
	key   string
	entry Entry
}

// New creates a Cache bounded to capacity entries. Capacity must be positive.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the entry for key, if present.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return el.Value.(cacheItem).entry, true
}

// Put stores the entry under key, evicting the single oldest insertion when
// the cache is full. Re-putting an existing key overwrites in place without
// changing its insertion position.
func (c *Cache) Put(key string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value = cacheItem{key: key, entry: entry}
		return
	}
	if c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(cacheItem).key)
		}
	}
	c.entries[key] = c.order.PushBack(cacheItem{key: key, entry: entry})
}

// Len reports the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
