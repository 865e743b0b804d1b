package cache

import (
	"os"
	"sync"
	"time"

	"github.com/reheat-dev/reheat/internal/errors"
)

// ContentCache caches raw file content keyed by path. A cached entry is
// valid while the file's mtime is unchanged and the entry is within its
// TTL. Files larger than the size ceiling bypass the cache entirely and
// are streamed from disk on every read.
type ContentCache struct {
	store       *lruStore
	mutex       sync.Mutex
	maxEntries  int
	ttl         time.Duration
	sizeCeiling int64
	stats       counters
}

// NewContentCache creates a content cache bounded to maxEntries entries.
func NewContentCache(maxEntries int, ttl time.Duration, sizeCeiling int64) *ContentCache {
	return &ContentCache{
		store:       newLRUStore(),
		maxEntries:  maxEntries,
		ttl:         ttl,
		sizeCeiling: sizeCeiling,
	}
}

// Read returns the content of the file at path, serving from cache when
// the file is unchanged since it was last read.
func (c *ContentCache) Read(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.NewReadError(path, "stat failed", err)
	}

	// Oversized files are never cached.
	if info.Size() > c.sizeCeiling {
		c.stats.bypass()
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.NewReadError(path, "read failed", err)
		}
		return content, nil
	}

	c.mutex.Lock()
	if e, ok := c.store.get(path); ok {
		if e.mtime.Equal(info.ModTime()) && time.Since(e.createdAt) <= c.ttl {
			c.store.moveToFront(e)
			e.touchedAt = time.Now()
			content := e.payload.([]byte)
			c.mutex.Unlock()
			c.stats.hit()
			return content, nil
		}
		c.store.remove(e)
	}
	c.mutex.Unlock()

	c.stats.miss()
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewReadError(path, "read failed", err)
	}

	c.upsert(path, content, info.ModTime())
	return content, nil
}

func (c *ContentCache) upsert(path string, content []byte, mtime time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if e, ok := c.store.get(path); ok {
		c.store.remove(e)
	}

	for c.store.count() >= c.maxEntries {
		if c.store.evictOldest() == nil {
			break
		}
		c.stats.evict()
	}

	now := time.Now()
	c.store.insert(&entry{
		key:       path,
		payload:   content,
		size:      int64(len(content)),
		createdAt: now,
		touchedAt: now,
		mtime:     mtime,
	})
}

// Invalidate removes the entry for path, if present.
func (c *ContentCache) Invalidate(path string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if e, ok := c.store.get(path); ok {
		c.store.remove(e)
	}
}

// Clear removes all entries and resets statistics.
func (c *ContentCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.store.clear()
	c.stats.reset()
}

// Stats returns a snapshot of cache statistics.
func (c *ContentCache) Stats() Stats {
	s := c.stats.snapshot()

	c.mutex.Lock()
	s.Entries = c.store.count()
	s.Memory = c.store.memory
	c.mutex.Unlock()

	return s
}
