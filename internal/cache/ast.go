package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/reheat-dev/reheat/internal/logging"
)

// ASTCache caches parsed module representations keyed by path and the
// sha256 of content+kind. Because the key embeds the content hash, a stale
// entry is simply never addressed again; it ages out through LRU or TTL
// rather than being purged on change.
type ASTCache struct {
	store      *lruStore
	mutex      sync.Mutex
	maxEntries int
	maxMemory  int64
	ttl        time.Duration
	stats      counters
	logger     logging.Logger
}

// NewASTCache creates an AST cache bounded by entry count and estimated
// memory.
func NewASTCache(maxEntries int, maxMemory int64, ttl time.Duration, logger logging.Logger) *ASTCache {
	return &ASTCache{
		store:      newLRUStore(),
		maxEntries: maxEntries,
		maxMemory:  maxMemory,
		ttl:        ttl,
		logger:     logging.OrNop(logger).WithComponent("ast-cache"),
	}
}

// Key derives the cache key for a file's parsed representation. kind
// distinguishes different parse modes of the same content.
func Key(path string, content []byte, kind string) string {
	h := sha256.New()
	h.Write(content)
	h.Write([]byte(kind))
	return path + ":" + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached payload for key and refreshes its touch time.
func (c *ASTCache) Get(key string) (any, bool) {
	c.mutex.Lock()

	e, ok := c.store.get(key)
	if !ok {
		c.mutex.Unlock()
		c.stats.miss()
		return nil, false
	}

	if time.Since(e.createdAt) > c.ttl {
		c.store.remove(e)
		c.mutex.Unlock()
		c.stats.miss()
		return nil, false
	}

	c.store.moveToFront(e)
	e.touchedAt = time.Now()
	payload := e.payload
	c.mutex.Unlock()

	c.stats.hit()
	return payload, true
}

// Put inserts a parsed payload under key. Caching is strictly best-effort:
// a size-estimation failure is logged and the insert skipped, never
// propagated to the caller.
func (c *ASTCache) Put(ctx context.Context, key string, payload any) {
	size, err := estimateSize(payload)
	if err != nil {
		c.logger.Warn(ctx, err, "size estimation failed, skipping cache insert", "key", key)
		return
	}

	if size > c.maxMemory {
		c.logger.Warn(ctx, nil, "payload exceeds cache memory bound, skipping insert",
			"key", key, "size", size)
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if e, ok := c.store.get(key); ok {
		c.store.remove(e)
	}

	// Two-stage eviction: first satisfy the entry-count bound, then the
	// memory bound.
	for c.store.count() >= c.maxEntries {
		if c.store.evictOldest() == nil {
			break
		}
		c.stats.evict()
	}
	for c.store.memory+size > c.maxMemory {
		if c.store.evictOldest() == nil {
			break
		}
		c.stats.evict()
	}

	now := time.Now()
	c.store.insert(&entry{
		key:       key,
		payload:   payload,
		size:      size,
		createdAt: now,
		touchedAt: now,
	})
}

// Invalidate removes the entry for key, if present.
func (c *ASTCache) Invalidate(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if e, ok := c.store.get(key); ok {
		c.store.remove(e)
	}
}

// Clear removes all entries and resets statistics.
func (c *ASTCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.store.clear()
	c.stats.reset()
}

// Stats returns a snapshot of cache statistics.
func (c *ASTCache) Stats() Stats {
	s := c.stats.snapshot()

	c.mutex.Lock()
	s.Entries = c.store.count()
	s.Memory = c.store.memory
	c.mutex.Unlock()

	return s
}

// estimateSize approximates the in-memory footprint of a payload by its
// serialized length. The estimate is a heuristic, never an exact
// measurement.
func estimateSize(payload any) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("estimating payload size: %w", err)
	}
	return int64(len(data)), nil
}
