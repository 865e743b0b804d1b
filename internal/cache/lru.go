// Package cache provides the two-tier content/AST cache with LRU eviction,
// TTL expiry, and bounded entry count and memory. Caches are explicit
// instances passed by handle to pipeline stages; there is no process-wide
// singleton.
package cache

import (
	"sync/atomic"
	"time"
)

// entry is a cached value threaded through the LRU doubly-linked list.
type entry struct {
	key       string
	payload   any
	size      int64
	createdAt time.Time
	touchedAt time.Time
	mtime     time.Time // content cache only

	prev *entry
	next *entry
}

// lruStore is the shared LRU core. Not safe for concurrent use; callers
// hold their own locks.
type lruStore struct {
	entries map[string]*entry
	memory  int64

	// Doubly-linked list with dummy head and tail; head.next is the most
	// recently used entry.
	head *entry
	tail *entry
}

func newLRUStore() *lruStore {
	s := &lruStore{
		entries: make(map[string]*entry),
		head:    &entry{},
		tail:    &entry{},
	}
	s.head.next = s.tail
	s.tail.prev = s.head
	return s
}

func (s *lruStore) get(key string) (*entry, bool) {
	e, ok := s.entries[key]
	return e, ok
}

func (s *lruStore) insert(e *entry) {
	s.entries[e.key] = e
	s.memory += e.size
	s.addToFront(e)
}

func (s *lruStore) remove(e *entry) {
	s.removeFromList(e)
	delete(s.entries, e.key)
	s.memory -= e.size
}

// evictOldest removes and returns the least-recently-touched entry, or nil
// when the store is empty.
func (s *lruStore) evictOldest() *entry {
	lru := s.tail.prev
	if lru == s.head {
		return nil
	}
	s.remove(lru)
	return lru
}

func (s *lruStore) count() int {
	return len(s.entries)
}

func (s *lruStore) clear() {
	s.entries = make(map[string]*entry)
	s.memory = 0
	s.head.next = s.tail
	s.tail.prev = s.head
}

func (s *lruStore) addToFront(e *entry) {
	e.prev = s.head
	e.next = s.head.next
	s.head.next.prev = e
	s.head.next = e
}

func (s *lruStore) removeFromList(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (s *lruStore) moveToFront(e *entry) {
	s.removeFromList(e)
	s.addToFront(e)
}

// Stats reports cache hit/miss counters and current occupancy.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Bypasses  int64
	Entries   int
	Memory    int64
}

// counters holds atomically updated hit/miss statistics.
type counters struct {
	hits      int64
	misses    int64
	evictions int64
	bypasses  int64
}

func (c *counters) hit()    { atomic.AddInt64(&c.hits, 1) }
func (c *counters) miss()   { atomic.AddInt64(&c.misses, 1) }
func (c *counters) evict()  { atomic.AddInt64(&c.evictions, 1) }
func (c *counters) bypass() { atomic.AddInt64(&c.bypasses, 1) }

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
		Bypasses:  atomic.LoadInt64(&c.bypasses),
	}
}

func (c *counters) reset() {
	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.evictions, 0)
	atomic.StoreInt64(&c.bypasses, 0)
}
