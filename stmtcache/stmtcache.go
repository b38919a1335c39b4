// Package stmtcache implements the per-handle, size-bounded prepared
// statement cache described in spec §4.2: a bounded associative store
// from original SQL text to a driver.Statement, with LRU eviction and
// a driver-assisted close on every eviction.
//
// The doubly-linked LRU list and map pairing is grounded directly on
// burrowctl/server/query_cache.go's QueryCache/CacheEntry/LRUNode,
// adapted from a TTL'd query-result cache to a byte-budgeted,
// no-expiry statement cache (prepared statements don't go stale on a
// timer, they go stale when their owning handle is recycled — see
// package pool).
package stmtcache

import "github.com/lordbasex/dbicore/driver"

// entry is one node in the cache's doubly-linked LRU list.
type entry struct {
	key       string
	stmt      *driver.Statement
	size      int
	prev, next *entry
}

// EvictFunc is invoked for every statement removed from the cache,
// whether by LRU eviction or an explicit Flush. It must call the
// driver's PrepareClose before returning (spec §4.2 "Eviction ...
// invokes the driver's prepare-close").
type EvictFunc func(stmt *driver.Statement)

// Cache is a bounded, per-handle LRU cache of prepared statements.
// It is not safe for concurrent use: a Handle is borrowed by exactly
// one caller at a time, so its cache needs no internal locking
// (spec §5 "Per-handle discipline").
type Cache struct {
	budget int // soft byte budget (spec's "cachesize")
	used   int
	evict  EvictFunc

	entries    map[string]*entry
	head, tail *entry // head = most recently used
}

// New creates a cache with the given soft byte budget. evict is
// called on every entry removed from the cache.
func New(budget int, evict EvictFunc) *Cache {
	return &Cache{
		budget:  budget,
		evict:   evict,
		entries: make(map[string]*entry),
	}
}

// sqlSize estimates the bytes an entry occupies against the budget:
// the original SQL, the rewritten SQL, and a fixed per-entry overhead
// for the statement's bookkeeping fields.
func sqlSize(stmt *driver.Statement) int {
	const overhead = 128
	return len(stmt.SQL) + len(stmt.RewrittenSQL) + overhead
}

// Lookup returns the cached statement for sql, if any, and moves it
// to the front of the LRU list.
func (c *Cache) Lookup(sql string) (*driver.Statement, bool) {
	e, ok := c.entries[sql]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.stmt, true
}

// Insert adds a newly prepared statement to the cache, evicting
// least-recently-used entries as needed to stay within budget. It is
// the caller's responsibility to have already run bind parsing and
// the driver's Prepare callback — Insert only happens on a cache miss
// (spec §4.2 "On new=true, the caller runs bind parsing then driver
// prepare; on failure the entry is removed before returning").
func (c *Cache) Insert(stmt *driver.Statement) {
	e := &entry{key: stmt.SQL, stmt: stmt, size: sqlSize(stmt)}
	c.entries[stmt.SQL] = e
	c.addToFront(e)
	c.used += e.size

	for c.budget > 0 && c.used > c.budget && c.tail != nil && c.tail != e {
		c.evictOne(c.tail)
	}
}

// Remove deletes sql from the cache without invoking the eviction
// callback, for an entry whose driver resources the caller releases
// itself or never acquired (spec §4.2). Package pool inserts a
// statement only after the driver's Prepare has succeeded, so it has
// no failed-prepare entry to remove.
func (c *Cache) Remove(sql string) {
	e, ok := c.entries[sql]
	if !ok {
		return
	}
	c.unlink(e)
	delete(c.entries, sql)
	c.used -= e.size
}

// Flush evicts every entry, running the eviction callback on each
// (spec §4.2 "On handle close/destroy, the entire cache is flushed;
// eviction callbacks run for every entry").
func (c *Cache) Flush() {
	for c.tail != nil {
		c.evictOne(c.tail)
	}
}

// Len reports the number of cached statements.
func (c *Cache) Len() int { return len(c.entries) }

// Used reports the current estimated byte usage against the budget.
func (c *Cache) Used() int { return c.used }

func (c *Cache) evictOne(e *entry) {
	c.unlink(e)
	delete(c.entries, e.key)
	c.used -= e.size
	if c.evict != nil {
		c.evict(e.stmt)
	}
}

func (c *Cache) moveToFront(e *entry) {
	if c.head == e {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *Cache) addToFront(e *entry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else if c.head == e {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else if c.tail == e {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}
