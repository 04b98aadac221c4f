// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	defaultCapacity = 10000
	defaultTTL      = 5 * time.Minute
)

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// LRU is a bounded, mutex-guarded cache with per-entry TTL. Expired
// entries are dropped lazily on Get or in bulk by CleanupExpired; the least
// recently used entry is evicted when Add exceeds capacity.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration

	// order front is most recently used.
	order *list.List
	items map[K]*list.Element

	now func() time.Time

	hits      int64
	misses    int64
	evictions int64
}

// NewLRU creates a cache. Non-positive arguments fall back to 10000
// entries and a 5 minute TTL.
func NewLRU[K comparable, V any](capacity int, ttl time.Duration) *LRU[K, V] {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &LRU[K, V]{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[K]*list.Element),
		now:      time.Now,
	}
}

// Get returns the live value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if ok && c.now().After(el.Value.(*entry[K, V]).expiresAt) {
		c.drop(el)
		ok = false
	}
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return el.Value.(*entry[K, V]).value, true
}

// Add stores value under key with a fresh TTL.
func (c *LRU[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value, e.expiresAt = value, expiresAt
		c.order.MoveToFront(el)
		return
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})
	for c.order.Len() > c.capacity {
		c.drop(c.order.Back())
		c.evictions++
	}
}

// Remove deletes key and reports whether it was present.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if ok {
		c.drop(el)
	}
	return ok
}

// RemoveFunc deletes every entry whose key matches and returns the count.
func (c *LRU[K, V]) RemoveFunc(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.dropWhere(func(e *entry[K, V]) bool { return match(e.key) })
}

// CleanupExpired deletes every expired entry and returns the count.
func (c *LRU[K, V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	return c.dropWhere(func(e *entry[K, V]) bool { return now.After(e.expiresAt) })
}

// Len returns the number of entries, expired or not.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear empties the cache. Counters are kept.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	clear(c.items)
}

// Stats returns a snapshot of the counters.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Evictions: c.evictions, Size: c.order.Len()}
}

// drop and dropWhere require c.mu.
func (c *LRU[K, V]) drop(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[K, V]).key)
}

func (c *LRU[K, V]) dropWhere(match func(*entry[K, V]) bool) int {
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if match(el.Value.(*entry[K, V])) {
			c.drop(el)
			removed++
		}
		el = prev
	}
	return removed
}
