// cache/cache.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package cache provides a resource cache that hands out shared,
// identity-preserving resources for semantic keys while holding only weak
// references itself: once every user has dropped a resource it is
// collected, and the next request for an equivalent key builds a fresh
// one.
package cache

import (
	"fmt"
	"runtime"
	"sync"
	"weak"
)

// Key is implemented by cache keys. Keys must be comparable; two keys
// that compare equal share a resource. Create builds the resource for the
// key when there is no live one.
type Key[V any] interface {
	comparable
	Create() (*V, error)
}

// Cache maps keys of type K to weakly-held resources of type V.
type Cache[K Key[V], V any] struct {
	mu      sync.Mutex
	entries map[K]weak.Pointer[V]
	stats   Stats
}

// Stats records cache activity, mostly for logging.
type Stats struct {
	Hits, Misses, Evictions int
}

func New[K Key[V], V any]() *Cache[K, V] {
	return &Cache[K, V]{entries: make(map[K]weak.Pointer[V])}
}

// Acquire returns the live resource for key if there is one and otherwise
// creates, records, and returns a new one. Factory errors are returned to
// the caller; nothing is stored in that case.
func (c *Cache[K, V]) Acquire(key K) (*V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries == nil {
		c.entries = make(map[K]weak.Pointer[V])
	}

	if wp, ok := c.entries[key]; ok {
		if v := wp.Value(); v != nil {
			c.stats.Hits++
			return v, nil
		}
		delete(c.entries, key)
		c.stats.Evictions++
	}

	c.stats.Misses++
	v, err := key.Create()
	if err != nil {
		return nil, fmt.Errorf("%v: %w", key, err)
	} else if v == nil {
		return nil, fmt.Errorf("%v: factory returned no resource", key)
	}

	wp := weak.Make(v)
	c.entries[key] = wp
	runtime.AddCleanup(v, c.evict, evictArg[K, V]{key: key, wp: wp})

	return v, nil
}

type evictArg[K comparable, V any] struct {
	key K
	wp  weak.Pointer[V]
}

// evict runs after a resource has been collected. The slot may already
// hold a newer resource for the same key, in which case it is left alone.
func (c *Cache[K, V]) evict(a evictArg[K, V]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wp, ok := c.entries[a.key]; ok && wp == a.wp {
		delete(c.entries, a.key)
		c.stats.Evictions++
	}
}

// Lookup returns the live resource for key without creating one.
func (c *Cache[K, V]) Lookup(key K) (*V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wp, ok := c.entries[key]; ok {
		if v := wp.Value(); v != nil {
			return v, true
		}
	}
	return nil, false
}

// Len returns the number of slots, including ones whose resources have
// been collected but whose cleanup has not yet run.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge forgets every entry. Resources still in use stay valid, but later
// requests create new ones.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
