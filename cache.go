// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import "sync"

// cache is a lock-guarded map written by the receiver and read by callers.
//
// A full resynchronization collects the streamed records in a staging map
// that replaces the live contents on commit. The staging map belongs to the
// request id that started the sync; bulk records carrying any other id are
// dropped. Incremental updates that arrive during a sync are applied to
// both maps.
type cache[K comparable, V any] struct {
	mu      sync.RWMutex
	items   map[K]V
	staging map[K]V
	syncID  uint32
}

func newCache[K comparable, V any]() *cache[K, V] {
	return &cache[K, V]{items: make(map[K]V)}
}

// get returns the record for key
func (c *cache[K, V]) get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

// snapshot returns a point-in-time copy of all records
func (c *cache[K, V]) snapshot() []V {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]V, 0, len(c.items))
	for _, v := range c.items {
		out = append(out, v)
	}
	return out
}

// len returns the number of live records
func (c *cache[K, V]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// store inserts or replaces a record
func (c *cache[K, V]) store(key K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staging != nil {
		c.staging[key] = v
	}
	c.items[key] = v
}

// remove evicts a record
func (c *cache[K, V]) remove(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staging != nil {
		delete(c.staging, key)
	}
	v, ok := c.items[key]
	delete(c.items, key)
	return v, ok
}

// stage adds a bulk record of the sync started with id. Returns false and
// drops the record when no such sync is running.
func (c *cache[K, V]) stage(id uint32, key K, v V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staging == nil || c.syncID != id {
		return false
	}
	c.staging[key] = v
	return true
}

// unstage removes a bulk record of the sync started with id
func (c *cache[K, V]) unstage(id uint32, key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staging == nil || c.syncID != id {
		return false
	}
	delete(c.staging, key)
	return true
}

// beginSync starts collecting the full resynchronization requested with id
func (c *cache[K, V]) beginSync(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staging = make(map[K]V)
	c.syncID = id
}

// commitSync replaces the live records with the ones staged by the sync
// started with id. Returns false if that sync is not in progress.
func (c *cache[K, V]) commitSync(id uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staging == nil || c.syncID != id {
		return false
	}
	c.items = c.staging
	c.staging = nil
	c.syncID = 0
	return true
}

// abortSync discards staged records and keeps the previous contents
func (c *cache[K, V]) abortSync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staging = nil
	c.syncID = 0
}

// syncing reports whether a full resynchronization is being collected
func (c *cache[K, V]) syncing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.staging != nil
}

// clear drops all records and any sync in progress
func (c *cache[K, V]) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]V)
	c.staging = nil
	c.syncID = 0
}
