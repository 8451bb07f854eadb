// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package memcrypt

import (
	"fmt"
	"sync"
	"time"

	"github.com/engram-foundation/engram/lib/clock"
	"github.com/engram-foundation/engram/lib/secret"
)

// DefaultKeyCacheTTL is how long a derived key stays usable before
// the next Get re-derives it.
const DefaultKeyCacheTTL = 15 * time.Minute

// DefaultKeyCacheCapacity bounds the number of cached keys. One key
// per (secret, context) pair; a single daemon rarely handles more
// than a handful of streams.
const DefaultKeyCacheCapacity = 64

// KeyCache caches derived keys by (secret fingerprint, context) with
// a TTL. It is an explicit object passed to call sites — callers own
// its lifetime and tests inject a fake clock. Expired entries are
// closed (zeroing the key memory) on the next access; Close destroys
// everything.
//
// KeyCache is safe for concurrent use.
type KeyCache struct {
	mu       sync.Mutex
	clock    clock.Clock
	ttl      time.Duration
	capacity int
	entries  map[cacheKey]*cacheEntry
}

type cacheKey struct {
	fingerprint string
	context     string
}

type cacheEntry struct {
	key      *secret.Buffer
	expires  time.Time
	lastUsed time.Time
}

// NewKeyCache creates a key cache with the given TTL and capacity.
// Zero values select the defaults.
func NewKeyCache(clk clock.Clock, ttl time.Duration, capacity int) *KeyCache {
	if ttl <= 0 {
		ttl = DefaultKeyCacheTTL
	}
	if capacity <= 0 {
		capacity = DefaultKeyCacheCapacity
	}
	return &KeyCache{
		clock:    clk,
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[cacheKey]*cacheEntry),
	}
}

// Get returns the derived key for (signingSecret, context), deriving
// and caching it if absent or expired. The returned buffer is owned
// by the cache — callers must not close it. The buffer remains valid
// until the entry expires AND a later cache operation evicts it, so
// callers should use the key promptly and not retain it.
func (c *KeyCache) Get(signingSecret *secret.Buffer, context string) (*secret.Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	lookup := cacheKey{fingerprint: Fingerprint(signingSecret), context: context}

	if entry, ok := c.entries[lookup]; ok {
		if now.Before(entry.expires) {
			entry.lastUsed = now
			return entry.key, nil
		}
		entry.key.Close()
		delete(c.entries, lookup)
	}

	derived, err := DeriveKey(signingSecret, context)
	if err != nil {
		return nil, fmt.Errorf("deriving key for context %q: %w", context, err)
	}

	c.evictExpiredLocked(now)
	if len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}

	c.entries[lookup] = &cacheEntry{
		key:      derived,
		expires:  now.Add(c.ttl),
		lastUsed: now,
	}
	return derived, nil
}

// Len returns the number of live cache entries.
func (c *KeyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close destroys all cached keys. The cache remains usable; later
// Gets re-derive.
func (c *KeyCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for lookup, entry := range c.entries {
		entry.key.Close()
		delete(c.entries, lookup)
	}
}

func (c *KeyCache) evictExpiredLocked(now time.Time) {
	for lookup, entry := range c.entries {
		if !now.Before(entry.expires) {
			entry.key.Close()
			delete(c.entries, lookup)
		}
	}
}

func (c *KeyCache) evictOldestLocked() {
	var oldest cacheKey
	var oldestTime time.Time
	first := true
	for lookup, entry := range c.entries {
		if first || entry.lastUsed.Before(oldestTime) {
			oldest = lookup
			oldestTime = entry.lastUsed
			first = false
		}
	}
	if !first {
		c.entries[oldest].key.Close()
		delete(c.entries, oldest)
	}
}
