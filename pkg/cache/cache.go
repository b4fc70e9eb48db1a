// Package cache provides a generic expiring memoization map used for
// forecast responses and other expensive lookups.
package cache

import (
	"sync"
	"time"
)

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithClock replaces the time source, for deterministic tests.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(cache *Cache[K, V]) {
		cache.nowFn = now
	}
}

// Cache memoizes computed values per key for a TTL window. Concurrent
// lookups of the same uncached key share a single compute; the losers block
// until the winner finishes. Failed computes are not cached, so a transient
// provider failure never poisons a full TTL window.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	nowFn   func() time.Time
	entries map[K]*entry[V]
}

type entry[V any] struct {
	value     V
	err       error
	expiresAt time.Time
	ready     chan struct{}
}

// New returns an empty cache.
func New[K comparable, V any](options ...Option[K, V]) *Cache[K, V] {
	cache := &Cache[K, V]{
		nowFn:   time.Now,
		entries: make(map[K]*entry[V]),
	}
	for _, option := range options {
		if option != nil {
			option(cache)
		}
	}
	return cache
}

// GetOrCompute returns the cached value for the key, computing it at most
// once per TTL window. After expiry the next call recomputes and resets the
// window.
func (cache *Cache[K, V]) GetOrCompute(key K, ttl time.Duration, compute func() (V, error)) (V, error) {
	for {
		cache.mu.Lock()
		current, exists := cache.entries[key]
		if exists {
			select {
			case <-current.ready:
				if cache.nowFn().Before(current.expiresAt) {
					cache.mu.Unlock()
					return current.value, current.err
				}
				delete(cache.entries, key)
			default:
				cache.mu.Unlock()
				<-current.ready
				continue
			}
		}
		pending := &entry[V]{ready: make(chan struct{})}
		cache.entries[key] = pending
		cache.mu.Unlock()

		value, err := compute()

		cache.mu.Lock()
		pending.value = value
		pending.err = err
		pending.expiresAt = cache.nowFn().Add(ttl)
		close(pending.ready)
		if err != nil {
			delete(cache.entries, key)
		}
		cache.mu.Unlock()
		return value, err
	}
}

// Evict drops the key immediately.
func (cache *Cache[K, V]) Evict(key K) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	delete(cache.entries, key)
}

// PurgeExpired removes every settled entry past its deadline and reports
// how many were dropped.
func (cache *Cache[K, V]) PurgeExpired() int {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	now := cache.nowFn()
	removed := 0
	for key, current := range cache.entries {
		select {
		case <-current.ready:
			if !now.Before(current.expiresAt) {
				delete(cache.entries, key)
				removed++
			}
		default:
		}
	}
	return removed
}

// Len reports the number of cached keys, in-flight computes included.
func (cache *Cache[K, V]) Len() int {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	return len(cache.entries)
}
