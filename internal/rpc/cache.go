package rpc

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/lru"
)

// Clock returns the current time. Tests inject a controllable one.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

type cacheEntry[V any] struct {
	value   V
	expires time.Time
}

// ReadCache memoizes contract reads. It holds at most size entries, evicting
// the least recently used, and an entry expires ttl after it was stored.
type ReadCache[K comparable, V any] struct {
	mu    sync.Mutex
	lru   lru.BasicLRU[K, cacheEntry[V]]
	ttl   time.Duration
	clock Clock
}

// NewReadCache creates a cache. A nil clock means the wall clock.
func NewReadCache[K comparable, V any](size int, ttl time.Duration, clock Clock) *ReadCache[K, V] {
	if clock == nil {
		clock = SystemClock
	}
	return &ReadCache[K, V]{
		lru:   lru.NewBasicLRU[K, cacheEntry[V]](size),
		ttl:   ttl,
		clock: clock,
	}
}

// Get returns the cached value if present and not expired.
func (c *ReadCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.lru.Get(key)
	if !ok {
		cacheLookupInc(false)
		return zero, false
	}
	if !c.clock.Now().Before(entry.expires) {
		c.lru.Remove(key)
		cacheLookupInc(false)
		return zero, false
	}
	cacheLookupInc(true)
	return entry.value, true
}

// Add stores a value, replacing any previous one.
func (c *ReadCache[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(key, cacheEntry[V]{value: value, expires: c.clock.Now().Add(c.ttl)})
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (c *ReadCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge drops every entry.
func (c *ReadCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
