// Package cache provides a generic expiring key/value cache and a registry
// that sweeps expired entries from every registered cache on a schedule.
//
// A Cache is created in one of two modes that never change afterwards:
//
//   - Exclusive: no internal synchronisation. The owner must guarantee that
//     no two goroutines touch the cache at once, including the registry
//     sweep; register exclusive caches only when their owner serialises access.
//   - Shared: safe for concurrent readers, writers and sweeps.
//
// Shared caches may additionally be bounded with WithMaxEntries, in which case
// the least recently used entry is dropped once the bound is reached.
//
// Get computes missing or expired values on demand. Concurrent misses on the
// same key are not deduplicated: both computations run and the later write
// wins. Compute functions are expected to be idempotent.
package cache

import (
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultTTL is used when a cache is created with a non-positive TTL.
const DefaultTTL = 60 * time.Second

// Mode selects the concurrency behaviour of a Cache.
type Mode int

const (
	// Exclusive caches have a single logical owner and no internal locking.
	Exclusive Mode = iota
	// Shared caches are safe for concurrent use.
	Shared
)

func (m Mode) String() string {
	switch m {
	case Exclusive:
		return "exclusive"
	case Shared:
		return "shared"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Stats is a point-in-time snapshot of a cache's counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Computes  uint64
	Expired   uint64 // entries removed by Cleanup
	Evictions uint64 // entries dropped to honour MaxEntries
	Size      int
	Active    int
}

type settings struct {
	now        func() time.Time
	maxEntries int
}

// Option configures a Cache.
type Option func(*settings)

// WithClock replaces time.Now, e.g. to test expiry boundaries.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// WithMaxEntries bounds the cache to n entries with LRU eviction.
// Zero means unbounded. A bounded cache is always safe for concurrent use
// and reports Shared from Mode, whatever mode it was created with.
func WithMaxEntries(n int) Option {
	return func(s *settings) {
		s.maxEntries = n
	}
}

// binding attaches a registered name and metrics to a cache.
type binding struct {
	name    string
	metrics *Metrics
}

// Cache is a generic key/value store whose entries expire after a TTL.
type Cache[K comparable, V any] struct {
	mode       Mode
	defaultTTL time.Duration
	store      store[K, V]
	now        func() time.Time

	bound atomic.Pointer[binding]

	hits      atomic.Uint64
	misses    atomic.Uint64
	computes  atomic.Uint64
	expired   atomic.Uint64
	evictions atomic.Uint64
}

// New creates a cache with the given default TTL and mode.
func New[K comparable, V any](defaultTTL time.Duration, mode Mode, opts ...Option) (*Cache[K, V], error) {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	if s.maxEntries < 0 {
		return nil, fmt.Errorf("max entries must not be negative, got %d", s.maxEntries)
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if s.maxEntries > 0 {
		mode = Shared
	}

	c := &Cache[K, V]{
		mode:       mode,
		defaultTTL: defaultTTL,
		now:        s.now,
	}

	switch {
	case s.maxEntries > 0:
		st, err := newBoundedStore[K, V](s.maxEntries)
		if err != nil {
			return nil, fmt.Errorf("failed to create bounded store: %w", err)
		}
		c.store = st
	case mode == Shared:
		c.store = newLockedStore[K, V]()
	default:
		c.store = newMapStore[K, V]()
	}
	return c, nil
}

// MustNew is New for statically known arguments; it panics on error.
func MustNew[K comparable, V any](defaultTTL time.Duration, mode Mode, opts ...Option) *Cache[K, V] {
	c, err := New[K, V](defaultTTL, mode, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Mode returns the concurrency mode fixed at construction.
func (c *Cache[K, V]) Mode() Mode {
	return c.mode
}

// DefaultTTL returns the TTL used when none is given.
func (c *Cache[K, V]) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// Get returns the live value for key, computing and storing it with the
// default TTL if it is missing or expired. A live hit does not refresh the TTL.
func (c *Cache[K, V]) Get(key K, compute func(K) V) V {
	return c.GetWithTTL(key, compute, c.defaultTTL)
}

// GetWithTTL is Get with an explicit TTL for a freshly computed entry.
func (c *Cache[K, V]) GetWithTTL(key K, compute func(K) V, ttl time.Duration) V {
	if v, ok := c.lookup(key); ok {
		return v
	}
	value := compute(key)
	c.computes.Add(1)
	c.PutWithTTL(key, value, ttl)
	return value
}

// Load is Get for fallible computations. On error nothing is stored.
func (c *Cache[K, V]) Load(key K, compute func(K) (V, error)) (V, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}
	value, err := compute(key)
	if err != nil {
		var zero V
		return zero, err
	}
	c.computes.Add(1)
	c.Put(key, value)
	return value, nil
}

// Peek returns the live value for key without computing anything.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	return c.lookup(key)
}

func (c *Cache[K, V]) lookup(key K) (V, bool) {
	e, ok := c.store.load(key)
	if ok && !e.expired(c.now()) {
		c.hits.Add(1)
		c.observe(func(b *binding) { b.metrics.Hits.WithLabelValues(b.name).Inc() })
		return e.value, true
	}
	c.misses.Add(1)
	c.observe(func(b *binding) { b.metrics.Misses.WithLabelValues(b.name).Inc() })
	var zero V
	return zero, false
}

// Put stores value under key with the default TTL.
func (c *Cache[K, V]) Put(key K, value V) {
	c.PutWithTTL(key, value, c.defaultTTL)
}

// PutWithTTL stores value under key, expiring ttl from now.
func (c *Cache[K, V]) PutWithTTL(key K, value V, ttl time.Duration) {
	evicted := c.store.save(key, entry[V]{value: value, expiresAt: c.now().Add(ttl)})
	if evicted {
		c.evictions.Add(1)
		c.observe(func(b *binding) { b.metrics.Evictions.WithLabelValues(b.name, "capacity").Inc() })
	}
}

// Contains reports whether key holds a live entry. It never computes.
func (c *Cache[K, V]) Contains(key K) bool {
	e, ok := c.store.load(key)
	return ok && !e.expired(c.now())
}

// Invalidate removes key regardless of expiry.
func (c *Cache[K, V]) Invalidate(key K) {
	c.store.remove(key)
}

// InvalidateAll removes every entry.
func (c *Cache[K, V]) InvalidateAll() {
	c.store.clear()
}

// Cleanup removes every entry that has expired as of now and returns how
// many were removed.
func (c *Cache[K, V]) Cleanup() int {
	removed := c.store.removeExpired(c.now())
	if removed > 0 {
		c.expired.Add(uint64(removed))
		c.observe(func(b *binding) { b.metrics.Evictions.WithLabelValues(b.name, "expired").Add(float64(removed)) })
	}
	return removed
}

// Size returns the number of stored entries, expired ones included.
func (c *Cache[K, V]) Size() int {
	return c.store.len()
}

// ActiveSize returns the number of entries that have not expired.
func (c *Cache[K, V]) ActiveSize() int {
	return c.store.countLive(c.now())
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Computes:  c.computes.Load(),
		Expired:   c.expired.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.Size(),
		Active:    c.ActiveSize(),
	}
}

func (c *Cache[K, V]) bind(name string, metrics *Metrics) {
	if metrics == nil {
		c.bound.Store(nil)
		return
	}
	c.bound.Store(&binding{name: name, metrics: metrics})
}

func (c *Cache[K, V]) observe(fn func(*binding)) {
	if b := c.bound.Load(); b != nil {
		fn(b)
	}
}
