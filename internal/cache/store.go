package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// entry is a stored value with its absolute deadline.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// expired uses strict comparison: an entry is still valid at exactly expiresAt.
func (e entry[V]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// store is the storage backend behind a Cache. The variant decides the
// concurrency guarantees; Cache itself adds none.
type store[K comparable, V any] interface {
	load(key K) (entry[V], bool)
	// save reports whether another entry was evicted to make room.
	save(key K, e entry[V]) bool
	remove(key K)
	clear()
	len() int
	removeExpired(now time.Time) int
	countLive(now time.Time) int
}

// mapStore is the exclusive-access variant: a bare map with no locking.
type mapStore[K comparable, V any] struct {
	m map[K]entry[V]
}

func newMapStore[K comparable, V any]() *mapStore[K, V] {
	return &mapStore[K, V]{m: make(map[K]entry[V])}
}

func (s *mapStore[K, V]) load(key K) (entry[V], bool) {
	e, ok := s.m[key]
	return e, ok
}

func (s *mapStore[K, V]) save(key K, e entry[V]) bool {
	s.m[key] = e
	return false
}

func (s *mapStore[K, V]) remove(key K) {
	delete(s.m, key)
}

func (s *mapStore[K, V]) clear() {
	s.m = make(map[K]entry[V])
}

func (s *mapStore[K, V]) len() int {
	return len(s.m)
}

func (s *mapStore[K, V]) removeExpired(now time.Time) int {
	removed := 0
	for k, e := range s.m {
		if e.expired(now) {
			delete(s.m, k)
			removed++
		}
	}
	return removed
}

func (s *mapStore[K, V]) countLive(now time.Time) int {
	live := 0
	for _, e := range s.m {
		if !e.expired(now) {
			live++
		}
	}
	return live
}

// lockedStore is the shared-access variant: a map guarded by a RWMutex so
// callers and the registry sweep can mutate it concurrently.
type lockedStore[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]entry[V]
}

func newLockedStore[K comparable, V any]() *lockedStore[K, V] {
	return &lockedStore[K, V]{m: make(map[K]entry[V])}
}

func (s *lockedStore[K, V]) load(key K) (entry[V], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[key]
	return e, ok
}

func (s *lockedStore[K, V]) save(key K, e entry[V]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = e
	return false
}

func (s *lockedStore[K, V]) remove(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

func (s *lockedStore[K, V]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[K]entry[V])
}

func (s *lockedStore[K, V]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *lockedStore[K, V]) removeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.m {
		if e.expired(now) {
			delete(s.m, k)
			removed++
		}
	}
	return removed
}

func (s *lockedStore[K, V]) countLive(now time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	live := 0
	for _, e := range s.m {
		if !e.expired(now) {
			live++
		}
	}
	return live
}

// boundedStore is the shared-access variant with a hard entry limit.
// The least recently used entry is evicted when the limit is reached.
// lru.Cache is itself safe for concurrent use; mu only serialises the
// peek-then-remove of a sweep against concurrent saves so a fresh entry is
// never swept.
type boundedStore[K comparable, V any] struct {
	mu  sync.Mutex
	lru *lru.Cache[K, entry[V]]
}

func newBoundedStore[K comparable, V any](maxEntries int) (*boundedStore[K, V], error) {
	c, err := lru.New[K, entry[V]](maxEntries)
	if err != nil {
		return nil, err
	}
	return &boundedStore[K, V]{lru: c}, nil
}

func (s *boundedStore[K, V]) load(key K) (entry[V], bool) {
	return s.lru.Get(key)
}

func (s *boundedStore[K, V]) save(key K, e entry[V]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Add(key, e)
}

func (s *boundedStore[K, V]) remove(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Remove(key)
}

func (s *boundedStore[K, V]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Purge()
}

func (s *boundedStore[K, V]) len() int {
	return s.lru.Len()
}

func (s *boundedStore[K, V]) removeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, k := range s.lru.Keys() {
		if e, ok := s.lru.Peek(k); ok && e.expired(now) {
			s.lru.Remove(k)
			removed++
		}
	}
	return removed
}

func (s *boundedStore[K, V]) countLive(now time.Time) int {
	live := 0
	for _, e := range s.lru.Values() {
		if !e.expired(now) {
			live++
		}
	}
	return live
}
