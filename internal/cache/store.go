// Package cache provides the keyed, TTL-bounded store behind the cache
// middleware. Entries expire lazily on read and the store is bounded in
// count: once capacity is reached, the insertion-order-oldest entry is
// evicted before a new one goes in. A simple bound, not true LRU.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key       string
	value     any
	createdAt time.Time
	ttl       time.Duration
	elem      *list.Element
}

func (e *entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}

// Store is safe for concurrent readers and writers.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*entry
	order    *list.List // front = oldest insertion
	capacity int
}

const DefaultCapacity = 1000

// New creates a store bounded to capacity entries. A capacity <= 0 uses
// DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		entries:  make(map[string]*entry),
		order:    list.New(),
		capacity: capacity,
	}
}

// Get returns the cached value for key. Expired entries are removed on read
// and reported as a miss.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		s.remove(e)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the given TTL (0 means no expiry).
// Replacing an existing key refreshes its insertion position.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[key]; ok {
		s.remove(old)
	}
	for len(s.entries) >= s.capacity {
		oldest := s.order.Front()
		if oldest == nil {
			break
		}
		s.remove(oldest.Value.(*entry))
	}

	e := &entry{key: key, value: value, createdAt: time.Now(), ttl: ttl}
	e.elem = s.order.PushBack(e)
	s.entries[key] = e
}

// Delete removes key if present.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		s.remove(e)
	}
}

// Len returns the current entry count, including not-yet-collected expired
// entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Purge drops everything.
func (s *Store) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	s.order.Init()
}

func (s *Store) remove(e *entry) {
	delete(s.entries, e.key)
	s.order.Remove(e.elem)
}
