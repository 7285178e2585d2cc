// Package session holds short-lived keyed state, such as quote drafts
// being assembled over several requests. Entries expire a fixed TTL after
// their last write and are removed by an explicit Sweep, which the cron
// scheduler runs periodically. Expired entries are invisible to reads
// even before they are swept.
package session

import (
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned for a missing or expired key.
var ErrNotFound = errors.New("zipcheck/session: not found")

// DefaultTTL is used when New is given a non-positive ttl.
const DefaultTTL = 30 * time.Minute

type config struct {
	now func() time.Time
}

// Option configures a Store.
type Option func(*config)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// Store is a concurrency-safe map whose entries expire.
type Store[V any] struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	items map[string]item[V]
}

// New returns an empty Store.
func New[V any](ttl time.Duration, opts ...Option) *Store[V] {
	cfg := config{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store[V]{ttl: ttl, now: cfg.now, items: make(map[string]item[V])}
}

// TTL returns the entry lifetime.
func (s *Store[V]) TTL() time.Duration { return s.ttl }

// Put stores v under key and resets its expiry.
func (s *Store[V]) Put(key string, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = item[V]{value: v, expiresAt: s.now().Add(s.ttl)}
}

// Get returns the live value under key.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.live(key)
	return it.value, ok
}

// Update replaces the live value under key with fn's result and resets
// its expiry. An error from fn leaves the entry untouched.
func (s *Store[V]) Update(key string, fn func(V) (V, error)) (V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	it, ok := s.live(key)
	if !ok {
		return zero, ErrNotFound
	}
	v, err := fn(it.value)
	if err != nil {
		return zero, err
	}
	s.items[key] = item[V]{value: v, expiresAt: s.now().Add(s.ttl)}
	return v, nil
}

// Take removes and returns the live value under key.
func (s *Store[V]) Take(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.live(key)
	if ok {
		delete(s.items, key)
	}
	return it.value, ok
}

// Delete removes key.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// Sweep drops every entry expired at now and returns how many it dropped.
func (s *Store[V]) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for k, it := range s.items {
		if !now.Before(it.expiresAt) {
			delete(s.items, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired or not.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// live must be called with mu held.
func (s *Store[V]) live(key string) (item[V], bool) {
	it, ok := s.items[key]
	if !ok || !s.now().Before(it.expiresAt) {
		return item[V]{}, false
	}
	return it, true
}
