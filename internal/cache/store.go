package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// State is the outcome of a lookup against the TTL.
type State int

const (
	Miss State = iota
	Fresh
	Stale
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "miss"
	}
}

// Entry is a cached value and the time it was fetched.
type Entry[V any] struct {
	Value     V
	FetchedAt time.Time
}

// Age is how old the entry is at now.
func (e Entry[V]) Age(now time.Time) time.Duration { return now.Sub(e.FetchedAt) }

// Store keeps the most recent entries per key. Expired entries stay
// available as Stale so callers can fall back to them when a refresh fails.
type Store[K comparable, V any] struct {
	entries *lru.Cache[K, Entry[V]]
	ttl     time.Duration
}

func NewStore[K comparable, V any](size int, ttl time.Duration) (*Store[K, V], error) {
	entries, err := lru.New[K, Entry[V]](size)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Store[K, V]{entries: entries, ttl: ttl}, nil
}

// Lookup returns the entry for key and whether it is still within the TTL at now.
func (s *Store[K, V]) Lookup(key K, now time.Time) (Entry[V], State) {
	e, ok := s.entries.Get(key)
	if !ok {
		return Entry[V]{}, Miss
	}
	if s.ttl > 0 && e.Age(now) >= s.ttl {
		return e, Stale
	}
	return e, Fresh
}

// Put replaces the entry for key. Concurrent writers race; the last one wins.
func (s *Store[K, V]) Put(key K, value V, fetchedAt time.Time) {
	s.entries.Add(key, Entry[V]{Value: value, FetchedAt: fetchedAt})
}

func (s *Store[K, V]) TTL() time.Duration { return s.ttl }

func (s *Store[K, V]) Len() int { return s.entries.Len() }
