// Package session keeps per-user state that outlives single requests and
// drops it once it has been idle for too long.
package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type slot[T any] struct {
	value    T
	lastUsed time.Time
}

// Store maps keys to live values. Values are created on first use and
// evicted by Evict once unused for longer than the idle timeout.
type Store[T any] struct {
	name string
	idle time.Duration
	Now  func() time.Time

	mu    sync.Mutex
	slots map[string]*slot[T]
}

func New[T any](name string, idle time.Duration) *Store[T] {
	return &Store[T]{
		name:  name,
		idle:  idle,
		Now:   time.Now,
		slots: make(map[string]*slot[T]),
	}
}

// Get returns the value under key, creating it with create when absent.
// Every call counts as use.
func (s *Store[T]) Get(key string, create func() T) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[key]
	if !ok {
		sl = &slot[T]{value: create()}
		s.slots[key] = sl
	}
	sl.lastUsed = s.Now()
	return sl.value
}

// Peek returns the value under key without creating it or touching it.
func (s *Store[T]) Peek(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[key]
	if !ok {
		var zero T
		return zero, false
	}
	return sl.value, true
}

func (s *Store[T]) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, key)
}

func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Evict drops every value idle for longer than the timeout and returns how
// many went. A value still referenced by a running request stays usable by
// that request; the next Get creates a fresh one.
func (s *Store[T]) Evict() int {
	cutoff := s.Now().Add(-s.idle)

	s.mu.Lock()
	evicted := 0
	for key, sl := range s.slots {
		if sl.lastUsed.Before(cutoff) {
			delete(s.slots, key)
			evicted++
		}
	}
	left := len(s.slots)
	s.mu.Unlock()

	if evicted > 0 {
		log.Debug().Str("sessions", s.name).Int("evicted", evicted).Int("live", left).Msg("Evicted idle sessions.")
	}
	return evicted
}
