package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct{ n int }

func newTestStore(idle time.Duration) (*Store[*counter], *time.Time) {
	clock := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	s := New[*counter]("test", idle)
	s.Now = func() time.Time { return clock }
	return s, &clock
}

func TestStore_GetReuses(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	created := 0
	create := func() *counter { created++; return &counter{} }

	a := s.Get("ana", create)
	a.n++
	assert.Same(t, a, s.Get("ana", create))
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, s.Len())

	_, ok := s.Peek("ben")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestStore_EvictsOnlyIdle(t *testing.T) {
	s, clock := newTestStore(time.Minute)
	create := func() *counter { return &counter{} }

	old := s.Get("ana", create)
	*clock = clock.Add(45 * time.Second)
	s.Get("ben", create)
	*clock = clock.Add(30 * time.Second)

	assert.Equal(t, 1, s.Evict())
	_, ok := s.Peek("ana")
	assert.False(t, ok)
	_, ok = s.Peek("ben")
	assert.True(t, ok)

	// Use keeps a session alive.
	s.Get("ben", create)
	*clock = clock.Add(50 * time.Second)
	assert.Zero(t, s.Evict())

	fresh := s.Get("ana", create)
	require.NotNil(t, fresh)
	assert.NotSame(t, old, fresh)
}

func TestStore_Forget(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	s.Get("ana", func() *counter { return &counter{} })
	s.Forget("ana")
	assert.Zero(t, s.Len())
}
