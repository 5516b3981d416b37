package works

import (
	"time"

	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/notify"
	"github.com/UkralStul/crewfeed-service/internal/session"
	"github.com/UkralStul/crewfeed-service/internal/storage"
)

// DefaultIdleTimeout is how long an unused session engine is kept.
const DefaultIdleTimeout = 30 * time.Minute

// Registry keeps one Engine per user so that the cold-read cache and the
// optimistic state outlive single requests. Idle engines are dropped by
// Evict.
type Registry struct {
	store     storage.Storage
	notifier  *notify.Emitter
	snapshots SnapshotSource
	Now       func() time.Time

	sessions *session.Store[*Engine]
}

func NewRegistry(store storage.Storage, notifier *notify.Emitter, snapshots SnapshotSource, idle time.Duration) *Registry {
	r := &Registry{
		store:     store,
		notifier:  notifier,
		snapshots: snapshots,
		Now:       time.Now,
		sessions:  session.New[*Engine]("works", idle),
	}
	r.sessions.Now = func() time.Time { return r.Now() }
	return r
}

// For returns the session engine of id. Anonymous callers get a throwaway
// engine whose Toggle reports them unauthenticated.
func (r *Registry) For(id identity.Identity) *Engine {
	if !id.Authenticated() {
		return NewEngine(r.store, r.notifier, r.snapshots, id)
	}
	return r.sessions.Get(id.UserID, func() *Engine {
		e := NewEngine(r.store, r.notifier, r.snapshots, id)
		e.Now = r.Now
		return e
	})
}

// Forget drops the session of userID.
func (r *Registry) Forget(userID string) {
	r.sessions.Forget(userID)
}

// Evict drops engines idle for longer than the registry's timeout.
func (r *Registry) Evict() int {
	return r.sessions.Evict()
}
