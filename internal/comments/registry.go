package comments

import (
	"time"

	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/session"
)

// Registry keeps the open comment threads of each viewer, one per post, so
// that load-more, collapse and optimistic reply counts span requests.
type Registry struct {
	svc           *Service
	pageSize      int
	replyPageSize int
	Now           func() time.Time

	sessions *session.Store[*Thread]
}

func NewRegistry(svc *Service, pageSize, replyPageSize int, idle time.Duration) *Registry {
	r := &Registry{
		svc:           svc,
		pageSize:      pageSize,
		replyPageSize: replyPageSize,
		Now:           time.Now,
		sessions:      session.New[*Thread]("threads", idle),
	}
	r.sessions.Now = func() time.Time { return r.Now() }
	return r
}

func threadKey(userID, postID string) string { return userID + "/" + postID }

// For returns viewer's thread on postID. Anonymous viewers get a fresh,
// collapsed thread on every call.
func (r *Registry) For(viewer identity.Identity, postID string) *Thread {
	if !viewer.Authenticated() {
		return r.svc.NewThread(postID, r.pageSize, r.replyPageSize)
	}
	return r.sessions.Get(threadKey(viewer.UserID, postID), func() *Thread {
		return r.svc.NewThread(postID, r.pageSize, r.replyPageSize)
	})
}

// Evict drops threads idle for longer than the registry's timeout.
func (r *Registry) Evict() int {
	return r.sessions.Evict()
}
