package inmemory

import (
	"context"
	"fmt"

	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/storage"
	"github.com/samber/lo"
)

// Commit applies ops in order under the write lock. Every applied op records
// an undo step; if any op fails the batch is rolled back in reverse.
func (s *Store) Commit(ctx context.Context, ops ...storage.Op) error {
	if len(ops) == 0 {
		return nil
	}

	s.mu.Lock()
	var undo []func()
	for _, op := range ops {
		u, err := s.apply(op)
		if err != nil {
			for i := len(undo) - 1; i >= 0; i-- {
				undo[i]()
			}
			s.mu.Unlock()
			return err
		}
		undo = append(undo, u)
	}
	s.mu.Unlock()

	s.observer.Publish(ops...)
	return nil
}

func (s *Store) apply(op storage.Op) (func(), error) {
	switch o := op.(type) {
	case storage.PutPost:
		p := clonePost(o.Post)
		return restore(s.posts, p.ID, p), nil

	case storage.PutWork:
		w := *o.Work
		return restore(s.works, workKey{w.PostID, w.UserID}, &w), nil

	case storage.DeleteWork:
		return remove(s.works, workKey{o.PostID, o.UserID}), nil

	case storage.PutComment:
		c := *o.Comment
		_, existed := s.comments[c.ID]
		undo := restore(s.comments, c.ID, &c)
		if existed {
			return undo, nil
		}
		s.commentsByPost[c.PostID] = append(s.commentsByPost[c.PostID], c.ID)
		return func() {
			undo()
			s.commentsByPost[c.PostID] = lo.Without(s.commentsByPost[c.PostID], c.ID)
		}, nil

	case storage.PutReply:
		r := cloneReply(o.Reply)
		_, existed := s.replies[r.ID]
		undo := restore(s.replies, r.ID, r)
		if existed {
			return undo, nil
		}
		s.repliesByRoot[r.ThreadRootID] = append(s.repliesByRoot[r.ThreadRootID], r.ID)
		return func() {
			undo()
			s.repliesByRoot[r.ThreadRootID] = lo.Without(s.repliesByRoot[r.ThreadRootID], r.ID)
		}, nil

	case storage.PutProfile:
		p := *o.Profile
		return restore(s.profiles, p.UserID, &p), nil

	case storage.UpdateProfileFields:
		p, ok := s.profiles[o.UserID]
		if !ok {
			return nil, fmt.Errorf("profile %s: %w", o.UserID, storage.ErrNotFound)
		}
		was := *p
		p.Name, p.PhotoURL, p.Tag, p.Specialty = o.Name, o.PhotoURL, o.Tag, o.Specialty
		p.UpdatedAt = o.UpdatedAt
		return func() {
			p.Name, p.PhotoURL, p.Tag, p.Specialty = was.Name, was.PhotoURL, was.Tag, was.Specialty
			p.UpdatedAt = was.UpdatedAt
		}, nil

	case storage.PutCrewEdge:
		e := *o.Edge
		return restore(s.edges, edgeKey{e.Direction, e.OwnerID, e.OtherID}, &e), nil

	case storage.DeleteCrewEdge:
		return remove(s.edges, edgeKey{o.Direction, o.OwnerID, o.OtherID}), nil

	case storage.PutTombstone:
		t := *o.Tombstone
		return restore(s.tombstones, tombstoneKey{t.UserID, t.IgnoredUserID}, &t), nil

	case storage.DeleteTombstone:
		return remove(s.tombstones, tombstoneKey{o.UserID, o.IgnoredUserID}), nil

	case storage.PutNotification:
		n := *o.Notification
		inbox := s.notifications[n.RecipientID]
		if inbox == nil {
			inbox = make(map[string]*domain.Notification)
			s.notifications[n.RecipientID] = inbox
		}
		return restore(inbox, n.ID, &n), nil

	case storage.MarkNotificationRead:
		n, ok := s.notifications[o.RecipientID][o.ID]
		if !ok {
			return nil, fmt.Errorf("notification %s: %w", o.ID, storage.ErrNotFound)
		}
		was := n.Read
		n.Read = true
		return func() { n.Read = was }, nil

	case storage.DeleteNotification:
		inbox := s.notifications[o.RecipientID]
		if inbox == nil {
			return func() {}, nil
		}
		return remove(inbox, o.ID), nil

	case storage.Increment:
		field, err := s.counter(o.Counter)
		if err != nil {
			return nil, err
		}
		*field += o.Delta
		return func() { *field -= o.Delta }, nil

	case storage.SetCounter:
		field, err := s.counter(o.Counter)
		if err != nil {
			return nil, err
		}
		was := *field
		*field = o.Value
		return func() { *field = was }, nil
	}

	return nil, fmt.Errorf("inmemory: unsupported op %T", op)
}

// counter resolves a counter reference to the live field it names.
func (s *Store) counter(ref domain.CounterRef) (*int64, error) {
	switch ref.Kind {
	case domain.CounterPostWorks, domain.CounterPostComments:
		p, ok := s.posts[ref.PostID]
		if !ok {
			return nil, fmt.Errorf("post %s: %w", ref.PostID, storage.ErrNotFound)
		}
		if ref.Kind == domain.CounterPostWorks {
			return &p.WorksCount, nil
		}
		return &p.CommentsCount, nil
	case domain.CounterCommentReplies:
		c, ok := s.comments[ref.CommentID]
		if !ok || c.PostID != ref.PostID {
			return nil, fmt.Errorf("comment %s: %w", ref.CommentID, storage.ErrNotFound)
		}
		return &c.ReplyCount, nil
	case domain.CounterProfileFollowing, domain.CounterProfileFollowers:
		p, ok := s.profiles[ref.UserID]
		if !ok {
			return nil, fmt.Errorf("profile %s: %w", ref.UserID, storage.ErrNotFound)
		}
		if ref.Kind == domain.CounterProfileFollowing {
			return &p.FollowingCount, nil
		}
		return &p.FollowersCount, nil
	}
	return nil, fmt.Errorf("inmemory: unknown counter %q", ref.Kind)
}

// restore sets m[k] = v and returns the step that puts the previous value
// back.
func restore[K comparable, V any](m map[K]*V, k K, v *V) func() {
	prev, existed := m[k]
	m[k] = v
	return func() {
		if existed {
			m[k] = prev
		} else {
			delete(m, k)
		}
	}
}

func remove[K comparable, V any](m map[K]*V, k K) func() {
	prev, existed := m[k]
	if !existed {
		return func() {}
	}
	delete(m, k)
	return func() { m[k] = prev }
}
