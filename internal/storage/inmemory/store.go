package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/storage"
)

type workKey struct{ postID, userID string }

type edgeKey struct {
	dir            domain.EdgeDirection
	owner, otherID string
}

type tombstoneKey struct{ userID, ignoredID string }

// Store implements storage.Storage in memory.
type Store struct {
	mu             sync.RWMutex
	posts          map[string]*domain.Post
	works          map[workKey]*domain.Work
	comments       map[string]*domain.Comment
	commentsByPost map[string][]string // map[postID][]commentID
	replies        map[string]*domain.Reply
	repliesByRoot  map[string][]string // map[rootID][]replyID
	profiles       map[string]*domain.Profile
	edges          map[edgeKey]*domain.CrewEdge
	tombstones     map[tombstoneKey]*domain.Tombstone
	notifications  map[string]map[string]*domain.Notification // map[recipient][id]
	observer       *storage.Observer
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		posts:          make(map[string]*domain.Post),
		works:          make(map[workKey]*domain.Work),
		comments:       make(map[string]*domain.Comment),
		commentsByPost: make(map[string][]string),
		replies:        make(map[string]*domain.Reply),
		repliesByRoot:  make(map[string][]string),
		profiles:       make(map[string]*domain.Profile),
		edges:          make(map[edgeKey]*domain.CrewEdge),
		tombstones:     make(map[tombstoneKey]*domain.Tombstone),
		notifications:  make(map[string]map[string]*domain.Notification),
		observer:       storage.NewObserver(),
	}
}

// === Posts ===

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", id, storage.ErrNotFound)
	}
	return clonePost(post), nil
}

func (s *Store) GetPosts(ctx context.Context, limit, offset int) ([]*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allPosts := make([]*domain.Post, 0, len(s.posts))
	for _, p := range s.posts {
		allPosts = append(allPosts, p)
	}
	sort.Slice(allPosts, func(i, j int) bool {
		if allPosts[i].CreatedAt.Equal(allPosts[j].CreatedAt) {
			return allPosts[i].ID > allPosts[j].ID
		}
		return allPosts[i].CreatedAt.After(allPosts[j].CreatedAt)
	})

	start := offset
	if start >= len(allPosts) {
		return []*domain.Post{}, nil
	}
	end := start + limit
	if end > len(allPosts) {
		end = len(allPosts)
	}
	result := make([]*domain.Post, 0, end-start)
	for _, p := range allPosts[start:end] {
		result = append(result, clonePost(p))
	}
	return result, nil
}

// === Works ===

func (s *Store) GetWork(ctx context.Context, postID, userID string) (*domain.Work, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	work, ok := s.works[workKey{postID, userID}]
	if !ok {
		return nil, fmt.Errorf("work %s/%s: %w", postID, userID, storage.ErrNotFound)
	}
	w := *work
	return &w, nil
}

func (s *Store) CountWorks(ctx context.Context, postID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for k := range s.works {
		if k.postID == postID {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetWorkedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]bool, len(postIDs))
	for _, id := range postIDs {
		_, result[id] = s.works[workKey{id, userID}]
	}
	return result, nil
}

// === Comments ===

func (s *Store) GetCommentByID(ctx context.Context, postID, id string) (*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comment, ok := s.comments[id]
	if !ok || comment.PostID != postID {
		return nil, fmt.Errorf("comment %s: %w", id, storage.ErrNotFound)
	}
	c := *comment
	return &c, nil
}

func (s *Store) GetReplyByID(ctx context.Context, postID, rootID, id string) (*domain.Reply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reply, ok := s.replies[id]
	if !ok || reply.PostID != postID || reply.ThreadRootID != rootID {
		return nil, fmt.Errorf("reply %s: %w", id, storage.ErrNotFound)
	}
	return cloneReply(reply), nil
}

func (s *Store) GetCommentsByPostID(ctx context.Context, postID string, args storage.PaginationArgs) ([]*domain.Comment, error) {
	cursor, err := storage.DecodeArgs(args)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.Comment, 0, len(s.commentsByPost[postID]))
	for _, id := range s.commentsByPost[postID] {
		if c, ok := s.comments[id]; ok {
			all = append(all, c)
		}
	}
	// Newest first
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	result := make([]*domain.Comment, 0, args.Limit)
	for _, c := range all {
		if len(result) == args.Limit {
			break
		}
		if cursor != nil && !cursor.Before(c.CreatedAt, c.ID) {
			continue
		}
		cc := *c
		result = append(result, &cc)
	}
	return result, nil
}

func (s *Store) GetRepliesByCommentID(ctx context.Context, postID, rootID string, args storage.PaginationArgs) ([]*domain.Reply, error) {
	cursor, err := storage.DecodeArgs(args)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.Reply, 0, len(s.repliesByRoot[rootID]))
	for _, id := range s.repliesByRoot[rootID] {
		if r, ok := s.replies[id]; ok && r.PostID == postID {
			all = append(all, r)
		}
	}
	// Oldest first
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	result := make([]*domain.Reply, 0, args.Limit)
	for _, r := range all {
		if len(result) == args.Limit {
			break
		}
		if cursor != nil && !cursor.After(r.CreatedAt, r.ID) {
			continue
		}
		result = append(result, cloneReply(r))
	}
	return result, nil
}

func (s *Store) CountComments(ctx context.Context, postID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := int64(len(s.commentsByPost[postID]))
	for _, r := range s.replies {
		if r.PostID == postID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountReplies(ctx context.Context, postID, rootID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, id := range s.repliesByRoot[rootID] {
		if r, ok := s.replies[id]; ok && r.PostID == postID {
			n++
		}
	}
	return n, nil
}

// === Profiles and crew ===

func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, storage.ErrNotFound)
	}
	pp := *p
	return &pp, nil
}

func (s *Store) GetCrewEdge(ctx context.Context, dir domain.EdgeDirection, ownerID, otherID string) (*domain.CrewEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.edges[edgeKey{dir, ownerID, otherID}]
	if !ok {
		return nil, fmt.Errorf("%s edge %s/%s: %w", dir, ownerID, otherID, storage.ErrNotFound)
	}
	ee := *e
	return &ee, nil
}

func (s *Store) GetCrewEdges(ctx context.Context, dir domain.EdgeDirection, ownerID string, args storage.PaginationArgs) ([]*domain.CrewEdge, error) {
	cursor, err := storage.DecodeArgs(args)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*domain.CrewEdge
	for k, e := range s.edges {
		if k.dir == dir && k.owner == ownerID {
			all = append(all, e)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].AddedAt.Equal(all[j].AddedAt) {
			return all[i].OtherID > all[j].OtherID
		}
		return all[i].AddedAt.After(all[j].AddedAt)
	})

	result := make([]*domain.CrewEdge, 0, args.Limit)
	for _, e := range all {
		if len(result) == args.Limit {
			break
		}
		if cursor != nil && !cursor.Before(e.AddedAt, e.OtherID) {
			continue
		}
		ee := *e
		result = append(result, &ee)
	}
	return result, nil
}

func (s *Store) CountCrewEdges(ctx context.Context, dir domain.EdgeDirection, ownerID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for k := range s.edges {
		if k.dir == dir && k.owner == ownerID {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetTombstone(ctx context.Context, userID, ignoredUserID string) (*domain.Tombstone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tombstones[tombstoneKey{userID, ignoredUserID}]
	if !ok {
		return nil, fmt.Errorf("tombstone %s/%s: %w", userID, ignoredUserID, storage.ErrNotFound)
	}
	tt := *t
	return &tt, nil
}

// === Notifications ===

func (s *Store) GetNotification(ctx context.Context, recipientID, id string) (*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[recipientID][id]
	if !ok {
		return nil, fmt.Errorf("notification %s: %w", id, storage.ErrNotFound)
	}
	nn := *n
	return &nn, nil
}

func (s *Store) GetNotifications(ctx context.Context, recipientID string, filter storage.NotificationFilter, args storage.PaginationArgs) ([]*domain.Notification, error) {
	cursor, err := storage.DecodeArgs(args)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*domain.Notification
	for _, n := range s.notifications[recipientID] {
		if filter.UnreadOnly && n.Read {
			continue
		}
		all = append(all, n)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	result := make([]*domain.Notification, 0, args.Limit)
	for _, n := range all {
		if len(result) == args.Limit {
			break
		}
		if cursor != nil && !cursor.Before(n.CreatedAt, n.ID) {
			continue
		}
		nn := *n
		result = append(result, &nn)
	}
	return result, nil
}

// === Subscriptions ===

func (s *Store) Subscribe(ctx context.Context, topic storage.Topic) (<-chan storage.Change, error) {
	return s.observer.Subscribe(ctx, topic), nil
}

func clonePost(p *domain.Post) *domain.Post {
	pp := *p
	pp.Images = append(pp.Images[:0:0], p.Images...)
	return &pp
}

func cloneReply(r *domain.Reply) *domain.Reply {
	rr := *r
	if r.AddressedToUserID != nil {
		id := *r.AddressedToUserID
		rr.AddressedToUserID = &id
	}
	return &rr
}
