package storage

import (
	"context"

	"github.com/UkralStul/crewfeed-service/internal/apperr"
	"github.com/UkralStul/crewfeed-service/internal/domain"
)

var (
	ErrNotFound         = apperr.New(apperr.CodeNotFound, "document not found", nil)
	ErrPermissionDenied = apperr.New(apperr.CodePermissionDenied, "permission denied", nil)
)

// PaginationArgs are the arguments of a cursor-paginated query. Cursor is the
// opaque cursor of the last item of the previous page.
type PaginationArgs struct {
	Limit  int
	Cursor *string
}

// NotificationFilter narrows a notification query.
type NotificationFilter struct {
	UnreadOnly bool
}

// Reader is the query side of the document store.
type Reader interface {
	GetPosts(ctx context.Context, limit, offset int) ([]*domain.Post, error)
	GetPostByID(ctx context.Context, id string) (*domain.Post, error)

	GetWork(ctx context.Context, postID, userID string) (*domain.Work, error)
	CountWorks(ctx context.Context, postID string) (int64, error)

	GetCommentByID(ctx context.Context, postID, id string) (*domain.Comment, error)
	GetReplyByID(ctx context.Context, postID, rootID, id string) (*domain.Reply, error)
	// Top-level comments, newest first.
	GetCommentsByPostID(ctx context.Context, postID string, args PaginationArgs) ([]*domain.Comment, error)
	// Replies of one thread, oldest first.
	GetRepliesByCommentID(ctx context.Context, postID, rootID string, args PaginationArgs) ([]*domain.Reply, error)
	// CountComments counts top-level comments and replies of a post.
	CountComments(ctx context.Context, postID string) (int64, error)
	CountReplies(ctx context.Context, postID, rootID string) (int64, error)

	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	GetCrewEdge(ctx context.Context, dir domain.EdgeDirection, ownerID, otherID string) (*domain.CrewEdge, error)
	// Edges of one owner, most recently added first.
	GetCrewEdges(ctx context.Context, dir domain.EdgeDirection, ownerID string, args PaginationArgs) ([]*domain.CrewEdge, error)
	CountCrewEdges(ctx context.Context, dir domain.EdgeDirection, ownerID string) (int64, error)
	GetTombstone(ctx context.Context, userID, ignoredUserID string) (*domain.Tombstone, error)

	GetNotification(ctx context.Context, recipientID, id string) (*domain.Notification, error)
	// Notifications of one recipient, newest first.
	GetNotifications(ctx context.Context, recipientID string, filter NotificationFilter, args PaginationArgs) ([]*domain.Notification, error)

	// Dataloader support: which of postIDs userID has worked.
	GetWorkedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error)
}

// Storage is the contract every backend implements.
type Storage interface {
	Reader

	// Commit applies ops as one atomic batch: either every op is applied or
	// none is. Counter ops never read the current value.
	Commit(ctx context.Context, ops ...Op) error

	// Subscribe pushes a Change for every committed batch touching topic until
	// ctx is done. The channel is buffered and coalescing: subscribers are
	// expected to re-read current state on each change.
	Subscribe(ctx context.Context, topic Topic) (<-chan Change, error)
}
