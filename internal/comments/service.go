package comments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/apperr"
	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/notify"
	"github.com/UkralStul/crewfeed-service/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// MaxTextLength is the longest comment or reply, in characters.
const MaxTextLength = 2000

var (
	ErrEmptyText   = apperr.InvalidInput("comment content cannot be empty", nil)
	ErrTextTooLong = apperr.InvalidInput("comment content is too long", nil)
)

// SnapshotSource produces the author snapshot stored with a comment.
type SnapshotSource interface {
	Snapshot(ctx context.Context, id identity.Identity) domain.ActorSnapshot
}

type textInput struct {
	Text string `validate:"required,max=2000"`
}

// Service reads and writes comment threads.
type Service struct {
	store     storage.Storage
	notifier  *notify.Emitter
	snapshots SnapshotSource
	validate  *validator.Validate
	Now       func() time.Time
}

func NewService(store storage.Storage, notifier *notify.Emitter, snapshots SnapshotSource) *Service {
	return &Service{
		store:     store,
		notifier:  notifier,
		snapshots: snapshots,
		validate:  validator.New(),
		Now:       time.Now,
	}
}

func (s *Service) checkText(text string) error {
	err := s.validate.Struct(textInput{Text: text})
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		if verrs[0].Tag() == "max" {
			return ErrTextTooLong
		}
		return ErrEmptyText
	}
	return err
}

func commentKey(c *domain.Comment) (time.Time, string) { return c.CreatedAt, c.ID }
func replyKey(r *domain.Reply) (time.Time, string) { return r.CreatedAt, r.ID }

// LoadTopLevel returns one page of a post's top-level comments, newest
// first. HasMore is true iff the page is full.
func (s *Service) LoadTopLevel(ctx context.Context, postID string, args storage.PaginationArgs) (storage.Page[*domain.Comment], error) {
	if args.Limit <= 0 {
		return storage.Page[*domain.Comment]{}, apperr.InvalidInput("page size must be positive", nil)
	}
	items, err := s.store.GetCommentsByPostID(ctx, postID, args)
	if err != nil {
		return storage.Page[*domain.Comment]{}, err
	}
	return storage.NewPage(items, args.Limit, commentKey), nil
}

// LoadReplies returns one page of a thread's replies, oldest first.
func (s *Service) LoadReplies(ctx context.Context, postID, commentID string, args storage.PaginationArgs) (storage.Page[*domain.Reply], error) {
	if args.Limit <= 0 {
		return storage.Page[*domain.Reply]{}, apperr.InvalidInput("page size must be positive", nil)
	}
	items, err := s.store.GetRepliesByCommentID(ctx, postID, commentID, args)
	if err != nil {
		return storage.Page[*domain.Reply]{}, err
	}
	return storage.NewPage(items, args.Limit, replyKey), nil
}

// GetComment is the deep-link point read.
func (s *Service) GetComment(ctx context.Context, postID, commentID string) (*domain.Comment, error) {
	return s.store.GetCommentByID(ctx, postID, commentID)
}

// ResolveTarget loads the entry a new reply answers: the top-level comment
// itself, or one of its replies when replyID is set.
func (s *Service) ResolveTarget(ctx context.Context, postID, commentID, replyID string) (domain.ThreadEntry, error) {
	if replyID == "" {
		return s.store.GetCommentByID(ctx, postID, commentID)
	}
	return s.store.GetReplyByID(ctx, postID, commentID, replyID)
}

// AddComment writes a top-level comment together with the post's
// commentsCount delta, then notifies the post author.
func (s *Service) AddComment(ctx context.Context, actor identity.Identity, postID, text string) (*domain.Comment, error) {
	if !actor.Authenticated() {
		return nil, apperr.ErrUnauthenticated
	}
	text = strings.TrimSpace(text)
	if err := s.checkText(text); err != nil {
		return nil, err
	}
	post, err := s.store.GetPostByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	// Writes and the notification complete even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	author := s.snapshots.Snapshot(ctx, actor)
	comment := &domain.Comment{
		ID:        uuid.NewString(),
		PostID:    postID,
		Author:    author,
		Text:      text,
		CreatedAt: domain.Timestamp(s.Now()),
	}
	if err := s.store.Commit(ctx,
		storage.PutComment{Comment: comment},
		storage.Increment{Counter: domain.PostComments(postID), Delta: 1},
	); err != nil {
		return nil, err
	}

	s.notifier.Emit(ctx, notify.Event{
		RecipientID: post.Author.UserID,
		Type:        domain.NotificationComment,
		Actor:       author,
		Message:     notify.CommentMessage(author, text),
		PostID:      postID,
		CommentID:   comment.ID,
	})
	return comment, nil
}

// AddReply files a reply under the thread root of target, addressed to
// target's author. The reply, the root's replyCount and the post's
// commentsCount are written in one batch. The addressee is notified.
func (s *Service) AddReply(ctx context.Context, actor identity.Identity, target domain.ThreadEntry, text string) (*domain.Reply, error) {
	if !actor.Authenticated() {
		return nil, apperr.ErrUnauthenticated
	}
	text = strings.TrimSpace(text)
	if err := s.checkText(text); err != nil {
		return nil, err
	}

	rootID, addressee := ReplyTarget(target)
	root, err := s.store.GetCommentByID(ctx, postIDOf(target), rootID)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	author := s.snapshots.Snapshot(ctx, actor)
	reply := &domain.Reply{
		ID:              uuid.NewString(),
		PostID:          root.PostID,
		ThreadRootID:    root.ID,
		AddressedToName: addressee.Name,
		Author:          author,
		Text:            text,
		CreatedAt:       domain.Timestamp(s.Now()),
	}
	if addressee.UserID != "" {
		addressedTo := addressee.UserID
		reply.AddressedToUserID = &addressedTo
	}

	if err := s.store.Commit(ctx,
		storage.PutReply{Reply: reply},
		storage.Increment{Counter: domain.CommentReplies(root.PostID, root.ID), Delta: 1},
		storage.Increment{Counter: domain.PostComments(root.PostID), Delta: 1},
	); err != nil {
		return nil, err
	}

	s.notifier.Emit(ctx, notify.Event{
		RecipientID: addressee.UserID,
		Type:        domain.NotificationComment,
		Actor:       author,
		Message:     notify.ReplyMessage(author, text),
		PostID:      root.PostID,
		CommentID:   root.ID,
	})
	return reply, nil
}

func postIDOf(entry domain.ThreadEntry) string {
	switch e := entry.(type) {
	case *domain.Comment:
		return e.PostID
	case *domain.Reply:
		return e.PostID
	}
	return ""
}
