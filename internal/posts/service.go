package posts

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/apperr"
	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/storage"
	"github.com/UkralStul/crewfeed-service/internal/upload"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const MaxImages = 10

// SnapshotSource produces the author snapshot stored with a post.
type SnapshotSource interface {
	Snapshot(ctx context.Context, id identity.Identity) domain.ActorSnapshot
}

// Image is one file attached to a new post.
type Image struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type Input struct {
	Caption    string            `validate:"max=2000"`
	Visibility domain.Visibility `validate:"omitempty,oneof=public followers"`
}

// FeedPage is one offset page of the feed. Followers-only posts the viewer
// may not see are dropped, so Items can be shorter than the limit while
// HasMore is still true.
type FeedPage struct {
	Items      []*domain.Post `json:"items"`
	HasMore    bool           `json:"hasMore"`
	NextOffset int            `json:"nextOffset"`
}

type Service struct {
	store     storage.Storage
	uploader  upload.Uploader
	snapshots SnapshotSource
	validate  *validator.Validate
	Now       func() time.Time
}

func NewService(store storage.Storage, uploader upload.Uploader, snapshots SnapshotSource) *Service {
	return &Service{
		store:     store,
		uploader:  uploader,
		snapshots: snapshots,
		validate:  validator.New(),
		Now:       time.Now,
	}
}

// Create uploads every image and only then writes the post. Any failed or
// empty upload aborts before the write.
func (s *Service) Create(ctx context.Context, actor identity.Identity, in Input, images []Image) (*domain.Post, error) {
	if !actor.Authenticated() {
		return nil, apperr.ErrUnauthenticated
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.InvalidInput("invalid post", err)
	}
	if len(images) > MaxImages {
		return nil, apperr.InvalidInput("too many images", nil)
	}
	if in.Visibility == "" {
		in.Visibility = domain.VisibilityPublic
	}

	urls := make([]string, 0, len(images))
	for _, img := range images {
		key := upload.ObjectKey("posts/"+actor.UserID, img.Filename)
		url, err := s.uploader.Upload(ctx, key, img.Body, img.ContentType)
		if err == nil && url == "" {
			err = errors.New("empty download url")
		}
		if err != nil {
			log.Warn().Err(err).Str("user", actor.UserID).Str("file", img.Filename).Msg("Image upload failed")
			return nil, apperr.New(apperr.CodeUploadFailed, "image upload failed", err)
		}
		urls = append(urls, url)
	}

	post := &domain.Post{
		ID:         uuid.NewString(),
		Author:     s.snapshots.Snapshot(ctx, actor),
		Images:     urls,
		Caption:    strings.TrimSpace(in.Caption),
		Visibility: in.Visibility,
		CreatedAt:  domain.Timestamp(s.Now()),
	}
	if err := s.store.Commit(ctx, storage.PutPost{Post: post}); err != nil {
		return nil, err
	}
	return post, nil
}

// Get returns one post the viewer may see.
func (s *Service) Get(ctx context.Context, viewer identity.Identity, postID string) (*domain.Post, error) {
	post, err := s.store.GetPostByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	ok, err := s.visible(ctx, viewer, post, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.ErrPermissionDenied
	}
	return post, nil
}

// Feed lists posts newest first, hiding followers-only posts from viewers
// outside the author's followers.
func (s *Service) Feed(ctx context.Context, viewer identity.Identity, limit, offset int) (FeedPage, error) {
	if limit <= 0 {
		return FeedPage{}, apperr.InvalidInput("limit must be positive", nil)
	}
	raw, err := s.store.GetPosts(ctx, limit, offset)
	if err != nil {
		return FeedPage{}, err
	}

	follows := make(map[string]bool)
	items := make([]*domain.Post, 0, len(raw))
	for _, p := range raw {
		ok, err := s.visible(ctx, viewer, p, follows)
		if err != nil {
			return FeedPage{}, err
		}
		if ok {
			items = append(items, p)
		}
	}
	return FeedPage{
		Items:      items,
		HasMore:    len(raw) == limit,
		NextOffset: offset + len(raw),
	}, nil
}

// visible memoizes follow checks per author in follows when it is non-nil.
func (s *Service) visible(ctx context.Context, viewer identity.Identity, p *domain.Post, follows map[string]bool) (bool, error) {
	if p.Visibility != domain.VisibilityFollowers || p.Author.UserID == viewer.UserID {
		return true, nil
	}
	if !viewer.Authenticated() {
		return false, nil
	}
	if ok, seen := follows[p.Author.UserID]; seen {
		return ok, nil
	}

	_, err := s.store.GetCrewEdge(ctx, domain.DirectionFollowers, p.Author.UserID, viewer.UserID)
	ok := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}
	if follows != nil {
		follows[p.Author.UserID] = ok
	}
	return ok, nil
}
