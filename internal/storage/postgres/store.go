package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/storage"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store implements storage.Storage on PostgreSQL.
type Store struct {
	db       *gorm.DB
	observer *storage.Observer
}

// New connects to PostgreSQL and migrates the schema.
func New(dsn string, debug bool) (*Store, error) {
	logLevel := logger.Warn
	if debug {
		logLevel = logger.Info
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(models...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db, observer: storage.NewObserver()}, nil
}

// models are the migrated tables. Ids are plain text, so a malformed id in a
// query is a miss rather than a cast error.
var models = []any{
	&domain.Post{},
	&domain.Work{},
	&domain.Comment{},
	&domain.Reply{},
	&domain.Profile{},
	&domain.CrewEdge{},
	&domain.Tombstone{},
	&domain.Notification{},
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf(format+": %w", append(args, storage.ErrNotFound)...)
	}
	return err
}

// === Posts ===

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	var post domain.Post
	if err := s.db.WithContext(ctx).First(&post, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "post %s", id)
	}
	return &post, nil
}

func (s *Store) GetPosts(ctx context.Context, limit, offset int) ([]*domain.Post, error) {
	var posts []*domain.Post
	err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&posts).Error
	return posts, err
}

// === Works ===

func (s *Store) GetWork(ctx context.Context, postID, userID string) (*domain.Work, error) {
	var work domain.Work
	if err := s.db.WithContext(ctx).First(&work, "post_id = ? AND user_id = ?", postID, userID).Error; err != nil {
		return nil, notFound(err, "work %s/%s", postID, userID)
	}
	return &work, nil
}

func (s *Store) CountWorks(ctx context.Context, postID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.Work{}).Where("post_id = ?", postID).Count(&count).Error
	return count, err
}

func (s *Store) GetWorkedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(postIDs))
	if len(postIDs) == 0 {
		return result, nil
	}
	var worked []string
	if err := s.db.WithContext(ctx).Model(&domain.Work{}).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Pluck("post_id", &worked).Error; err != nil {
		return nil, err
	}
	for _, id := range postIDs {
		result[id] = false
	}
	for _, id := range worked {
		result[id] = true
	}
	return result, nil
}

// === Comments ===

func (s *Store) GetCommentByID(ctx context.Context, postID, id string) (*domain.Comment, error) {
	var comment domain.Comment
	if err := s.db.WithContext(ctx).First(&comment, "id = ? AND post_id = ?", id, postID).Error; err != nil {
		return nil, notFound(err, "comment %s", id)
	}
	return &comment, nil
}

func (s *Store) GetReplyByID(ctx context.Context, postID, rootID, id string) (*domain.Reply, error) {
	var reply domain.Reply
	if err := s.db.WithContext(ctx).
		First(&reply, "id = ? AND post_id = ? AND thread_root_id = ?", id, postID, rootID).Error; err != nil {
		return nil, notFound(err, "reply %s", id)
	}
	return &reply, nil
}

func (s *Store) GetCommentsByPostID(ctx context.Context, postID string, args storage.PaginationArgs) ([]*domain.Comment, error) {
	cursor, err := storage.DecodeArgs(args)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at DESC, id DESC").
		Limit(args.Limit)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var comments []*domain.Comment
	err = query.Find(&comments).Error
	return comments, err
}

func (s *Store) GetRepliesByCommentID(ctx context.Context, postID, rootID string, args storage.PaginationArgs) ([]*domain.Reply, error) {
	cursor, err := storage.DecodeArgs(args)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).
		Where("post_id = ? AND thread_root_id = ?", postID, rootID).
		Order("created_at ASC, id ASC").
		Limit(args.Limit)
	if cursor != nil {
		query = query.Where("(created_at > ?) OR (created_at = ? AND id > ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var replies []*domain.Reply
	err = query.Find(&replies).Error
	return replies, err
}

func (s *Store) CountComments(ctx context.Context, postID string) (int64, error) {
	var comments, replies int64
	if err := s.db.WithContext(ctx).Model(&domain.Comment{}).Where("post_id = ?", postID).Count(&comments).Error; err != nil {
		return 0, err
	}
	if err := s.db.WithContext(ctx).Model(&domain.Reply{}).Where("post_id = ?", postID).Count(&replies).Error; err != nil {
		return 0, err
	}
	return comments + replies, nil
}

func (s *Store) CountReplies(ctx context.Context, postID, rootID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.Reply{}).
		Where("post_id = ? AND thread_root_id = ?", postID, rootID).
		Count(&count).Error
	return count, err
}

// === Profiles and crew ===

func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var profile domain.Profile
	if err := s.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error; err != nil {
		return nil, notFound(err, "profile %s", userID)
	}
	return &profile, nil
}

func (s *Store) GetCrewEdge(ctx context.Context, dir domain.EdgeDirection, ownerID, otherID string) (*domain.CrewEdge, error) {
	var edge domain.CrewEdge
	if err := s.db.WithContext(ctx).
		First(&edge, "direction = ? AND owner_id = ? AND other_id = ?", dir, ownerID, otherID).Error; err != nil {
		return nil, notFound(err, "%s edge %s/%s", dir, ownerID, otherID)
	}
	return &edge, nil
}

func (s *Store) GetCrewEdges(ctx context.Context, dir domain.EdgeDirection, ownerID string, args storage.PaginationArgs) ([]*domain.CrewEdge, error) {
	cursor, err := storage.DecodeArgs(args)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).
		Where("direction = ? AND owner_id = ?", dir, ownerID).
		Order("added_at DESC, other_id DESC").
		Limit(args.Limit)
	if cursor != nil {
		query = query.Where("(added_at < ?) OR (added_at = ? AND other_id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var edges []*domain.CrewEdge
	err = query.Find(&edges).Error
	return edges, err
}

func (s *Store) CountCrewEdges(ctx context.Context, dir domain.EdgeDirection, ownerID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.CrewEdge{}).
		Where("direction = ? AND owner_id = ?", dir, ownerID).
		Count(&count).Error
	return count, err
}

func (s *Store) GetTombstone(ctx context.Context, userID, ignoredUserID string) (*domain.Tombstone, error) {
	var tombstone domain.Tombstone
	if err := s.db.WithContext(ctx).
		First(&tombstone, "user_id = ? AND ignored_user_id = ?", userID, ignoredUserID).Error; err != nil {
		return nil, notFound(err, "tombstone %s/%s", userID, ignoredUserID)
	}
	return &tombstone, nil
}

// === Notifications ===

func (s *Store) GetNotification(ctx context.Context, recipientID, id string) (*domain.Notification, error) {
	var n domain.Notification
	if err := s.db.WithContext(ctx).First(&n, "id = ? AND recipient_id = ?", id, recipientID).Error; err != nil {
		return nil, notFound(err, "notification %s", id)
	}
	return &n, nil
}

func (s *Store) GetNotifications(ctx context.Context, recipientID string, filter storage.NotificationFilter, args storage.PaginationArgs) ([]*domain.Notification, error) {
	cursor, err := storage.DecodeArgs(args)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC, id DESC").
		Limit(args.Limit)
	if filter.UnreadOnly {
		query = query.Where("read = ?", false)
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var notifications []*domain.Notification
	err = query.Find(&notifications).Error
	return notifications, err
}

// Subscribe serves changes committed through this process.
func (s *Store) Subscribe(ctx context.Context, topic storage.Topic) (<-chan storage.Change, error) {
	return s.observer.Subscribe(ctx, topic), nil
}
