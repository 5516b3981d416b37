package postgres

import (
	"context"
	"fmt"

	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/storage"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Commit runs every op inside one transaction.
func (s *Store) Commit(ctx context.Context, ops ...storage.Op) error {
	if len(ops) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			if err := apply(tx, op); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.observer.Publish(ops...)
	return nil
}

func upsert(tx *gorm.DB, value any) error {
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(value).Error
}

func apply(tx *gorm.DB, op storage.Op) error {
	switch o := op.(type) {
	case storage.PutPost:
		return upsert(tx, o.Post)
	case storage.PutWork:
		return upsert(tx, o.Work)
	case storage.DeleteWork:
		return tx.Where("post_id = ? AND user_id = ?", o.PostID, o.UserID).Delete(&domain.Work{}).Error
	case storage.PutComment:
		return upsert(tx, o.Comment)
	case storage.PutReply:
		return upsert(tx, o.Reply)
	case storage.PutProfile:
		return upsert(tx, o.Profile)
	case storage.UpdateProfileFields:
		res := tx.Model(&domain.Profile{}).Where("user_id = ?", o.UserID).Updates(map[string]any{
			"name":       o.Name,
			"photo_url":  o.PhotoURL,
			"tag":        o.Tag,
			"specialty":  o.Specialty,
			"updated_at": o.UpdatedAt,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("profile %s: %w", o.UserID, storage.ErrNotFound)
		}
		return nil
	case storage.PutCrewEdge:
		return upsert(tx, o.Edge)
	case storage.DeleteCrewEdge:
		return tx.Where("direction = ? AND owner_id = ? AND other_id = ?", o.Direction, o.OwnerID, o.OtherID).
			Delete(&domain.CrewEdge{}).Error
	case storage.PutTombstone:
		return upsert(tx, o.Tombstone)
	case storage.DeleteTombstone:
		return tx.Where("user_id = ? AND ignored_user_id = ?", o.UserID, o.IgnoredUserID).
			Delete(&domain.Tombstone{}).Error
	case storage.PutNotification:
		return upsert(tx, o.Notification)
	case storage.MarkNotificationRead:
		res := tx.Model(&domain.Notification{}).
			Where("id = ? AND recipient_id = ?", o.ID, o.RecipientID).
			UpdateColumn("read", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("notification %s: %w", o.ID, storage.ErrNotFound)
		}
		return nil
	case storage.DeleteNotification:
		return tx.Where("id = ? AND recipient_id = ?", o.ID, o.RecipientID).Delete(&domain.Notification{}).Error
	case storage.Increment:
		return updateCounter(tx, o.Counter, func(column string) any {
			return gorm.Expr(column+" + ?", o.Delta)
		})
	case storage.SetCounter:
		return updateCounter(tx, o.Counter, func(string) any { return o.Value })
	}
	return fmt.Errorf("postgres: unsupported op %T", op)
}

func updateCounter(tx *gorm.DB, ref domain.CounterRef, value func(column string) any) error {
	var (
		model  any
		column string
		query  *gorm.DB
	)
	switch ref.Kind {
	case domain.CounterPostWorks:
		model, column = &domain.Post{}, "works_count"
		query = tx.Model(model).Where("id = ?", ref.PostID)
	case domain.CounterPostComments:
		model, column = &domain.Post{}, "comments_count"
		query = tx.Model(model).Where("id = ?", ref.PostID)
	case domain.CounterCommentReplies:
		model, column = &domain.Comment{}, "reply_count"
		query = tx.Model(model).Where("id = ? AND post_id = ?", ref.CommentID, ref.PostID)
	case domain.CounterProfileFollowing:
		model, column = &domain.Profile{}, "following_count"
		query = tx.Model(model).Where("user_id = ?", ref.UserID)
	case domain.CounterProfileFollowers:
		model, column = &domain.Profile{}, "followers_count"
		query = tx.Model(model).Where("user_id = ?", ref.UserID)
	default:
		return fmt.Errorf("postgres: unknown counter %q", ref.Kind)
	}

	res := query.UpdateColumn(column, value(column))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", ref.Kind, storage.ErrNotFound)
	}
	return nil
}
