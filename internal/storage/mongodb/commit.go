package mongodb

import (
	"context"
	"fmt"

	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Commit runs ops in one multi-document transaction.
func (s *Store) Commit(ctx context.Context, ops ...storage.Op) error {
	if len(ops) == 0 {
		return nil
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, op := range ops {
			if err := s.apply(sc, op); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	s.observer.Publish(ops...)
	return nil
}

func replace(ctx context.Context, coll *mongo.Collection, filter bson.M, doc any) error {
	_, err := coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) apply(ctx context.Context, op storage.Op) error {
	switch o := op.(type) {
	case storage.PutPost:
		return replace(ctx, s.posts, bson.M{"_id": o.Post.ID}, o.Post)
	case storage.PutWork:
		return replace(ctx, s.works, bson.M{"postId": o.Work.PostID, "userId": o.Work.UserID}, o.Work)
	case storage.DeleteWork:
		_, err := s.works.DeleteOne(ctx, bson.M{"postId": o.PostID, "userId": o.UserID})
		return err
	case storage.PutComment:
		return replace(ctx, s.comments, bson.M{"_id": o.Comment.ID}, o.Comment)
	case storage.PutReply:
		return replace(ctx, s.replies, bson.M{"_id": o.Reply.ID}, o.Reply)
	case storage.PutProfile:
		return replace(ctx, s.profiles, bson.M{"_id": o.Profile.UserID}, o.Profile)
	case storage.UpdateProfileFields:
		res, err := s.profiles.UpdateOne(ctx, bson.M{"_id": o.UserID}, bson.M{"$set": bson.M{
			"name":      o.Name,
			"photoUrl":  o.PhotoURL,
			"tag":       o.Tag,
			"specialty": o.Specialty,
			"updatedAt": o.UpdatedAt,
		}})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("profile %s: %w", o.UserID, storage.ErrNotFound)
		}
		return nil
	case storage.PutCrewEdge:
		return replace(ctx, s.edges, edgeFilter(o.Edge.Direction, o.Edge.OwnerID, o.Edge.OtherID), o.Edge)
	case storage.DeleteCrewEdge:
		_, err := s.edges.DeleteOne(ctx, edgeFilter(o.Direction, o.OwnerID, o.OtherID))
		return err
	case storage.PutTombstone:
		return replace(ctx, s.tombstones,
			bson.M{"userId": o.Tombstone.UserID, "ignoredUserId": o.Tombstone.IgnoredUserID}, o.Tombstone)
	case storage.DeleteTombstone:
		_, err := s.tombstones.DeleteOne(ctx, bson.M{"userId": o.UserID, "ignoredUserId": o.IgnoredUserID})
		return err
	case storage.PutNotification:
		return replace(ctx, s.notifications, bson.M{"_id": o.Notification.ID}, o.Notification)
	case storage.MarkNotificationRead:
		res, err := s.notifications.UpdateOne(ctx,
			bson.M{"_id": o.ID, "recipientId": o.RecipientID},
			bson.M{"$set": bson.M{"read": true}})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("notification %s: %w", o.ID, storage.ErrNotFound)
		}
		return nil
	case storage.DeleteNotification:
		_, err := s.notifications.DeleteOne(ctx, bson.M{"_id": o.ID, "recipientId": o.RecipientID})
		return err
	case storage.Increment:
		return s.updateCounter(ctx, o.Counter, "$inc", o.Delta)
	case storage.SetCounter:
		return s.updateCounter(ctx, o.Counter, "$set", o.Value)
	}
	return fmt.Errorf("mongodb: unsupported op %T", op)
}

func (s *Store) updateCounter(ctx context.Context, ref domain.CounterRef, operator string, value int64) error {
	var (
		coll   *mongo.Collection
		filter bson.M
		field  string
	)
	switch ref.Kind {
	case domain.CounterPostWorks:
		coll, filter, field = s.posts, bson.M{"_id": ref.PostID}, "worksCount"
	case domain.CounterPostComments:
		coll, filter, field = s.posts, bson.M{"_id": ref.PostID}, "commentsCount"
	case domain.CounterCommentReplies:
		coll, filter, field = s.comments, bson.M{"_id": ref.CommentID, "postId": ref.PostID}, "replyCount"
	case domain.CounterProfileFollowing:
		coll, filter, field = s.profiles, bson.M{"_id": ref.UserID}, "followingCount"
	case domain.CounterProfileFollowers:
		coll, filter, field = s.profiles, bson.M{"_id": ref.UserID}, "followersCount"
	default:
		return fmt.Errorf("mongodb: unknown counter %q", ref.Kind)
	}

	res, err := coll.UpdateOne(ctx, filter, bson.M{operator: bson.M{field: value}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", ref.Kind, storage.ErrNotFound)
	}
	return nil
}
