package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/storage"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store implements storage.Storage on MongoDB. Commit needs a replica set
// because batches run in a multi-document transaction.
type Store struct {
	client        *mongo.Client
	posts         *mongo.Collection
	works         *mongo.Collection
	comments      *mongo.Collection
	replies       *mongo.Collection
	profiles      *mongo.Collection
	edges         *mongo.Collection
	tombstones    *mongo.Collection
	notifications *mongo.Collection
	observer      *storage.Observer
}

func New(ctx context.Context, uri, database string) (*Store, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Database("admin").RunCommand(connectCtx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	log.Info().Str("database", database).Msg("connected to MongoDB")

	db := client.Database(database)
	s := &Store{
		client:        client,
		posts:         db.Collection("posts"),
		works:         db.Collection("works"),
		comments:      db.Collection("comments"),
		replies:       db.Collection("replies"),
		profiles:      db.Collection("profiles"),
		edges:         db.Collection("crew_edges"),
		tombstones:    db.Collection("tombstones"),
		notifications: db.Collection("notifications"),
		observer:      storage.NewObserver(),
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.works: {{
			Keys:    bson.D{{Key: "postId", Value: 1}, {Key: "userId", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		s.comments: {{Keys: bson.D{{Key: "postId", Value: 1}, {Key: "createdAt", Value: -1}}}},
		s.replies:  {{Keys: bson.D{{Key: "threadRootId", Value: 1}, {Key: "createdAt", Value: 1}}}},
		s.edges: {{
			Keys:    bson.D{{Key: "direction", Value: 1}, {Key: "ownerId", Value: 1}, {Key: "otherId", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		s.tombstones: {{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "ignoredUserId", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		s.notifications: {{Keys: bson.D{{Key: "recipientId", Value: 1}, {Key: "createdAt", Value: -1}}}},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, what string) (*T, error) {
	var doc T
	err := coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}
	return &doc, nil
}

func findMany[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts *options.FindOptions) ([]*T, error) {
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*T
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// keyset narrows filter to the items after cursor in a (timeField, idField)
// ordering. dir is -1 for descending and 1 for ascending.
func keyset(filter bson.M, args storage.PaginationArgs, timeField, idField string, dir int) (bson.M, error) {
	cursor, err := storage.DecodeArgs(args)
	if err != nil || cursor == nil {
		return filter, err
	}
	op := "$lt"
	if dir > 0 {
		op = "$gt"
	}
	filter["$or"] = bson.A{
		bson.M{timeField: bson.M{op: cursor.CreatedAt}},
		bson.M{timeField: cursor.CreatedAt, idField: bson.M{op: cursor.ID}},
	}
	return filter, nil
}

func sorted(timeField, idField string, dir, limit int) *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: timeField, Value: dir}, {Key: idField, Value: dir}}).
		SetLimit(int64(limit))
}

// === Posts ===

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	return findOne[domain.Post](ctx, s.posts, bson.M{"_id": id}, "post "+id)
}

func (s *Store) GetPosts(ctx context.Context, limit, offset int) ([]*domain.Post, error) {
	opts := sorted("createdAt", "_id", -1, limit).SetSkip(int64(offset))
	return findMany[domain.Post](ctx, s.posts, bson.M{}, opts)
}

// === Works ===

func (s *Store) GetWork(ctx context.Context, postID, userID string) (*domain.Work, error) {
	return findOne[domain.Work](ctx, s.works, bson.M{"postId": postID, "userId": userID}, "work "+postID+"/"+userID)
}

func (s *Store) CountWorks(ctx context.Context, postID string) (int64, error) {
	return s.works.CountDocuments(ctx, bson.M{"postId": postID})
}

func (s *Store) GetWorkedPostIDs(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(postIDs))
	if len(postIDs) == 0 {
		return result, nil
	}
	works, err := findMany[domain.Work](ctx, s.works, bson.M{"userId": userID, "postId": bson.M{"$in": postIDs}}, nil)
	if err != nil {
		return nil, err
	}
	for _, id := range postIDs {
		result[id] = false
	}
	for _, w := range works {
		result[w.PostID] = true
	}
	return result, nil
}

// === Comments ===

func (s *Store) GetCommentByID(ctx context.Context, postID, id string) (*domain.Comment, error) {
	return findOne[domain.Comment](ctx, s.comments, bson.M{"_id": id, "postId": postID}, "comment "+id)
}

func (s *Store) GetReplyByID(ctx context.Context, postID, rootID, id string) (*domain.Reply, error) {
	return findOne[domain.Reply](ctx, s.replies, bson.M{"_id": id, "postId": postID, "threadRootId": rootID}, "reply "+id)
}

func (s *Store) GetCommentsByPostID(ctx context.Context, postID string, args storage.PaginationArgs) ([]*domain.Comment, error) {
	filter, err := keyset(bson.M{"postId": postID}, args, "createdAt", "_id", -1)
	if err != nil {
		return nil, err
	}
	return findMany[domain.Comment](ctx, s.comments, filter, sorted("createdAt", "_id", -1, args.Limit))
}

func (s *Store) GetRepliesByCommentID(ctx context.Context, postID, rootID string, args storage.PaginationArgs) ([]*domain.Reply, error) {
	filter, err := keyset(bson.M{"postId": postID, "threadRootId": rootID}, args, "createdAt", "_id", 1)
	if err != nil {
		return nil, err
	}
	return findMany[domain.Reply](ctx, s.replies, filter, sorted("createdAt", "_id", 1, args.Limit))
}

func (s *Store) CountComments(ctx context.Context, postID string) (int64, error) {
	comments, err := s.comments.CountDocuments(ctx, bson.M{"postId": postID})
	if err != nil {
		return 0, err
	}
	replies, err := s.replies.CountDocuments(ctx, bson.M{"postId": postID})
	if err != nil {
		return 0, err
	}
	return comments + replies, nil
}

func (s *Store) CountReplies(ctx context.Context, postID, rootID string) (int64, error) {
	return s.replies.CountDocuments(ctx, bson.M{"postId": postID, "threadRootId": rootID})
}

// === Profiles and crew ===

func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	return findOne[domain.Profile](ctx, s.profiles, bson.M{"_id": userID}, "profile "+userID)
}

func edgeFilter(dir domain.EdgeDirection, ownerID, otherID string) bson.M {
	return bson.M{"direction": dir, "ownerId": ownerID, "otherId": otherID}
}

func (s *Store) GetCrewEdge(ctx context.Context, dir domain.EdgeDirection, ownerID, otherID string) (*domain.CrewEdge, error) {
	return findOne[domain.CrewEdge](ctx, s.edges, edgeFilter(dir, ownerID, otherID),
		fmt.Sprintf("%s edge %s/%s", dir, ownerID, otherID))
}

func (s *Store) GetCrewEdges(ctx context.Context, dir domain.EdgeDirection, ownerID string, args storage.PaginationArgs) ([]*domain.CrewEdge, error) {
	filter, err := keyset(bson.M{"direction": dir, "ownerId": ownerID}, args, "addedAt", "otherId", -1)
	if err != nil {
		return nil, err
	}
	return findMany[domain.CrewEdge](ctx, s.edges, filter, sorted("addedAt", "otherId", -1, args.Limit))
}

func (s *Store) CountCrewEdges(ctx context.Context, dir domain.EdgeDirection, ownerID string) (int64, error) {
	return s.edges.CountDocuments(ctx, bson.M{"direction": dir, "ownerId": ownerID})
}

func (s *Store) GetTombstone(ctx context.Context, userID, ignoredUserID string) (*domain.Tombstone, error) {
	return findOne[domain.Tombstone](ctx, s.tombstones, bson.M{"userId": userID, "ignoredUserId": ignoredUserID},
		"tombstone "+userID+"/"+ignoredUserID)
}

// === Notifications ===

func (s *Store) GetNotification(ctx context.Context, recipientID, id string) (*domain.Notification, error) {
	return findOne[domain.Notification](ctx, s.notifications, bson.M{"_id": id, "recipientId": recipientID}, "notification "+id)
}

func (s *Store) GetNotifications(ctx context.Context, recipientID string, filter storage.NotificationFilter, args storage.PaginationArgs) ([]*domain.Notification, error) {
	query := bson.M{"recipientId": recipientID}
	if filter.UnreadOnly {
		query["read"] = false
	}
	query, err := keyset(query, args, "createdAt", "_id", -1)
	if err != nil {
		return nil, err
	}
	return findMany[domain.Notification](ctx, s.notifications, query, sorted("createdAt", "_id", -1, args.Limit))
}

// Subscribe serves changes committed through this process.
func (s *Store) Subscribe(ctx context.Context, topic storage.Topic) (<-chan storage.Change, error) {
	return s.observer.Subscribe(ctx, topic), nil
}
