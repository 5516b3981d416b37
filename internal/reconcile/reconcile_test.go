package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/storage"
	"github.com/UkralStul/crewfeed-service/internal/storage/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

// seed writes a post with two works, one comment with one reply, and
// deliberately wrong counters.
func seed(t *testing.T, store *inmemory.Store, postID string) {
	ctx := context.Background()
	require.NoError(t, store.Commit(ctx,
		storage.PutPost{Post: &domain.Post{ID: postID, CreatedAt: epoch, WorksCount: 9, CommentsCount: 0}},
		storage.PutWork{Work: &domain.Work{PostID: postID, UserID: "a", CreatedAt: epoch}},
		storage.PutWork{Work: &domain.Work{PostID: postID, UserID: "b", CreatedAt: epoch}},
		storage.PutComment{Comment: &domain.Comment{ID: postID + "-c", PostID: postID, CreatedAt: epoch, ReplyCount: 5}},
		storage.PutReply{Reply: &domain.Reply{ID: postID + "-r", PostID: postID, ThreadRootID: postID + "-c", CreatedAt: epoch.Add(time.Second)}},
	))
}

func TestReconciler_Post(t *testing.T) {
	store := inmemory.New()
	seed(t, store, "p1")
	ctx := context.Background()
	r := New(store)

	fixed, err := r.Post(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, fixed)

	post, err := store.GetPostByID(ctx, "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, post.WorksCount)
	assert.EqualValues(t, 2, post.CommentsCount)

	c, err := store.GetCommentByID(ctx, "p1", "p1-c")
	require.NoError(t, err)
	assert.EqualValues(t, 1, c.ReplyCount)

	// A second pass finds nothing to do.
	fixed, err = r.Post(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, fixed)
}

func TestReconciler_PostMissing(t *testing.T) {
	_, err := New(inmemory.New()).Post(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReconciler_Sweep(t *testing.T) {
	store := inmemory.New()
	seed(t, store, "p1")
	seed(t, store, "p2")

	fixed, err := New(store).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, fixed)
}

func TestReconciler_ScheduleRejectsBadSpec(t *testing.T) {
	_, err := New(inmemory.New()).Schedule("not a schedule")
	assert.Error(t, err)

	quartz, err := New(inmemory.New()).Schedule("@every 1h")
	require.NoError(t, err)
	quartz.Stop()
}
