package crew

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/apperr"
	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/notify"
	"github.com/UkralStul/crewfeed-service/internal/profiles"
	"github.com/UkralStul/crewfeed-service/internal/storage"
	"github.com/UkralStul/crewfeed-service/internal/storage/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ana = identity.Identity{UserID: "ana", DisplayName: "Ana"}
	ben = identity.Identity{UserID: "ben", DisplayName: "Ben"}
	cai = identity.Identity{UserID: "cai", DisplayName: "Cai"}
)

// tombstoneFailingStore rejects every batch that writes a tombstone.
type tombstoneFailingStore struct {
	storage.Storage
}

func (s tombstoneFailingStore) Commit(ctx context.Context, ops ...storage.Op) error {
	for _, op := range ops {
		switch op.(type) {
		case storage.PutTombstone, storage.DeleteTombstone:
			return errors.New("tombstones unavailable")
		}
	}
	return s.Storage.Commit(ctx, ops...)
}

func newTestService(t *testing.T, store storage.Storage) *Service {
	profileSvc, err := profiles.NewService(store)
	require.NoError(t, err)

	clock := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	emitter := notify.NewEmitter(store)
	emitter.Now = tick
	svc := NewService(store, emitter, profileSvc)
	svc.Now = tick

	for _, id := range []identity.Identity{ana, ben, cai} {
		_, err := profileSvc.Ensure(context.Background(), id)
		require.NoError(t, err)
	}
	return svc
}

func requireEdges(t *testing.T, store storage.Storage, follower, followee string, want bool) {
	t.Helper()
	ctx := context.Background()
	_, err := store.GetCrewEdge(ctx, domain.DirectionCrew, follower, followee)
	assert.Equal(t, want, err == nil, "crew edge %s -> %s", follower, followee)
	_, err = store.GetCrewEdge(ctx, domain.DirectionFollowers, followee, follower)
	assert.Equal(t, want, err == nil, "followers edge %s <- %s", followee, follower)
}

func followNotifications(t *testing.T, store storage.Storage, userID string) int {
	got, err := store.GetNotifications(context.Background(), userID, storage.NotificationFilter{}, storage.PaginationArgs{Limit: 50})
	require.NoError(t, err)
	n := 0
	for _, note := range got {
		if note.Type == domain.NotificationFollow {
			n++
		}
	}
	return n
}

func TestSetFollowing_EdgesMoveTogether(t *testing.T) {
	store := inmemory.New()
	svc := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.SetFollowing(ctx, ana, ben.UserID, true))
	requireEdges(t, store, ana.UserID, ben.UserID, true)

	edge, err := store.GetCrewEdge(ctx, domain.DirectionFollowers, ben.UserID, ana.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", edge.Other.Name)

	a, err := store.GetProfile(ctx, ana.UserID)
	require.NoError(t, err)
	b, err := store.GetProfile(ctx, ben.UserID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, a.FollowingCount)
	assert.EqualValues(t, 1, b.FollowersCount)

	require.NoError(t, svc.SetFollowing(ctx, ana, ben.UserID, false))
	requireEdges(t, store, ana.UserID, ben.UserID, false)

	a, err = store.GetProfile(ctx, ana.UserID)
	require.NoError(t, err)
	b, err = store.GetProfile(ctx, ben.UserID)
	require.NoError(t, err)
	assert.Zero(t, a.FollowingCount)
	assert.Zero(t, b.FollowersCount)
}

func TestSetFollowing_Idempotent(t *testing.T) {
	store := inmemory.New()
	svc := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.SetFollowing(ctx, ana, ben.UserID, true))
	require.NoError(t, svc.SetFollowing(ctx, ana, ben.UserID, true))

	b, err := store.GetProfile(ctx, ben.UserID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, b.FollowersCount)
	assert.Equal(t, 1, followNotifications(t, store, ben.UserID))

	require.NoError(t, svc.SetFollowing(ctx, ana, cai.UserID, false))
	c, err := store.GetProfile(ctx, cai.UserID)
	require.NoError(t, err)
	assert.Zero(t, c.FollowersCount)
}

func TestSetFollowing_Rejections(t *testing.T) {
	svc := newTestService(t, inmemory.New())
	ctx := context.Background()

	assert.ErrorIs(t, svc.SetFollowing(ctx, ana, ana.UserID, true), ErrSelfFollow)
	assert.True(t, apperr.Is(svc.SetFollowing(ctx, identity.Identity{}, ben.UserID, true), apperr.CodeUnauthenticated))
	assert.ErrorIs(t, svc.SetFollowing(ctx, ana, "nobody", true), storage.ErrNotFound)
}

func TestSetFollowing_RefollowNotifiesAgain(t *testing.T) {
	store := inmemory.New()
	svc := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.SetFollowing(ctx, ana, ben.UserID, true))
	require.NoError(t, svc.SetFollowing(ctx, ana, ben.UserID, false))

	_, err := store.GetTombstone(ctx, ana.UserID, ben.UserID)
	require.NoError(t, err)

	require.NoError(t, svc.SetFollowing(ctx, ana, ben.UserID, true))
	requireEdges(t, store, ana.UserID, ben.UserID, true)
	assert.Equal(t, 2, followNotifications(t, store, ben.UserID))

	_, err = store.GetTombstone(ctx, ana.UserID, ben.UserID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSetFollowing_TombstoneFailureIsNonFatal(t *testing.T) {
	store := inmemory.New()
	svc := newTestService(t, tombstoneFailingStore{store})
	ctx := context.Background()

	require.NoError(t, svc.SetFollowing(ctx, ana, ben.UserID, true))
	require.NoError(t, svc.SetFollowing(ctx, ana, ben.UserID, false))
	requireEdges(t, store, ana.UserID, ben.UserID, false)
}

func TestRemoveFollower_LeavesNoTombstone(t *testing.T) {
	store := inmemory.New()
	svc := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.SetFollowing(ctx, ben, ana.UserID, true))
	require.NoError(t, svc.RemoveFollower(ctx, ana, ben.UserID))
	requireEdges(t, store, ben.UserID, ana.UserID, false)

	_, err := store.GetTombstone(ctx, ben.UserID, ana.UserID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetTombstone(ctx, ana.UserID, ben.UserID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Removing someone who does not follow is a no-op.
	require.NoError(t, svc.RemoveFollower(ctx, ana, cai.UserID))
}

func TestLoadProfile_ReconcilesDrift(t *testing.T) {
	store := inmemory.New()
	svc := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.SetFollowing(ctx, ana, ben.UserID, true))
	require.NoError(t, svc.SetFollowing(ctx, cai, ben.UserID, true))
	require.NoError(t, store.Commit(ctx, storage.SetCounter{Counter: domain.ProfileFollowers(ben.UserID), Value: 7}))

	p, err := svc.LoadProfile(ctx, ben.UserID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.FollowersCount)

	stored, err := store.GetProfile(ctx, ben.UserID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stored.FollowersCount)
}

func TestSuggestions_FollowBackAndTombstones(t *testing.T) {
	store := inmemory.New()
	svc := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.SetFollowing(ctx, ben, ana.UserID, true))
	require.NoError(t, svc.SetFollowing(ctx, cai, ana.UserID, true))
	require.NoError(t, svc.SetFollowing(ctx, ana, cai.UserID, true))

	got, err := svc.Suggestions(ctx, ana, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ben.UserID, got[0].OtherID)

	// Ana follows Ben back, then changes her mind: Ben stays hidden.
	require.NoError(t, svc.SetFollowing(ctx, ana, ben.UserID, true))
	require.NoError(t, svc.SetFollowing(ctx, ana, ben.UserID, false))
	got, err = svc.Suggestions(ctx, ana, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	// A newer follow from Ben supersedes the tombstone.
	require.NoError(t, svc.SetFollowing(ctx, ben, ana.UserID, false))
	require.NoError(t, svc.SetFollowing(ctx, ben, ana.UserID, true))
	got, err = svc.Suggestions(ctx, ana, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ben.UserID, got[0].OtherID)
}

func TestListCrew_Paginates(t *testing.T) {
	store := inmemory.New()
	svc := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.SetFollowing(ctx, ana, ben.UserID, true))
	require.NoError(t, svc.SetFollowing(ctx, ana, cai.UserID, true))

	page, err := svc.ListCrew(ctx, ana.UserID, storage.PaginationArgs{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, cai.UserID, page.Items[0].OtherID)
	assert.True(t, page.HasMore)

	page, err = svc.ListCrew(ctx, ana.UserID, storage.PaginationArgs{Limit: 1, Cursor: page.Cursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, ben.UserID, page.Items[0].OtherID)

	followers, err := svc.ListFollowers(ctx, cai.UserID, storage.PaginationArgs{Limit: 10})
	require.NoError(t, err)
	require.Len(t, followers.Items, 1)
	assert.False(t, followers.HasMore)
}

// cancelOnCommitStore honours ctx like the database backends and cancels
// the caller's context after the first successful batch.
type cancelOnCommitStore struct {
	storage.Storage
	cancel context.CancelFunc
}

func (s cancelOnCommitStore) Commit(ctx context.Context, ops ...storage.Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Storage.Commit(ctx, ops...); err != nil {
		return err
	}
	s.cancel()
	return nil
}

func TestSetFollowing_CompletesAfterCallerLeaves(t *testing.T) {
	store := inmemory.New()
	require.NoError(t, newTestService(t, store).SetFollowing(context.Background(), ana, ben.UserID, true))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := newTestService(t, cancelOnCommitStore{Storage: store, cancel: cancel})

	require.NoError(t, svc.SetFollowing(ctx, ana, ben.UserID, false))
	requireEdges(t, store, ana.UserID, ben.UserID, false)
	_, err := store.GetTombstone(context.Background(), ana.UserID, ben.UserID)
	assert.NoError(t, err)
}
