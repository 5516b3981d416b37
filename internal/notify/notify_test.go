package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/apperr"
	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/storage"
	"github.com/UkralStul/crewfeed-service/internal/storage/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	storage.Storage
}

func (failingStore) Commit(context.Context, ...storage.Op) error {
	return errors.New("store unavailable")
}

func testClock() func() time.Time {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

var ana = domain.ActorSnapshot{UserID: "ana", Name: "Ana"}

func emitN(t *testing.T, e *Emitter, recipient string, n int) {
	for i := 0; i < n; i++ {
		e.Emit(context.Background(), Event{
			RecipientID: recipient,
			Type:        domain.NotificationComment,
			Actor:       ana,
			Message:     fmt.Sprintf("message %d", i),
		})
	}
}

func TestEmit_WritesUnreadNotification(t *testing.T) {
	store := inmemory.New()
	e := NewEmitter(store)
	e.Now = testClock()

	e.Emit(context.Background(), Event{
		RecipientID: "ben",
		Type:        domain.NotificationWork,
		Actor:       ana,
		Message:     WorkMessage(ana, "Kitchen remodel"),
		PostID:      "post-1",
	})

	got, err := store.GetNotifications(context.Background(), "ben", storage.NotificationFilter{}, storage.PaginationArgs{Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.NotificationWork, got[0].Type)
	assert.False(t, got[0].Read)
	assert.Equal(t, "post-1", got[0].PostID)
	assert.Equal(t, "Ana gave your post a work: Kitchen remodel", got[0].Message)
}

func TestEmit_NoSelfNotification(t *testing.T) {
	store := inmemory.New()
	e := NewEmitter(store)

	e.Emit(context.Background(), Event{RecipientID: "ana", Type: domain.NotificationWork, Actor: ana})

	got, err := store.GetNotifications(context.Background(), "ana", storage.NotificationFilter{}, storage.PaginationArgs{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, ok := e.Op(Event{RecipientID: "ana", Actor: ana})
	assert.False(t, ok)
}

func TestEmit_FailureIsSwallowed(t *testing.T) {
	e := NewEmitter(failingStore{Storage: inmemory.New()})
	assert.NotPanics(t, func() {
		e.Emit(context.Background(), Event{RecipientID: "ben", Type: domain.NotificationFollow, Actor: ana})
	})
}

func TestInbox_MarkAllReadAndUnreadCount(t *testing.T) {
	store := inmemory.New()
	e := NewEmitter(store)
	e.Now = testClock()
	emitN(t, e, "ben", 5)
	inbox := NewInbox(store)
	ctx := context.Background()

	n, err := inbox.UnreadCount(ctx, "ben")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	page, err := inbox.List(ctx, "ben", storage.NotificationFilter{}, storage.PaginationArgs{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "message 4", page.Items[0].Message)

	require.NoError(t, inbox.MarkRead(ctx, "ben", page.Items[0].ID))
	n, err = inbox.UnreadCount(ctx, "ben")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, inbox.MarkAllRead(ctx, "ben"))
	n, err = inbox.UnreadCount(ctx, "ben")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInbox_ClearAllAndDelete(t *testing.T) {
	store := inmemory.New()
	e := NewEmitter(store)
	e.Now = testClock()
	emitN(t, e, "ben", 3)
	emitN(t, e, "cal", 1)
	inbox := NewInbox(store)
	ctx := context.Background()

	page, err := inbox.List(ctx, "ben", storage.NotificationFilter{}, storage.PaginationArgs{Limit: 10})
	require.NoError(t, err)
	require.NoError(t, inbox.Delete(ctx, "ben", page.Items[0].ID))

	err = inbox.Delete(ctx, "ben", page.Items[0].ID)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	require.NoError(t, inbox.ClearAll(ctx, "ben"))
	page, err = inbox.List(ctx, "ben", storage.NotificationFilter{}, storage.PaginationArgs{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)

	// Other recipients are untouched.
	other, err := inbox.List(ctx, "cal", storage.NotificationFilter{}, storage.PaginationArgs{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, other.Items, 1)
}

func TestInbox_Unauthenticated(t *testing.T) {
	inbox := NewInbox(inmemory.New())
	err := inbox.MarkAllRead(context.Background(), "")
	assert.True(t, apperr.Is(err, apperr.CodeUnauthenticated))
}

func TestTruncateShort(t *testing.T) {
	assert.Equal(t, "short", TruncateShort("short"))
	long := strings.Repeat("é", 100)
	assert.Equal(t, strings.Repeat("é", 80)+"...", TruncateShort(long))
}

func TestInbox_WatchStreamsSnapshots(t *testing.T) {
	store := inmemory.New()
	inbox := NewInbox(store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snaps, err := inbox.Watch(ctx, "ben", 5)
	require.NoError(t, err)
	first := <-snaps
	assert.Zero(t, first.Unread)
	assert.Empty(t, first.Latest)

	e := NewEmitter(store)
	e.Now = testClock()
	emitN(t, e, "ben", 2)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-snaps:
			if snap.Unread == 2 {
				assert.Len(t, snap.Latest, 2)
				return
			}
		case <-deadline:
			t.Fatal("no snapshot with both notifications")
		}
	}
}
