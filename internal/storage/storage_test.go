package storage

import (
	"context"
	"testing"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/apperr"
	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTripAndOrdering(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c, err := DecodeCursor(EncodeCursor(at, "b"))
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.Equal(at))
	assert.Equal(t, "b", c.ID)

	assert.True(t, c.After(at, "c"))
	assert.False(t, c.After(at, "b"))
	assert.True(t, c.Before(at, "a"))
	assert.True(t, c.Before(at.Add(-time.Second), "z"))
	assert.True(t, c.After(at.Add(time.Second), "a"))
}

func TestDecodeCursor_Malformed(t *testing.T) {
	_, err := DecodeCursor("%%%")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))

	empty := ""
	c, err := DecodeArgs(PaginationArgs{Limit: 5, Cursor: &empty})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestObserver_PublishAndDetach(t *testing.T) {
	o := NewObserver()
	ctx, cancel := context.WithCancel(context.Background())

	ch := o.Subscribe(ctx, PostTopic("p1"))
	other := o.Subscribe(context.Background(), PostTopic("p2"))

	o.Publish(Increment{Counter: domain.PostWorks("p1"), Delta: 1}, PutWork{Work: &domain.Work{PostID: "p1", UserID: "u"}})

	select {
	case change := <-ch:
		assert.Equal(t, PostTopic("p1"), change.Topic)
	case <-time.After(time.Second):
		t.Fatal("expected a change")
	}
	select {
	case <-other:
		t.Fatal("unrelated topic must not be notified")
	default:
	}

	cancel()
	_, open := <-ch
	for open {
		_, open = <-ch
	}
	assert.False(t, open)
}

func TestOps_Topics(t *testing.T) {
	assert.Equal(t, []Topic{ProfileTopic("u1")}, Increment{Counter: domain.ProfileFollowers("u1"), Delta: 1}.Topics())
	assert.Equal(t, []Topic{PostTopic("p1")}, Increment{Counter: domain.CommentReplies("p1", "c1"), Delta: 1}.Topics())
	assert.Equal(t, []Topic{NotificationsTopic("u2")}, MarkNotificationRead{RecipientID: "u2", ID: "n"}.Topics())
}

func TestNewPage_HasMoreOnlyWhenFull(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	key := func(c *domain.Comment) (time.Time, string) { return c.CreatedAt, c.ID }
	items := []*domain.Comment{{ID: "a", CreatedAt: at}, {ID: "b", CreatedAt: at.Add(time.Second)}}

	full := NewPage(items, 2, key)
	assert.True(t, full.HasMore)
	require.NotNil(t, full.Cursor)
	c, err := DecodeCursor(*full.Cursor)
	require.NoError(t, err)
	assert.Equal(t, "b", c.ID)

	short := NewPage(items, 3, key)
	assert.False(t, short.HasMore)

	empty := NewPage[*domain.Comment](nil, 3, key)
	assert.False(t, empty.HasMore)
	assert.Nil(t, empty.Cursor)
	assert.NotNil(t, empty.Items)
}
