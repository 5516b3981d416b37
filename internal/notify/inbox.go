package notify

import (
	"context"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/apperr"
	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/storage"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const scanPageSize = 200

// Inbox is the recipient-side view of notifications.
type Inbox struct {
	store storage.Storage
}

func NewInbox(store storage.Storage) *Inbox {
	return &Inbox{store: store}
}

func notificationKey(n *domain.Notification) (time.Time, string) { return n.CreatedAt, n.ID }

func (in *Inbox) List(ctx context.Context, recipientID string, filter storage.NotificationFilter, args storage.PaginationArgs) (storage.Page[*domain.Notification], error) {
	if recipientID == "" {
		return storage.Page[*domain.Notification]{}, apperr.ErrUnauthenticated
	}
	items, err := in.store.GetNotifications(ctx, recipientID, filter, args)
	if err != nil {
		return storage.Page[*domain.Notification]{}, err
	}
	return storage.NewPage(items, args.Limit, notificationKey), nil
}

// all walks every page of a recipient's notifications.
func (in *Inbox) all(ctx context.Context, recipientID string, filter storage.NotificationFilter) ([]*domain.Notification, error) {
	var out []*domain.Notification
	args := storage.PaginationArgs{Limit: scanPageSize}
	for {
		items, err := in.store.GetNotifications(ctx, recipientID, filter, args)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		if len(items) < scanPageSize {
			return out, nil
		}
		c := storage.EncodeCursor(notificationKey(items[len(items)-1]))
		args.Cursor = &c
	}
}

func (in *Inbox) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	if recipientID == "" {
		return 0, apperr.ErrUnauthenticated
	}
	unread, err := in.all(ctx, recipientID, storage.NotificationFilter{UnreadOnly: true})
	return len(unread), err
}

func (in *Inbox) MarkRead(ctx context.Context, recipientID, id string) error {
	if recipientID == "" {
		return apperr.ErrUnauthenticated
	}
	return in.store.Commit(ctx, storage.MarkNotificationRead{RecipientID: recipientID, ID: id})
}

// MarkAllRead flips every unread notification of the recipient in one batch.
func (in *Inbox) MarkAllRead(ctx context.Context, recipientID string) error {
	if recipientID == "" {
		return apperr.ErrUnauthenticated
	}
	unread, err := in.all(ctx, recipientID, storage.NotificationFilter{UnreadOnly: true})
	if err != nil {
		return err
	}
	ops := lo.Map(unread, func(n *domain.Notification, _ int) storage.Op {
		return storage.MarkNotificationRead{RecipientID: recipientID, ID: n.ID}
	})
	return in.store.Commit(ctx, ops...)
}

func (in *Inbox) Delete(ctx context.Context, recipientID, id string) error {
	if recipientID == "" {
		return apperr.ErrUnauthenticated
	}
	if _, err := in.store.GetNotification(ctx, recipientID, id); err != nil {
		return err
	}
	return in.store.Commit(ctx, storage.DeleteNotification{RecipientID: recipientID, ID: id})
}

// ClearAll deletes every notification of the recipient in one batch.
func (in *Inbox) ClearAll(ctx context.Context, recipientID string) error {
	if recipientID == "" {
		return apperr.ErrUnauthenticated
	}
	all, err := in.all(ctx, recipientID, storage.NotificationFilter{})
	if err != nil {
		return err
	}
	ops := lo.Map(all, func(n *domain.Notification, _ int) storage.Op {
		return storage.DeleteNotification{RecipientID: recipientID, ID: n.ID}
	})
	return in.store.Commit(ctx, ops...)
}

// Snapshot is the live state of an inbox: its unread count and newest page.
type Snapshot struct {
	Unread int                    `json:"unread"`
	Latest []*domain.Notification `json:"latest"`
}

func (in *Inbox) snapshot(ctx context.Context, recipientID string, pageSize int) (Snapshot, error) {
	unread, err := in.UnreadCount(ctx, recipientID)
	if err != nil {
		return Snapshot{}, err
	}
	page, err := in.List(ctx, recipientID, storage.NotificationFilter{}, storage.PaginationArgs{Limit: pageSize})
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Unread: unread, Latest: page.Items}, nil
}

// Watch sends the current inbox snapshot and a fresh one after every change,
// until ctx is done. Permission errors end the stream silently.
func (in *Inbox) Watch(ctx context.Context, recipientID string, pageSize int) (<-chan Snapshot, error) {
	if recipientID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	changes, err := in.store.Subscribe(ctx, storage.NotificationsTopic(recipientID))
	if err != nil {
		return nil, err
	}
	first, err := in.snapshot(ctx, recipientID, pageSize)
	if err != nil {
		return nil, err
	}

	out := make(chan Snapshot, 1)
	out <- first
	go func() {
		defer close(out)
		for range changes {
			snap, err := in.snapshot(ctx, recipientID, pageSize)
			if err != nil {
				if apperr.Is(err, apperr.CodePermissionDenied) {
					log.Debug().Str("recipient", recipientID).Msg("Inbox stream stopped: permission denied")
				} else if ctx.Err() == nil {
					log.Warn().Err(err).Str("recipient", recipientID).Msg("Inbox stream stopped")
				}
				return
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
