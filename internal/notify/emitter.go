package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event describes one notification to fan out.
type Event struct {
	RecipientID string
	Type        domain.NotificationType
	Actor       domain.ActorSnapshot
	Message     string
	PostID      string
	CommentID   string
}

// Emitter writes notification records into recipients' inboxes.
type Emitter struct {
	store storage.Storage
	Now   func() time.Time
}

func NewEmitter(store storage.Storage) *Emitter {
	return &Emitter{store: store, Now: time.Now}
}

// Op builds the write for ev. ok is false when the actor is the recipient,
// in which case nothing must be written.
func (e *Emitter) Op(ev Event) (op storage.Op, ok bool) {
	if ev.RecipientID == "" || ev.RecipientID == ev.Actor.UserID {
		return nil, false
	}
	return storage.PutNotification{Notification: &domain.Notification{
		ID:          uuid.NewString(),
		RecipientID: ev.RecipientID,
		Type:        ev.Type,
		Actor:       ev.Actor,
		Message:     ev.Message,
		PostID:      ev.PostID,
		CommentID:   ev.CommentID,
		Read:        false,
		CreatedAt:   domain.Timestamp(e.Now()),
	}}, true
}

// Emit writes ev on its own. Failures are logged and dropped: a notification
// never fails the action that triggered it.
func (e *Emitter) Emit(ctx context.Context, ev Event) {
	op, ok := e.Op(ev)
	if !ok {
		return
	}
	if err := e.store.Commit(ctx, op); err != nil {
		log.Warn().Err(err).
			Str("recipient", ev.RecipientID).
			Str("type", string(ev.Type)).
			Msg("An error occurred when notifying user...")
		return
	}
	log.Debug().Str("recipient", ev.RecipientID).Str("type", string(ev.Type)).Msg("Notified user.")
}

const TruncateShortThreshold = 80

// TruncateShort cuts content to a notification-sized preview.
func TruncateShort(content string) string {
	runes := []rune(content)
	if len(runes) >= TruncateShortThreshold {
		return string(runes[:TruncateShortThreshold]) + "..."
	}
	return content
}

func WorkMessage(actor domain.ActorSnapshot, caption string) string {
	if caption == "" {
		return fmt.Sprintf("%s gave your post a work.", actor.Name)
	}
	return fmt.Sprintf("%s gave your post a work: %s", actor.Name, TruncateShort(caption))
}

func CommentMessage(actor domain.ActorSnapshot, text string) string {
	return fmt.Sprintf("%s commented on your post: %s", actor.Name, TruncateShort(text))
}

func ReplyMessage(actor domain.ActorSnapshot, text string) string {
	return fmt.Sprintf("%s replied to you: %s", actor.Name, TruncateShort(text))
}

func FollowMessage(actor domain.ActorSnapshot) string {
	return fmt.Sprintf("%s added you to their crew.", actor.Name)
}
