package storage

import (
	"time"

	"github.com/UkralStul/crewfeed-service/internal/domain"
)

// Op is one write of an atomic batch.
type Op interface {
	// Topics lists the subscription topics the write affects.
	Topics() []Topic
}

type PutPost struct{ Post *domain.Post }

type PutWork struct{ Work *domain.Work }

type DeleteWork struct{ PostID, UserID string }

type PutComment struct{ Comment *domain.Comment }

type PutReply struct{ Reply *domain.Reply }

type PutProfile struct{ Profile *domain.Profile }

// UpdateProfileFields rewrites the editable fields of an existing profile.
// Counters are left as stored.
type UpdateProfileFields struct {
	UserID    string
	Name      string
	PhotoURL  string
	Tag       string
	Specialty string
	UpdatedAt time.Time
}

type PutCrewEdge struct{ Edge *domain.CrewEdge }

type DeleteCrewEdge struct {
	Direction domain.EdgeDirection
	OwnerID   string
	OtherID   string
}

type PutTombstone struct{ Tombstone *domain.Tombstone }

type DeleteTombstone struct{ UserID, IgnoredUserID string }

type PutNotification struct{ Notification *domain.Notification }

type MarkNotificationRead struct{ RecipientID, ID string }

type DeleteNotification struct{ RecipientID, ID string }

// Increment adds Delta to a counter without reading it first.
type Increment struct {
	Counter domain.CounterRef
	Delta   int64
}

// SetCounter overwrites a counter. Only reconciliation uses it.
type SetCounter struct {
	Counter domain.CounterRef
	Value   int64
}

func (o PutPost) Topics() []Topic { return []Topic{PostTopic(o.Post.ID)} }
func (o PutWork) Topics() []Topic { return []Topic{PostTopic(o.Work.PostID)} }
func (o DeleteWork) Topics() []Topic { return []Topic{PostTopic(o.PostID)} }
func (o PutComment) Topics() []Topic { return []Topic{PostTopic(o.Comment.PostID)} }
func (o PutReply) Topics() []Topic { return []Topic{PostTopic(o.Reply.PostID)} }
func (o PutProfile) Topics() []Topic { return []Topic{ProfileTopic(o.Profile.UserID)} }
func (o UpdateProfileFields) Topics() []Topic {
	return []Topic{ProfileTopic(o.UserID)}
}
func (o PutCrewEdge) Topics() []Topic {
	return []Topic{ProfileTopic(o.Edge.OwnerID)}
}
func (o DeleteCrewEdge) Topics() []Topic { return []Topic{ProfileTopic(o.OwnerID)} }
func (o PutTombstone) Topics() []Topic {
	return []Topic{ProfileTopic(o.Tombstone.UserID)}
}
func (o DeleteTombstone) Topics() []Topic { return []Topic{ProfileTopic(o.UserID)} }
func (o PutNotification) Topics() []Topic {
	return []Topic{NotificationsTopic(o.Notification.RecipientID)}
}
func (o MarkNotificationRead) Topics() []Topic {
	return []Topic{NotificationsTopic(o.RecipientID)}
}
func (o DeleteNotification) Topics() []Topic {
	return []Topic{NotificationsTopic(o.RecipientID)}
}
func (o Increment) Topics() []Topic { return counterTopics(o.Counter) }
func (o SetCounter) Topics() []Topic { return counterTopics(o.Counter) }

func counterTopics(ref domain.CounterRef) []Topic {
	if ref.UserID != "" {
		return []Topic{ProfileTopic(ref.UserID)}
	}
	return []Topic{PostTopic(ref.PostID)}
}
