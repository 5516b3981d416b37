package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Visibility controls who sees a post in the feed.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityFollowers Visibility = "followers"
)

// ActorSnapshot is a copy of a user's display fields taken at write time.
// Snapshots are never re-synchronized when the user edits their profile.
type ActorSnapshot struct {
	UserID    string `json:"userId" gorm:"type:varchar(255)" bson:"userId"`
	Name      string `json:"name" gorm:"type:varchar(255)" bson:"name"`
	PhotoURL  string `json:"photoUrl,omitempty" gorm:"type:text" bson:"photoUrl,omitempty"`
	Tag       string `json:"tag,omitempty" gorm:"type:varchar(255)" bson:"tag,omitempty"`
	Specialty string `json:"specialty,omitempty" gorm:"type:varchar(255)" bson:"specialty,omitempty"`
}

// Post is a feed entry with denormalized counters.
type Post struct {
	ID            string                      `json:"id" gorm:"type:varchar(64);primary_key" bson:"_id"`
	Author        ActorSnapshot               `json:"author" gorm:"embedded;embeddedPrefix:author_" bson:"author"`
	Images        datatypes.JSONSlice[string] `json:"images" bson:"images"`
	Caption       string                      `json:"caption" gorm:"type:text" bson:"caption"`
	WorksCount    int64                       `json:"worksCount" gorm:"not null;default:0" bson:"worksCount"`
	CommentsCount int64                       `json:"commentsCount" gorm:"not null;default:0" bson:"commentsCount"`
	Visibility    Visibility                  `json:"visibility" gorm:"type:varchar(16);not null;default:public" bson:"visibility"`
	CreatedAt     time.Time                   `json:"createdAt" gorm:"not null;index" bson:"createdAt"`
}

// Work is the reaction edge (post, user). Its existence is the source of truth
// that Post.WorksCount approximates.
type Work struct {
	PostID    string    `json:"postId" gorm:"type:varchar(64);primaryKey" bson:"postId"`
	UserID    string    `json:"userId" gorm:"type:varchar(255);primaryKey;index" bson:"userId"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null" bson:"createdAt"`
}

// ThreadEntry is either a top-level *Comment or a *Reply. Threads are exactly
// two levels deep.
type ThreadEntry interface {
	EntryID() string
	// RootID is the id of the top-level comment the entry is filed under.
	RootID() string
	EntryAuthor() ActorSnapshot
	isThreadEntry()
}

// Comment is a top-level comment on a post.
type Comment struct {
	ID         string        `json:"id" gorm:"type:varchar(64);primary_key" bson:"_id"`
	PostID     string        `json:"postId" gorm:"type:varchar(64);not null;index:idx_comments_post_created" bson:"postId"`
	Author     ActorSnapshot `json:"author" gorm:"embedded;embeddedPrefix:author_" bson:"author"`
	Text       string        `json:"text" gorm:"type:varchar(2000);not null" bson:"text"`
	CreatedAt  time.Time     `json:"createdAt" gorm:"not null;index:idx_comments_post_created" bson:"createdAt"`
	ReplyCount int64         `json:"replyCount" gorm:"not null;default:0" bson:"replyCount"`
}

func (c *Comment) EntryID() string { return c.ID }
func (c *Comment) RootID() string { return c.ID }
func (c *Comment) EntryAuthor() ActorSnapshot { return c.Author }
func (*Comment) isThreadEntry() {}

// Reply is stored under its thread root comment. AddressedToUserID names the
// user the reply is visually addressed to; it is not a parent pointer.
type Reply struct {
	ID                string        `json:"id" gorm:"type:varchar(64);primary_key" bson:"_id"`
	PostID            string        `json:"postId" gorm:"type:varchar(64);not null;index" bson:"postId"`
	ThreadRootID      string        `json:"threadRootId" gorm:"type:varchar(64);not null;index:idx_replies_root_created" bson:"threadRootId"`
	AddressedToUserID *string       `json:"addressedToUserId,omitempty" gorm:"type:varchar(255)" bson:"addressedToUserId,omitempty"`
	AddressedToName   string        `json:"addressedToName,omitempty" gorm:"type:varchar(255)" bson:"addressedToName,omitempty"`
	Author            ActorSnapshot `json:"author" gorm:"embedded;embeddedPrefix:author_" bson:"author"`
	Text              string        `json:"text" gorm:"type:varchar(2000);not null" bson:"text"`
	CreatedAt         time.Time     `json:"createdAt" gorm:"not null;index:idx_replies_root_created" bson:"createdAt"`
}

func (r *Reply) EntryID() string { return r.ID }
func (r *Reply) RootID() string { return r.ThreadRootID }
func (r *Reply) EntryAuthor() ActorSnapshot { return r.Author }
func (*Reply) isThreadEntry() {}

// Profile is a user's own profile document.
type Profile struct {
	UserID         string    `json:"userId" gorm:"type:varchar(255);primaryKey" bson:"_id"`
	Name           string    `json:"name" gorm:"type:varchar(255)" bson:"name"`
	Email          string    `json:"email,omitempty" gorm:"type:varchar(255)" bson:"email,omitempty"`
	PhotoURL       string    `json:"photoUrl,omitempty" gorm:"type:text" bson:"photoUrl,omitempty"`
	Tag            string    `json:"tag,omitempty" gorm:"type:varchar(255)" bson:"tag,omitempty"`
	Specialty      string    `json:"specialty,omitempty" gorm:"type:varchar(255)" bson:"specialty,omitempty"`
	FollowingCount int64     `json:"followingCount" gorm:"not null;default:0" bson:"followingCount"`
	FollowersCount int64     `json:"followersCount" gorm:"not null;default:0" bson:"followersCount"`
	UpdatedAt      time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (p *Profile) Snapshot() ActorSnapshot {
	return ActorSnapshot{
		UserID:    p.UserID,
		Name:      p.Name,
		PhotoURL:  p.PhotoURL,
		Tag:       p.Tag,
		Specialty: p.Specialty,
	}
}

// EdgeDirection selects which materialization of a follow relationship an
// edge record is.
type EdgeDirection string

const (
	// DirectionCrew edges live under the follower, keyed by the followee.
	DirectionCrew EdgeDirection = "crew"
	// DirectionFollowers edges live under the followee, keyed by the follower.
	DirectionFollowers EdgeDirection = "followers"
)

// CrewEdge is one half of a follow relationship.
type CrewEdge struct {
	Direction EdgeDirection `json:"direction" gorm:"type:varchar(16);primaryKey" bson:"direction"`
	OwnerID   string        `json:"ownerId" gorm:"type:varchar(255);primaryKey" bson:"ownerId"`
	OtherID   string        `json:"otherId" gorm:"type:varchar(255);primaryKey" bson:"otherId"`
	Other     ActorSnapshot `json:"other" gorm:"embedded;embeddedPrefix:other_" bson:"other"`
	AddedAt   time.Time     `json:"addedAt" gorm:"not null;index" bson:"addedAt"`
}

// Tombstone suppresses a user from follow-back suggestions until a newer
// follow event supersedes it.
type Tombstone struct {
	UserID        string    `json:"userId" gorm:"type:varchar(255);primaryKey" bson:"userId"`
	IgnoredUserID string    `json:"ignoredUserId" gorm:"type:varchar(255);primaryKey" bson:"ignoredUserId"`
	IgnoredAt     time.Time `json:"ignoredAt" gorm:"not null" bson:"ignoredAt"`
}

type NotificationType string

const (
	NotificationWork    NotificationType = "work"
	NotificationComment NotificationType = "comment"
	NotificationFollow  NotificationType = "follow"
)

// Notification belongs to exactly one recipient. Only Read ever changes.
type Notification struct {
	ID          string           `json:"id" gorm:"type:varchar(64);primary_key" bson:"_id"`
	RecipientID string           `json:"recipientId" gorm:"type:varchar(255);not null;index:idx_notifications_recipient_created" bson:"recipientId"`
	Type        NotificationType `json:"type" gorm:"type:varchar(16);not null" bson:"type"`
	Actor       ActorSnapshot    `json:"actor" gorm:"embedded;embeddedPrefix:actor_" bson:"actor"`
	Message     string           `json:"message" gorm:"type:text" bson:"message"`
	PostID      string           `json:"postId,omitempty" gorm:"type:varchar(64)" bson:"postId,omitempty"`
	CommentID   string           `json:"commentId,omitempty" gorm:"type:varchar(64)" bson:"commentId,omitempty"`
	Read        bool             `json:"read" gorm:"not null;default:false" bson:"read"`
	CreatedAt   time.Time        `json:"createdAt" gorm:"not null;index:idx_notifications_recipient_created" bson:"createdAt"`
}
