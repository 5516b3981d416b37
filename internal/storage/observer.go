package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type TopicKind string

const (
	TopicPost          TopicKind = "post"
	TopicProfile       TopicKind = "profile"
	TopicNotifications TopicKind = "notifications"
)

// Topic identifies a live subscription target.
type Topic struct {
	Kind TopicKind
	ID   string
}

func PostTopic(postID string) Topic { return Topic{Kind: TopicPost, ID: postID} }
func ProfileTopic(userID string) Topic { return Topic{Kind: TopicProfile, ID: userID} }
func NotificationsTopic(userID string) Topic {
	return Topic{Kind: TopicNotifications, ID: userID}
}

// Change tells a subscriber that its topic changed.
type Change struct {
	Topic Topic
	At    time.Time
}

// Observer fans committed changes out to subscriber channels. Backends
// publish after a batch commits.
type Observer struct {
	mu sync.RWMutex
	//   map[topic] map[subscriberID] channel
	subs map[Topic]map[string]chan Change
}

func NewObserver() *Observer {
	return &Observer{
		subs: make(map[Topic]map[string]chan Change),
	}
}

// Subscribe registers a channel for topic. The channel is closed once ctx is
// done.
func (o *Observer) Subscribe(ctx context.Context, topic Topic) <-chan Change {
	ch := make(chan Change, 1)
	subID := uuid.NewString()

	o.mu.Lock()
	if o.subs[topic] == nil {
		o.subs[topic] = make(map[string]chan Change)
	}
	o.subs[topic][subID] = ch
	o.mu.Unlock()

	go func() {
		<-ctx.Done()
		o.mu.Lock()
		if topicSubs, ok := o.subs[topic]; ok {
			delete(topicSubs, subID)
			if len(topicSubs) == 0 {
				delete(o.subs, topic)
			}
		}
		close(ch)
		o.mu.Unlock()
	}()

	return ch
}

// Publish notifies subscribers of every topic touched by ops.
func (o *Observer) Publish(ops ...Op) {
	seen := make(map[Topic]struct{})
	now := time.Now().UTC()

	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, op := range ops {
		for _, topic := range op.Topics() {
			if _, dup := seen[topic]; dup {
				continue
			}
			seen[topic] = struct{}{}
			for _, ch := range o.subs[topic] {
				select {
				case ch <- Change{Topic: topic, At: now}:
				default:
					// A change is already pending; the subscriber re-reads anyway.
				}
			}
		}
	}
}
