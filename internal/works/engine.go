// Package works toggles the "work" reaction of one user on posts. Each user
// session owns an Engine that holds the optimistic view of the posts it has
// touched.
package works

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/apperr"
	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/notify"
	"github.com/UkralStul/crewfeed-service/internal/optimistic"
	"github.com/UkralStul/crewfeed-service/internal/storage"

	"github.com/rs/zerolog/log"
)

// State is the session's view of one post.
type State struct {
	PostID     string `json:"postId"`
	Worked     bool   `json:"worked"`
	WorksCount int64  `json:"worksCount"`
}

// SnapshotSource produces the actor snapshot written into notifications.
type SnapshotSource interface {
	Snapshot(ctx context.Context, id identity.Identity) domain.ActorSnapshot
}

type entry struct {
	// op serializes toggles of the same post within the session.
	op sync.Mutex

	known      bool
	worked     bool
	count      int64
	authorID   string
	caption    string
	postLoaded bool
}

// Engine is the optimistic work state of one user.
type Engine struct {
	store     storage.Storage
	notifier  *notify.Emitter
	snapshots SnapshotSource
	actor     identity.Identity
	Now       func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

func NewEngine(store storage.Storage, notifier *notify.Emitter, snapshots SnapshotSource, actor identity.Identity) *Engine {
	return &Engine{
		store:     store,
		notifier:  notifier,
		snapshots: snapshots,
		actor:     actor,
		Now:       time.Now,
		entries:   make(map[string]*entry),
	}
}

func (e *Engine) entry(postID string) *entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.entries[postID]
	if !ok {
		en = &entry{}
		e.entries[postID] = en
	}
	return en
}

// State returns the session's view of postID. ok is false when the session
// has not learned it yet.
func (e *Engine) State(postID string) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.entries[postID]
	if !ok || !en.known {
		return State{PostID: postID}, false
	}
	return State{PostID: postID, Worked: en.worked, WorksCount: en.count}, true
}

// Prime records state learned elsewhere, e.g. a batched feed read. It does
// not override what the session already knows about the edge.
func (e *Engine) Prime(post *domain.Post, worked bool) {
	en := e.entry(post.ID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !en.known {
		en.known = true
		en.worked = worked
	}
	en.count = post.WorksCount
	en.authorID = post.Author.UserID
	en.caption = post.Caption
	en.postLoaded = true
}

// ApplySnapshot overwrites the counter with the stored value. Last snapshot
// wins, even over a toggle still in flight.
func (e *Engine) ApplySnapshot(post *domain.Post) State {
	en := e.entry(post.ID)
	e.mu.Lock()
	defer e.mu.Unlock()
	en.count = post.WorksCount
	en.authorID = post.Author.UserID
	en.caption = post.Caption
	en.postLoaded = true
	return State{PostID: post.ID, Worked: en.worked, WorksCount: en.count}
}

// load performs the one cold read of the edge (and the post) the session
// needs before its first toggle.
func (e *Engine) load(ctx context.Context, postID string, en *entry) error {
	e.mu.Lock()
	known, postLoaded := en.known, en.postLoaded
	e.mu.Unlock()
	if known && postLoaded {
		return nil
	}

	post, err := e.store.GetPostByID(ctx, postID)
	if err != nil {
		return err
	}

	worked := false
	if !known {
		_, err := e.store.GetWork(ctx, postID, e.actor.UserID)
		switch {
		case err == nil:
			worked = true
		case errors.Is(err, storage.ErrNotFound):
		default:
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !en.known {
		en.known = true
		en.worked = worked
	}
	en.count = post.WorksCount
	en.authorID = post.Author.UserID
	en.caption = post.Caption
	en.postLoaded = true
	return nil
}

// Toggle flips the actor's work on postID. The local state changes first,
// then the edge is written, then the counter delta. If either write fails
// the local state is restored and the error returned. A work notification
// follows a successful create; its failure never undoes the toggle.
func (e *Engine) Toggle(ctx context.Context, postID string) (State, error) {
	if !e.actor.Authenticated() {
		return State{PostID: postID}, apperr.ErrUnauthenticated
	}

	en := e.entry(postID)
	en.op.Lock()
	defer en.op.Unlock()

	if err := e.load(ctx, postID, en); err != nil {
		return State{PostID: postID}, err
	}

	// Once local state has moved, the writes and the notification run to
	// completion even if the caller goes away.
	wctx := context.WithoutCancel(ctx)

	var (
		creating          bool
		prevWorked        bool
		prevCount         int64
		authorID, caption string
	)
	err := optimistic.Perform(wctx, optimistic.Mutation{
		Name: "works.toggle",
		Local: func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			prevWorked, prevCount = en.worked, en.count
			authorID, caption = en.authorID, en.caption
			creating = !en.worked
			en.worked = creating
			if creating {
				en.count++
			} else if en.count > 0 {
				en.count--
			}
		},
		Remote: func(ctx context.Context) error {
			return e.writeRemote(ctx, postID, creating)
		},
		Revert: func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			en.worked, en.count = prevWorked, prevCount
		},
	})
	if err != nil {
		state, _ := e.State(postID)
		return state, err
	}

	if creating && authorID != e.actor.UserID {
		actor := e.snapshots.Snapshot(wctx, e.actor)
		e.notifier.Emit(wctx, notify.Event{
			RecipientID: authorID,
			Type:        domain.NotificationWork,
			Actor:       actor,
			Message:     notify.WorkMessage(actor, caption),
			PostID:      postID,
		})
	}

	state, _ := e.State(postID)
	return state, nil
}

// writeRemote issues the edge write and then the counter delta. When the
// delta fails the edge write is compensated so the store and the reverted
// local state agree.
func (e *Engine) writeRemote(ctx context.Context, postID string, creating bool) error {
	put := storage.PutWork{Work: &domain.Work{
		PostID:    postID,
		UserID:    e.actor.UserID,
		CreatedAt: domain.Timestamp(e.Now()),
	}}
	del := storage.DeleteWork{PostID: postID, UserID: e.actor.UserID}

	edge, undoEdge, delta := storage.Op(put), storage.Op(del), int64(1)
	if !creating {
		edge, undoEdge, delta = del, put, -1
	}

	if err := e.store.Commit(ctx, edge); err != nil {
		return fmt.Errorf("write work edge: %w", err)
	}
	if err := e.store.Commit(ctx, storage.Increment{Counter: domain.PostWorks(postID), Delta: delta}); err != nil {
		if undoErr := e.store.Commit(ctx, undoEdge); undoErr != nil {
			log.Error().Err(undoErr).Str("post", postID).Str("user", e.actor.UserID).
				Msg("Unable to compensate work edge, counter will drift until reconciled")
		}
		return fmt.Errorf("update works counter: %w", err)
	}
	return nil
}

// Watch streams the session's view of postID whenever the stored post
// changes, until ctx is done. Permission errors end the stream silently.
func (e *Engine) Watch(ctx context.Context, postID string) (<-chan State, error) {
	changes, err := e.store.Subscribe(ctx, storage.PostTopic(postID))
	if err != nil {
		return nil, err
	}

	out := make(chan State, 1)
	go func() {
		defer close(out)
		for range changes {
			post, err := e.store.GetPostByID(ctx, postID)
			if err != nil {
				if apperr.Is(err, apperr.CodePermissionDenied) {
					log.Debug().Str("post", postID).Msg("Post stream stopped: permission denied")
				} else if ctx.Err() == nil {
					log.Warn().Err(err).Str("post", postID).Msg("Post stream stopped")
				}
				return
			}
			select {
			case out <- e.ApplySnapshot(post):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
