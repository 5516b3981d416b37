package crew

import (
	"context"
	"errors"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/apperr"
	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/notify"
	"github.com/UkralStul/crewfeed-service/internal/profiles"
	"github.com/UkralStul/crewfeed-service/internal/storage"

	"github.com/rs/zerolog/log"
)

var ErrSelfFollow = apperr.InvalidInput("cannot follow yourself", nil)

// Service maintains the follow graph: each follow is a "crew" edge under
// the follower plus a "followers" edge under the followee, with a counter
// on each profile.
type Service struct {
	store    storage.Storage
	notifier *notify.Emitter
	profiles *profiles.Service
	Now      func() time.Time
}

func NewService(store storage.Storage, notifier *notify.Emitter, profiles *profiles.Service) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		profiles: profiles,
		Now:      time.Now,
	}
}

func edgeKey(e *domain.CrewEdge) (time.Time, string) { return e.AddedAt, e.OtherID }

func (s *Service) IsFollowing(ctx context.Context, actorID, targetID string) (bool, error) {
	_, err := s.store.GetCrewEdge(ctx, domain.DirectionCrew, actorID, targetID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	}
	return false, err
}

// SetFollowing makes actor follow or unfollow target. The edge pair and both
// counters (and, on follow, the notification) commit as one batch. The
// suggestion tombstone is updated afterwards and only logged on failure.
// Asking for the current state is a no-op.
func (s *Service) SetFollowing(ctx context.Context, actor identity.Identity, targetID string, desired bool) error {
	if !actor.Authenticated() {
		return apperr.ErrUnauthenticated
	}
	if targetID == actor.UserID {
		return ErrSelfFollow
	}

	actorProfile, err := s.profiles.Ensure(ctx, actor)
	if err != nil {
		return err
	}
	target, err := s.store.GetProfile(ctx, targetID)
	if err != nil {
		return err
	}

	following, err := s.IsFollowing(ctx, actor.UserID, targetID)
	if err != nil {
		return err
	}
	if following == desired {
		return nil
	}

	// The batch and the tombstone write that follows it outlive the caller.
	ctx = context.WithoutCancel(ctx)
	if desired {
		err = s.follow(ctx, actorProfile, target)
	} else {
		err = s.unfollow(ctx, actor.UserID, targetID)
	}
	if err != nil {
		return err
	}
	s.profiles.Invalidate(ctx, actor.UserID, targetID)
	return nil
}

func (s *Service) follow(ctx context.Context, actor, target *domain.Profile) error {
	now := domain.Timestamp(s.Now())
	actorSnap := actor.Snapshot()
	ops := []storage.Op{
		storage.PutCrewEdge{Edge: &domain.CrewEdge{
			Direction: domain.DirectionCrew,
			OwnerID:   actor.UserID,
			OtherID:   target.UserID,
			Other:     target.Snapshot(),
			AddedAt:   now,
		}},
		storage.PutCrewEdge{Edge: &domain.CrewEdge{
			Direction: domain.DirectionFollowers,
			OwnerID:   target.UserID,
			OtherID:   actor.UserID,
			Other:     actorSnap,
			AddedAt:   now,
		}},
		storage.Increment{Counter: domain.ProfileFollowing(actor.UserID), Delta: 1},
		storage.Increment{Counter: domain.ProfileFollowers(target.UserID), Delta: 1},
	}
	if op, ok := s.notifier.Op(notify.Event{
		RecipientID: target.UserID,
		Type:        domain.NotificationFollow,
		Actor:       actorSnap,
		Message:     notify.FollowMessage(actorSnap),
	}); ok {
		ops = append(ops, op)
	}
	if err := s.store.Commit(ctx, ops...); err != nil {
		log.Warn().Err(err).Str("actor", actor.UserID).Str("target", target.UserID).Msg("Follow failed")
		return err
	}

	if err := s.store.Commit(ctx, storage.DeleteTombstone{UserID: actor.UserID, IgnoredUserID: target.UserID}); err != nil {
		log.Warn().Err(err).Str("actor", actor.UserID).Str("target", target.UserID).Msg("Unable to clear ignored suggestion")
	}
	return nil
}

func (s *Service) unfollow(ctx context.Context, actorID, targetID string) error {
	err := s.store.Commit(ctx,
		storage.DeleteCrewEdge{Direction: domain.DirectionCrew, OwnerID: actorID, OtherID: targetID},
		storage.DeleteCrewEdge{Direction: domain.DirectionFollowers, OwnerID: targetID, OtherID: actorID},
		storage.Increment{Counter: domain.ProfileFollowing(actorID), Delta: -1},
		storage.Increment{Counter: domain.ProfileFollowers(targetID), Delta: -1},
	)
	if err != nil {
		log.Warn().Err(err).Str("actor", actorID).Str("target", targetID).Msg("Unfollow failed")
		return err
	}

	if err := s.store.Commit(ctx, storage.PutTombstone{Tombstone: &domain.Tombstone{
		UserID:        actorID,
		IgnoredUserID: targetID,
		IgnoredAt:     domain.Timestamp(s.Now()),
	}}); err != nil {
		log.Warn().Err(err).Str("actor", actorID).Str("target", targetID).Msg("Unable to record ignored suggestion")
	}
	return nil
}

// RemoveFollower drops followerID from actor's followers. It is the reverse
// of an unfollow by the follower and leaves no tombstone.
func (s *Service) RemoveFollower(ctx context.Context, actor identity.Identity, followerID string) error {
	if !actor.Authenticated() {
		return apperr.ErrUnauthenticated
	}
	_, err := s.store.GetCrewEdge(ctx, domain.DirectionFollowers, actor.UserID, followerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	if err := s.store.Commit(ctx,
		storage.DeleteCrewEdge{Direction: domain.DirectionFollowers, OwnerID: actor.UserID, OtherID: followerID},
		storage.DeleteCrewEdge{Direction: domain.DirectionCrew, OwnerID: followerID, OtherID: actor.UserID},
		storage.Increment{Counter: domain.ProfileFollowers(actor.UserID), Delta: -1},
		storage.Increment{Counter: domain.ProfileFollowing(followerID), Delta: -1},
	); err != nil {
		return err
	}
	s.profiles.Invalidate(ctx, actor.UserID, followerID)
	return nil
}

// LoadProfile reads a profile and repairs its follow counters against the
// edge collections.
func (s *Service) LoadProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, profile)
}

func (s *Service) reconcile(ctx context.Context, profile *domain.Profile) (*domain.Profile, error) {
	following, err := s.store.CountCrewEdges(ctx, domain.DirectionCrew, profile.UserID)
	if err != nil {
		return nil, err
	}
	followers, err := s.store.CountCrewEdges(ctx, domain.DirectionFollowers, profile.UserID)
	if err != nil {
		return nil, err
	}

	var ops []storage.Op
	if following != profile.FollowingCount {
		ops = append(ops, storage.SetCounter{Counter: domain.ProfileFollowing(profile.UserID), Value: following})
	}
	if followers != profile.FollowersCount {
		ops = append(ops, storage.SetCounter{Counter: domain.ProfileFollowers(profile.UserID), Value: followers})
	}
	if len(ops) == 0 {
		return profile, nil
	}

	log.Info().
		Str("user", profile.UserID).
		Int64("following", profile.FollowingCount).Int64("following_actual", following).
		Int64("followers", profile.FollowersCount).Int64("followers_actual", followers).
		Msg("Follow counters drifted, reconciling...")
	if err := s.store.Commit(ctx, ops...); err != nil {
		// The stale counters are still worth showing.
		log.Warn().Err(err).Str("user", profile.UserID).Msg("Unable to reconcile follow counters")
		return profile, nil
	}
	s.profiles.Invalidate(ctx, profile.UserID)

	fixed := *profile
	fixed.FollowingCount = following
	fixed.FollowersCount = followers
	return &fixed, nil
}

func (s *Service) ListCrew(ctx context.Context, userID string, args storage.PaginationArgs) (storage.Page[*domain.CrewEdge], error) {
	return s.list(ctx, domain.DirectionCrew, userID, args)
}

func (s *Service) ListFollowers(ctx context.Context, userID string, args storage.PaginationArgs) (storage.Page[*domain.CrewEdge], error) {
	return s.list(ctx, domain.DirectionFollowers, userID, args)
}

func (s *Service) list(ctx context.Context, dir domain.EdgeDirection, userID string, args storage.PaginationArgs) (storage.Page[*domain.CrewEdge], error) {
	edges, err := s.store.GetCrewEdges(ctx, dir, userID, args)
	if err != nil {
		return storage.Page[*domain.CrewEdge]{}, err
	}
	return storage.NewPage(edges, args.Limit, edgeKey), nil
}
