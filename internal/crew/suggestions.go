package crew

import (
	"context"
	"errors"

	"github.com/UkralStul/crewfeed-service/internal/apperr"
	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/storage"
)

const suggestionScanPage = 100

// Suggestions lists followers of actor that actor does not follow back,
// newest first. A follower the actor deliberately unfollowed stays hidden
// until their follower edge is newer than the tombstone.
func (s *Service) Suggestions(ctx context.Context, actor identity.Identity, limit int) ([]*domain.CrewEdge, error) {
	if !actor.Authenticated() {
		return nil, apperr.ErrUnauthenticated
	}

	var out []*domain.CrewEdge
	args := storage.PaginationArgs{Limit: suggestionScanPage}
	for {
		followers, err := s.store.GetCrewEdges(ctx, domain.DirectionFollowers, actor.UserID, args)
		if err != nil {
			return nil, err
		}
		for _, edge := range followers {
			ok, err := s.suggestable(ctx, actor.UserID, edge)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			out = append(out, edge)
			if limit > 0 && len(out) == limit {
				return out, nil
			}
		}
		if len(followers) < suggestionScanPage {
			return out, nil
		}
		c := storage.EncodeCursor(edgeKey(followers[len(followers)-1]))
		args.Cursor = &c
	}
}

func (s *Service) suggestable(ctx context.Context, userID string, follower *domain.CrewEdge) (bool, error) {
	following, err := s.IsFollowing(ctx, userID, follower.OtherID)
	if err != nil || following {
		return false, err
	}

	tombstone, err := s.store.GetTombstone(ctx, userID, follower.OtherID)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return follower.AddedAt.After(tombstone.IgnoredAt), nil
}
