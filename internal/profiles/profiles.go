package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/apperr"
	"github.com/UkralStul/crewfeed-service/internal/domain"
	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/storage"

	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/lib/v4/cache"
	libstore "github.com/eko/gocache/lib/v4/store"
	ristrettostore "github.com/eko/gocache/store/ristretto/v4"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

const cacheTTL = 5 * time.Minute

// Input is the editable part of a profile.
type Input struct {
	Name      string `json:"name" validate:"required,max=255"`
	PhotoURL  string `json:"photoUrl" validate:"omitempty,url"`
	Tag       string `json:"tag" validate:"max=255"`
	Specialty string `json:"specialty" validate:"max=255"`
}

// Service reads profiles through a local cache and produces the actor
// snapshots that get denormalized into posts, comments, edges and
// notifications.
type Service struct {
	store    storage.Storage
	cache    *cache.Cache[domain.Profile]
	validate *validator.Validate
	Now      func() time.Time
}

func NewService(store storage.Storage) (*Service, error) {
	ristrettoCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create profile cache: %w", err)
	}
	return &Service{
		store:    store,
		cache:    cache.New[domain.Profile](ristrettostore.NewRistretto(ristrettoCache)),
		validate: validator.New(),
		Now:      time.Now,
	}, nil
}

func cacheKey(userID string) string { return "profile#" + userID }

// Get returns the stored profile of userID.
func (s *Service) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	if cached, err := s.cache.Get(ctx, cacheKey(userID)); err == nil {
		return &cached, nil
	}

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, profile)
	return profile, nil
}

func (s *Service) remember(ctx context.Context, p *domain.Profile) {
	if err := s.cache.Set(ctx, cacheKey(p.UserID), *p, libstore.WithExpiration(cacheTTL), libstore.WithCost(1)); err != nil {
		log.Debug().Err(err).Str("user", p.UserID).Msg("Unable to cache profile")
	}
}

// Invalidate drops the cached copy of userID's profile. Counter writes call
// it so the next read sees fresh counts.
func (s *Service) Invalidate(ctx context.Context, userIDs ...string) {
	for _, id := range userIDs {
		_ = s.cache.Delete(ctx, cacheKey(id))
	}
}

// Ensure returns the caller's profile, creating it from the identity on
// first use.
func (s *Service) Ensure(ctx context.Context, id identity.Identity) (*domain.Profile, error) {
	if !id.Authenticated() {
		return nil, apperr.ErrUnauthenticated
	}
	profile, err := s.Get(ctx, id.UserID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	profile = &domain.Profile{
		UserID:    id.UserID,
		Name:      id.DisplayName,
		Email:     id.Email,
		UpdatedAt: domain.Timestamp(s.Now()),
	}
	if profile.Name == "" {
		profile.Name = id.UserID
	}
	if err := s.store.Commit(ctx, storage.PutProfile{Profile: profile}); err != nil {
		return nil, err
	}
	return profile, nil
}

// Upsert writes the caller's editable fields. The stored follow counters
// are never written here; the returned profile carries them as re-read
// after the update.
func (s *Service) Upsert(ctx context.Context, id identity.Identity, in Input) (*domain.Profile, error) {
	if !id.Authenticated() {
		return nil, apperr.ErrUnauthenticated
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.InvalidInput("invalid profile", err)
	}

	if _, err := s.Ensure(ctx, id); err != nil {
		return nil, err
	}
	if err := s.store.Commit(ctx, storage.UpdateProfileFields{
		UserID:    id.UserID,
		Name:      in.Name,
		PhotoURL:  in.PhotoURL,
		Tag:       in.Tag,
		Specialty: in.Specialty,
		UpdatedAt: domain.Timestamp(s.Now()),
	}); err != nil {
		return nil, err
	}
	s.Invalidate(ctx, id.UserID)
	return s.store.GetProfile(ctx, id.UserID)
}

// Snapshot is the display copy of the caller. It falls back to the identity
// when no profile exists yet.
func (s *Service) Snapshot(ctx context.Context, id identity.Identity) domain.ActorSnapshot {
	profile, err := s.Get(ctx, id.UserID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Str("user", id.UserID).Msg("Unable to load profile for snapshot")
		}
		name := id.DisplayName
		if name == "" {
			name = id.UserID
		}
		return domain.ActorSnapshot{UserID: id.UserID, Name: name}
	}
	return profile.Snapshot()
}
