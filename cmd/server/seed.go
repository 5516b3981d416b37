package main

import (
	"context"
	"strings"

	"github.com/UkralStul/crewfeed-service/internal/api"
	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/posts"
	"github.com/UkralStul/crewfeed-service/internal/profiles"

	"github.com/rs/zerolog/log"
)

// fillWithMockData creates a small crew with one post, a thread and a follow
// through the services, so every counter and notification is consistent.
func fillWithMockData(ctx context.Context, s *api.Server, verifier *identity.Verifier) {
	users := []struct {
		id        identity.Identity
		specialty string
	}{
		{identity.Identity{UserID: "user-1", DisplayName: "Marta Kowal"}, "Framing"},
		{identity.Identity{UserID: "user-2", DisplayName: "Dev Patel"}, "Electrical"},
		{identity.Identity{UserID: "user-3", DisplayName: "Cara Lind"}, "Roofing"},
	}
	for _, u := range users {
		if _, err := s.Profiles.Upsert(ctx, u.id, profiles.Input{Name: u.id.DisplayName, Specialty: u.specialty}); err != nil {
			log.Fatal().Err(err).Str("user", u.id.UserID).Msg("fillWithMockData: failed to create profile")
		}
	}
	marta, dev, cara := users[0].id, users[1].id, users[2].id

	post, err := s.Posts.Create(ctx, marta, posts.Input{Caption: "Second floor joists are in."}, []posts.Image{
		{Filename: "joists.jpg", ContentType: "image/jpeg", Body: strings.NewReader("placeholder")},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create post")
	}

	if _, err := s.Works.For(dev).Toggle(ctx, post.ID); err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to add work")
	}

	c1, err := s.Comments.AddComment(ctx, dev, post.ID, "Clean work. What spacing did you use?")
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create comment")
	}
	if _, err := s.Comments.AddReply(ctx, marta, c1, "16 inches on center."); err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create reply")
	}
	if _, err := s.Comments.AddComment(ctx, cara, post.ID, "Ready for sheathing next week?"); err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create comment")
	}

	for _, follow := range [][2]identity.Identity{{dev, marta}, {cara, marta}, {marta, dev}} {
		if err := s.Crew.SetFollowing(ctx, follow[0], follow[1].UserID, true); err != nil {
			log.Fatal().Err(err).Msg("fillWithMockData: failed to follow")
		}
	}

	for _, u := range users {
		token, err := verifier.Issue(u.id)
		if err != nil {
			log.Fatal().Err(err).Msg("fillWithMockData: failed to issue token")
		}
		log.Info().Str("user", u.id.UserID).Str("token", token).Msg("Mock user ready.")
	}
	log.Info().Str("post", post.ID).Msg("Mock data filled successfully.")
}
