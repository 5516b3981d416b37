package api

import (
	"net/http"

	"github.com/UkralStul/crewfeed-service/internal/apperr"
	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/profiles"

	"github.com/go-chi/chi/v5"
)

const (
	defaultEdgeLimit       = 20
	defaultSuggestionLimit = 20
)

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	profile, err := s.Crew.LoadProfile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	viewer := identity.FromContext(r.Context())
	following := false
	if viewer.Authenticated() && viewer.UserID != profile.UserID {
		if following, err = s.Crew.IsFollowing(r.Context(), viewer.UserID, profile.UserID); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":   profile,
		"following": following,
	})
}

func (s *Server) putProfile(w http.ResponseWriter, r *http.Request) {
	var in profiles.Input
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	profile, err := s.Profiles.Upsert(r.Context(), identity.FromContext(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) setFollowing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Following *bool `json:"following"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Following == nil {
		writeError(w, r, apperr.InvalidInput("following is required", nil))
		return
	}
	target := chi.URLParam(r, "userID")
	if err := s.Crew.SetFollowing(r.Context(), identity.FromContext(r.Context()), target, *req.Following); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": target, "following": *req.Following})
}

func (s *Server) removeFollower(w http.ResponseWriter, r *http.Request) {
	if err := s.Crew.RemoveFollower(r.Context(), identity.FromContext(r.Context()), chi.URLParam(r, "userID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listCrew(w http.ResponseWriter, r *http.Request) {
	args, err := pageArgs(r, defaultEdgeLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := s.Crew.ListCrew(r.Context(), chi.URLParam(r, "userID"), args)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) listFollowers(w http.ResponseWriter, r *http.Request) {
	args, err := pageArgs(r, defaultEdgeLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := s.Crew.ListFollowers(r.Context(), chi.URLParam(r, "userID"), args)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) suggestions(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultSuggestionLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	edges, err := s.Crew.Suggestions(r.Context(), identity.FromContext(r.Context()), min(limit, maxPageSize))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": edges})
}
