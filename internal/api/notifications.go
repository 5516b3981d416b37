package api

import (
	"net/http"
	"strconv"

	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/storage"

	"github.com/go-chi/chi/v5"
)

const defaultInboxLimit = 20

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	me := identity.FromContext(r.Context()).UserID
	args, err := pageArgs(r, defaultInboxLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	page, err := s.Inbox.List(r.Context(), me, storage.NotificationFilter{UnreadOnly: unreadOnly}, args)
	if err != nil {
		writeError(w, r, err)
		return
	}
	unread, err := s.Inbox.UnreadCount(r.Context(), me)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":   page.Items,
		"hasMore": page.HasMore,
		"cursor":  page.Cursor,
		"unread":  unread,
	})
}

func (s *Server) readAllNotifications(w http.ResponseWriter, r *http.Request) {
	if err := s.Inbox.MarkAllRead(r.Context(), identity.FromContext(r.Context()).UserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearNotifications(w http.ResponseWriter, r *http.Request) {
	if err := s.Inbox.ClearAll(r.Context(), identity.FromContext(r.Context()).UserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) readNotification(w http.ResponseWriter, r *http.Request) {
	me := identity.FromContext(r.Context()).UserID
	if err := s.Inbox.MarkRead(r.Context(), me, chi.URLParam(r, "notificationID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteNotification(w http.ResponseWriter, r *http.Request) {
	me := identity.FromContext(r.Context()).UserID
	if err := s.Inbox.Delete(r.Context(), me, chi.URLParam(r, "notificationID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
