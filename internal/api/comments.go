package api

import (
	"net/http"

	"github.com/UkralStul/crewfeed-service/internal/apperr"
	"github.com/UkralStul/crewfeed-service/internal/comments"
	"github.com/UkralStul/crewfeed-service/internal/identity"

	"github.com/go-chi/chi/v5"
)

type commentRequest struct {
	Text string `json:"text"`
	// AddressedTo is the id of the reply being answered. Empty answers the
	// top-level comment.
	AddressedTo string `json:"addressedTo,omitempty"`
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	args, err := pageArgs(r, s.CommentPageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := s.Comments.LoadTopLevel(r.Context(), chi.URLParam(r, "postID"), args)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// thread is the caller's open thread on the routed post.
func (s *Server) thread(r *http.Request) *comments.Thread {
	return s.Threads.For(identity.FromContext(r.Context()), chi.URLParam(r, "postID"))
}

// sessionThread is thread for routes that only make sense on a thread kept
// across requests.
func (s *Server) sessionThread(w http.ResponseWriter, r *http.Request) (*comments.Thread, bool) {
	if !identity.FromContext(r.Context()).Authenticated() {
		writeError(w, r, apperr.ErrUnauthenticated)
		return nil, false
	}
	return s.thread(r), true
}

// getThread expands the caller's thread, with ?focus pinned on top when it
// is not on the first page. An already expanded thread is returned as is.
func (s *Server) getThread(w http.ResponseWriter, r *http.Request) {
	view, err := s.thread(r).Expand(r.Context(), r.URL.Query().Get("focus"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) loadMoreThread(w http.ResponseWriter, r *http.Request) {
	thread, ok := s.sessionThread(w, r)
	if !ok {
		return
	}
	view, err := thread.LoadMore(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) collapseThread(w http.ResponseWriter, r *http.Request) {
	thread, ok := s.sessionThread(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, thread.Collapse())
}

// replies resolves the reply list of the routed root comment, which must
// exist on the routed post.
func (s *Server) replies(w http.ResponseWriter, r *http.Request, thread *comments.Thread) (*comments.Replies, bool) {
	rootID := chi.URLParam(r, "commentID")
	if _, err := s.Comments.GetComment(r.Context(), chi.URLParam(r, "postID"), rootID); err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return thread.Replies(rootID), true
}

func (s *Server) getReplies(w http.ResponseWriter, r *http.Request) {
	replies, ok := s.replies(w, r, s.thread(r))
	if !ok {
		return
	}
	view, err := replies.Expand(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) loadMoreReplies(w http.ResponseWriter, r *http.Request) {
	thread, ok := s.sessionThread(w, r)
	if !ok {
		return
	}
	replies, ok := s.replies(w, r, thread)
	if !ok {
		return
	}
	view, err := replies.LoadMore(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) collapseReplies(w http.ResponseWriter, r *http.Request) {
	thread, ok := s.sessionThread(w, r)
	if !ok {
		return
	}
	replies, ok := s.replies(w, r, thread)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, replies.Collapse())
}

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	comment, err := s.thread(r).AddComment(r.Context(), identity.FromContext(r.Context()), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (s *Server) listReplies(w http.ResponseWriter, r *http.Request) {
	args, err := pageArgs(r, s.ReplyPageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := s.Comments.LoadReplies(r.Context(), chi.URLParam(r, "postID"), chi.URLParam(r, "commentID"), args)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// addReply writes through the caller's thread, so an expanded thread shows
// the bumped replyCount at once and loses it again if the write fails.
func (s *Server) addReply(w http.ResponseWriter, r *http.Request) {
	actor := identity.FromContext(r.Context())
	if !actor.Authenticated() {
		writeError(w, r, apperr.ErrUnauthenticated)
		return
	}
	var req commentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	target, err := s.Comments.ResolveTarget(r.Context(), chi.URLParam(r, "postID"), chi.URLParam(r, "commentID"), req.AddressedTo)
	if err != nil {
		writeError(w, r, err)
		return
	}
	reply, err := s.thread(r).AddReply(r.Context(), actor, target, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reply)
}
