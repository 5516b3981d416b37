package api

import (
	"net/http"

	"github.com/UkralStul/crewfeed-service/internal/identity"
	"github.com/UkralStul/crewfeed-service/internal/prefs"
)

func (s *Server) getPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := s.Prefs.Get(identity.FromContext(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) putPreferences(w http.ResponseWriter, r *http.Request) {
	var patch prefs.Patch
	if err := decode(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.Prefs.Update(identity.FromContext(r.Context()).UserID, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
