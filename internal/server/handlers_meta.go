package server

import (
	"net/http"

	"trifle/internal/api"
	"trifle/internal/auth"
	"trifle/internal/authz"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Backend: s.cfg.Backend})
}

// handleWhoAmI reports the email the caller's credentials authenticate as.
func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if !id.Authenticated {
		s.writeServiceError(w, r, authz.ErrUnauthenticated)
		return
	}
	s.writeJSON(w, http.StatusOK, api.WhoAmIResponse{Email: id.Email})
}
