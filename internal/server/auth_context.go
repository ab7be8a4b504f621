package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"trifle/internal/auth"
)

const requestIDHeader = "X-Request-ID"

type requestIDContextKey struct{}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// withRequestID propagates a caller-supplied request id or mints one.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDContextKey{}, id)))
	})
}

// withIdentity resolves the bearer token. A missing header, or a token that
// does not authenticate, continues as anonymous so public file keys stay
// reachable; the authorization gate rejects everything else with a 401.
func (s *Server) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := auth.Identify(r, s.authn)
		switch {
		case err == nil:
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMalformedHeader):
			s.log().Debug("credentials rejected; continuing anonymously",
				"path", r.URL.Path,
				"request_id", requestIDFromContext(r.Context()),
				"error", err,
			)
			id = auth.Anonymous
		default:
			s.writeServiceError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}
