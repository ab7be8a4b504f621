// Package auth resolves the identity behind a request. Session and OAuth
// mechanics live elsewhere; this package only turns a bearer token into an
// email address.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrInvalidToken reports a bearer token no authenticator accepts.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMalformedHeader reports an Authorization header that is not "Bearer <token>".
	ErrMalformedHeader = errors.New("malformed authorization header")
)

// Identity is the caller as seen by the authorization gate.
type Identity struct {
	Email         string
	Authenticated bool
}

// Anonymous is the identity of a request without credentials.
var Anonymous = Identity{}

// Authenticator maps a bearer token to the email it was issued for.
// Unknown tokens return ErrInvalidToken.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// Chain tries each authenticator in order and returns the first match.
type Chain []Authenticator

func (c Chain) Authenticate(ctx context.Context, token string) (string, error) {
	for _, a := range c {
		if a == nil {
			continue
		}
		email, err := a.Authenticate(ctx, token)
		if err == nil {
			return email, nil
		}
		if !errors.Is(err, ErrInvalidToken) {
			return "", err
		}
	}
	return "", ErrInvalidToken
}

// Identify resolves r's Authorization header. A request without the header is
// anonymous; a header carrying a token that does not authenticate is an error.
func Identify(r *http.Request, a Authenticator) (Identity, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return Anonymous, nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return Anonymous, ErrMalformedHeader
	}
	if a == nil {
		return Anonymous, ErrInvalidToken
	}
	email, err := a.Authenticate(r.Context(), token)
	if err != nil {
		return Anonymous, err
	}
	return Identity{Email: strings.ToLower(strings.TrimSpace(email)), Authenticated: true}, nil
}

type identityContextKey struct{}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext returns the identity stored by WithIdentity, or Anonymous.
func FromContext(ctx context.Context) Identity {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok {
		return Anonymous
	}
	return id
}
