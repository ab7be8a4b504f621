package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTIssueAndAuthenticate(t *testing.T) {
	j := NewJWTAuthenticator("test-secret")
	token, err := j.Issue("Alice@Example.com", time.Hour)
	require.NoError(t, err)

	email, err := j.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)

	other := NewJWTAuthenticator("other-secret")
	_, err = other.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTExpired(t *testing.T) {
	j := NewJWTAuthenticator("test-secret")
	j.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := j.Issue("alice@example.com", time.Hour)
	require.NoError(t, err)

	j.now = time.Now
	_, err = j.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNilJWTAuthenticator(t *testing.T) {
	j := NewJWTAuthenticator("  ")
	assert.Nil(t, j)

	_, err := Chain{j}.Authenticate(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenTable(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)
	hash, err := HashToken(token)
	require.NoError(t, err)

	table := NewTokenTable([]TokenEntry{
		{Email: " Bob@Example.com ", TokenHash: hash},
		{Email: "", TokenHash: hash},
	})
	assert.Equal(t, 1, table.Len())

	email, err := table.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", email)

	_, err = table.Authenticate(context.Background(), "not-the-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = HashToken("short")
	assert.Error(t, err)
}

type failingAuthenticator struct{ err error }

func (f failingAuthenticator) Authenticate(context.Context, string) (string, error) {
	return "", f.err
}

func TestChain(t *testing.T) {
	j := NewJWTAuthenticator("s")
	token, err := j.Issue("carol@example.com", time.Hour)
	require.NoError(t, err)

	email, err := Chain{NewTokenTable(nil), j}.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", email)

	boom := errors.New("backend down")
	_, err = Chain{failingAuthenticator{err: boom}, j}.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, boom)
}

func TestIdentify(t *testing.T) {
	j := NewJWTAuthenticator("s")
	token, err := j.Issue("alice@example.com", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		want    Identity
		wantErr error
	}{
		{name: "no header", want: Anonymous},
		{name: "valid bearer", header: "Bearer " + token, want: Identity{Email: "alice@example.com", Authenticated: true}},
		{name: "lowercase scheme", header: "bearer " + token, want: Identity{Email: "alice@example.com", Authenticated: true}},
		{name: "wrong scheme", header: "Basic abc", wantErr: ErrMalformedHeader},
		{name: "missing token", header: "Bearer", wantErr: ErrMalformedHeader},
		{name: "bad token", header: "Bearer nope", wantErr: ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/kv/x", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := Identify(r, j)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIdentityContext(t *testing.T) {
	assert.Equal(t, Anonymous, FromContext(context.Background()))
	id := Identity{Email: "a@b.c", Authenticated: true}
	assert.Equal(t, id, FromContext(WithIdentity(context.Background(), id)))
}
