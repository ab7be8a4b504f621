package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const minTokenLength = 16

// TokenEntry binds a bcrypt token hash to an email.
type TokenEntry struct {
	Email     string `toml:"email"`
	TokenHash string `toml:"token_hash"`
}

// TokenTable authenticates static bearer tokens stored as bcrypt hashes.
type TokenTable struct {
	entries []TokenEntry
}

// NewTokenTable drops entries with a blank email or hash.
func NewTokenTable(entries []TokenEntry) *TokenTable {
	t := &TokenTable{}
	for _, e := range entries {
		email := strings.ToLower(strings.TrimSpace(e.Email))
		hash := strings.TrimSpace(e.TokenHash)
		if email == "" || hash == "" {
			continue
		}
		t.entries = append(t.entries, TokenEntry{Email: email, TokenHash: hash})
	}
	return t
}

// Len returns the number of usable entries.
func (t *TokenTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

func (t *TokenTable) Authenticate(_ context.Context, token string) (string, error) {
	if t == nil {
		return "", ErrInvalidToken
	}
	for _, e := range t.entries {
		if VerifyToken(e.TokenHash, token) {
			return e.Email, nil
		}
	}
	return "", ErrInvalidToken
}

// GenerateToken returns a random 32-byte token in hex.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashToken hashes one plaintext token for the server's token table.
func HashToken(token string) (string, error) {
	if len(token) < minTokenLength {
		return "", fmt.Errorf("token must be at least %d characters", minTokenLength)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyToken checks a plaintext token against a bcrypt hash.
func VerifyToken(tokenHash, candidate string) bool {
	if strings.TrimSpace(tokenHash) == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(candidate)) == nil
}
