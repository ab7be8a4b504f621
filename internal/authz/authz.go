// Package authz decides whether an identity may touch a remote key.
package authz

import (
	"errors"
	"fmt"

	"trifle/internal/auth"
	"trifle/internal/keys"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
)

// Check validates raw and decides access for id. The parsed key is returned
// on success. Content-addressed file keys are open to everyone; every other
// key needs an authenticated identity that owns it.
func Check(id auth.Identity, raw string) (keys.Key, error) {
	k, err := keys.Parse(raw)
	if err != nil {
		return keys.Key{}, err
	}
	if k.Gen == keys.GenFile {
		return k, nil
	}
	if !id.Authenticated {
		return keys.Key{}, ErrUnauthenticated
	}
	owner, err := keys.ParseEmail(id.Email)
	if err != nil {
		return keys.Key{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !owner.Owns(k) {
		return keys.Key{}, fmt.Errorf("%w: %s", ErrForbidden, raw)
	}
	return k, nil
}

// Allowed is Check reduced to a boolean.
func Allowed(id auth.Identity, raw string) bool {
	_, err := Check(id, raw)
	return err == nil
}
