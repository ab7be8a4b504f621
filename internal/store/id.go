package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	TrifleIDPrefix = "trifle"
	trifleIDBytes  = 8
	idMaxAttempts  = 20
)

// GenerateID returns prefix_<hex> with byteLen random bytes. It retries on
// collisions using the provided exists function.
func GenerateID(prefix string, byteLen int, exists func(string) (bool, error)) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("id prefix is required")
	}
	if byteLen <= 0 {
		return "", fmt.Errorf("id length must be positive")
	}

	for i := 0; i < idMaxAttempts; i++ {
		b := make([]byte, byteLen)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		id := prefix + "_" + hex.EncodeToString(b)
		if exists == nil {
			return id, nil
		}
		ok, err := exists(id)
		if err != nil {
			return "", err
		}
		if !ok {
			return id, nil
		}
	}

	return "", fmt.Errorf("unable to generate unique id")
}

// ValidateTrifleID checks the trifle_<16 hex> shape.
func ValidateTrifleID(id string) error {
	rest, ok := strings.CutPrefix(id, TrifleIDPrefix+"_")
	if !ok {
		return fmt.Errorf("invalid trifle id %q: missing %s_ prefix", id, TrifleIDPrefix)
	}
	if len(rest) != trifleIDBytes*2 {
		return fmt.Errorf("invalid trifle id %q: expected %d hex chars", id, trifleIDBytes*2)
	}
	if _, err := hex.DecodeString(rest); err != nil {
		return fmt.Errorf("invalid trifle id %q: %w", id, err)
	}
	return nil
}
