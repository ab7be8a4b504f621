// Package kv is the server's flat, slash-delimited key/value namespace.
//
// Keys are validated with keys.Validate before they reach a backend. A key is
// either a leaf holding a value or a prefix with leaves below it, never both.
package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"trifle/internal/keys"
)

var (
	// ErrNotFound is returned by Delete when nothing exists at or below the key.
	ErrNotFound = errors.New("key not found")
	// ErrConflict reports a write that would turn a leaf into a prefix or back.
	ErrConflict = errors.New("key conflicts with existing key")
)

const DefaultListDepth = 1

// ListOptions bound how far List descends below the prefix.
type ListOptions struct {
	// Depth is the deepest level below the prefix whose leaves are returned.
	// Values below 1 mean DefaultListDepth.
	Depth     int
	Recursive bool
}

func (o ListOptions) maxDepth() int {
	if o.Recursive {
		return -1
	}
	if o.Depth < 1 {
		return DefaultListDepth
	}
	return o.Depth
}

// Namespace is a remote key/value backend.
type Namespace interface {
	// Get returns the value at key; ok is false when the key holds no value.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Put upserts the value at key.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes a leaf, or every leaf below key when key is a prefix.
	Delete(ctx context.Context, key string) error
	// Exists reports whether key holds a value.
	Exists(ctx context.Context, key string) (bool, error)
	// List returns leaf keys below prefix. A missing prefix yields an empty list.
	List(ctx context.Context, prefix string, opts ListOptions) ([]string, error)
	Close() error
}

// Open returns the backend named by kind rooted at dataDir.
func Open(kind, dataDir string) (Namespace, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "fs", "file", "filesystem":
		return NewFileStore(dataDir)
	case "bolt", "bbolt":
		return NewBoltStore(dataDir)
	default:
		return nil, fmt.Errorf("unknown kv backend %q (expected fs or bolt)", kind)
	}
}

func cleanKey(raw string) (string, error) {
	return keys.Validate(raw)
}

// depthBelow returns how many segments key has below prefix.
func depthBelow(prefix, key string) int {
	rest := strings.TrimPrefix(key, prefix+"/")
	return strings.Count(rest, "/") + 1
}

func withinDepth(prefix, key string, maxDepth int) bool {
	return maxDepth < 0 || depthBelow(prefix, key) <= maxDepth
}

func sortedKeys(in []string) []string {
	if in == nil {
		return []string{}
	}
	sort.Strings(in)
	return in
}
