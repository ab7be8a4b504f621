package kv

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const boltFileName = "kv.db"

var boltBucket = []byte("kv")

// BoltStore keeps every key in a single bbolt bucket. Sorted keys make prefix
// scans a cursor seek.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens dataDir/kv.db, creating it if needed.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		return nil, fmt.Errorf("kv data dir is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(filepath.Join(dataDir, boltFileName), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt kv: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// hasKey reports an exact match. Cursor positioning is used because a stored
// empty value and a missing key are hard to tell apart through Bucket.Get.
func hasKey(b *bbolt.Bucket, key []byte) ([]byte, bool) {
	k, v := b.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, false
	}
	return v, true
}

func hasChildren(b *bbolt.Bucket, key string) bool {
	prefix := []byte(key + "/")
	k, _ := b.Cursor().Seek(prefix)
	return k != nil && bytes.HasPrefix(k, prefix)
}

func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	clean, err := cleanKey(key)
	if err != nil {
		return nil, false, err
	}
	var (
		out   []byte
		found bool
	)
	err = s.db.View(func(tx *bbolt.Tx) error {
		v, ok := hasKey(tx.Bucket(boltBucket), []byte(clean))
		if ok {
			found = true
			out = append([]byte{}, v...)
		}
		return nil
	})
	return out, found, err
}

func (s *BoltStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltBucket)
		if hasChildren(b, clean) {
			return fmt.Errorf("%w: %s is a prefix", ErrConflict, clean)
		}
		for i := strings.Index(clean, "/"); i >= 0; {
			if _, ok := hasKey(b, []byte(clean[:i])); ok {
				return fmt.Errorf("%w: %s is a value", ErrConflict, clean[:i])
			}
			next := strings.Index(clean[i+1:], "/")
			if next < 0 {
				break
			}
			i += next + 1
		}
		if value == nil {
			value = []byte{}
		}
		return b.Put([]byte(clean), value)
	})
}

func (s *BoltStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltBucket)
		var doomed [][]byte
		if _, ok := hasKey(b, []byte(clean)); ok {
			doomed = append(doomed, []byte(clean))
		}
		prefix := []byte(clean + "/")
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			doomed = append(doomed, append([]byte{}, k...))
		}
		if len(doomed) == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, clean)
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	clean, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	var found bool
	err = s.db.View(func(tx *bbolt.Tx) error {
		_, found = hasKey(tx.Bucket(boltBucket), []byte(clean))
		return nil
	})
	return found, err
}

func (s *BoltStore) List(ctx context.Context, prefix string, opts ListOptions) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := cleanKey(prefix)
	if err != nil {
		return nil, err
	}
	maxDepth := opts.maxDepth()
	var out []string
	err = s.db.View(func(tx *bbolt.Tx) error {
		seek := []byte(clean + "/")
		c := tx.Bucket(boltBucket).Cursor()
		for k, _ := c.Seek(seek); k != nil && bytes.HasPrefix(k, seek); k, _ = c.Next() {
			key := string(k)
			if withinDepth(clean, key, maxDepth) {
				out = append(out, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortedKeys(out), nil
}

func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
