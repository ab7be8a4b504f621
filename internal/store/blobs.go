package store

import (
	"context"
	"database/sql"
	"errors"

	"trifle/internal/content"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PutBlob stores data under its content hash. Storing the same bytes again is
// a no-op that returns the same hash.
func (s *Store) PutBlob(ctx context.Context, data []byte) (string, error) {
	return s.putBlob(ctx, s.db, data)
}

func (s *Store) putBlob(ctx context.Context, ex execer, data []byte) (string, error) {
	if data == nil {
		data = []byte{}
	}
	hash := content.Hash(data)
	_, err := ex.ExecContext(ctx, `
		INSERT INTO blobs (hash, data, size, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, hash, data, len(data), dbFormatTime(s.timestamp()))
	if err != nil {
		return "", err
	}
	return hash, nil
}

// GetBlob returns the bytes stored under hash. A miss is reported through ok,
// not as an error. Stored bytes are returned as-is without re-hashing.
func (s *Store) GetBlob(ctx context.Context, hash string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM blobs WHERE hash = ?", hash).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, true, nil
}

// HasBlob reports whether hash is stored.
func (s *Store) HasBlob(ctx context.Context, hash string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM blobs WHERE hash = ? LIMIT 1", hash).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CountBlobs returns the number of distinct stored blobs.
func (s *Store) CountBlobs(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM blobs").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
