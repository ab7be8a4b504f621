package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes the entity types that own pointers.
type Kind string

const (
	KindProfile Kind = "profile"
	KindTrifle  Kind = "trifle"
)

var (
	ErrNotFound        = errors.New("pointer not found")
	ErrExists          = errors.New("pointer already exists")
	ErrClockRegression = errors.New("logical clock would move backwards")
)

// Pointer maps a stable entity id to its current content hash. CurrentHash
// and LogicalClock always change in the same transaction.
type Pointer struct {
	ID           string    `json:"id" yaml:"id"`
	OwnerID      string    `json:"owner_id" yaml:"owner_id"`
	Kind         Kind      `json:"kind" yaml:"kind"`
	CurrentHash  string    `json:"current_hash" yaml:"current_hash"`
	LogicalClock int64     `json:"logical_clock" yaml:"logical_clock"`
	LastModified time.Time `json:"last_modified" yaml:"last_modified"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

const pointerColumns = "id, owner_id, kind, current_hash, logical_clock, last_modified, created_at"

// CreatePointer stores initial content and writes the pointer at clock 1.
func (s *Store) CreatePointer(ctx context.Context, id, ownerID string, kind Kind, initial []byte) (*Pointer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("pointer id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	hash, err := s.putBlob(ctx, tx, initial)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO pointers (id, owner_id, kind, current_hash, logical_clock, last_modified, created_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, ownerID, string(kind), hash, dbFormatTime(now), dbFormatTime(now))
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &Pointer{
		ID:           id,
		OwnerID:      ownerID,
		Kind:         kind,
		CurrentHash:  hash,
		LogicalClock: 1,
		LastModified: now,
		CreatedAt:    now,
	}, nil
}

// UpdatePointer stores new content and advances the pointer's clock by one.
func (s *Store) UpdatePointer(ctx context.Context, id string, next []byte) (*Pointer, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	hash, err := s.putBlob(ctx, tx, next)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE pointers
		SET current_hash = ?, logical_clock = logical_clock + 1, last_modified = ?
		WHERE id = ?
	`, hash, dbFormatTime(s.timestamp()), id)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	p, err := scanPointer(tx.QueryRowContext(ctx, "SELECT "+pointerColumns+" FROM pointers WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

// AdoptPointer installs state received from the remote side. The clock and
// last-modified time are written verbatim; a clock lower than the one already
// stored is refused.
func (s *Store) AdoptPointer(ctx context.Context, p Pointer, data []byte) (*Pointer, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, fmt.Errorf("pointer id is required")
	}
	if p.LogicalClock < 1 {
		return nil, fmt.Errorf("adopt %s: logical clock must be >= 1, got %d", p.ID, p.LogicalClock)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var existing int64
	err = tx.QueryRowContext(ctx, "SELECT logical_clock FROM pointers WHERE id = ?", p.ID).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	case existing > p.LogicalClock:
		return nil, fmt.Errorf("%w: %s has clock %d, remote offers %d", ErrClockRegression, p.ID, existing, p.LogicalClock)
	}

	hash, err := s.putBlob(ctx, tx, data)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	lastModified := p.LastModified.UTC()
	if lastModified.IsZero() {
		lastModified = now
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO pointers (id, owner_id, kind, current_hash, logical_clock, last_modified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  owner_id = excluded.owner_id,
		  kind = excluded.kind,
		  current_hash = excluded.current_hash,
		  logical_clock = excluded.logical_clock,
		  last_modified = excluded.last_modified
	`, p.ID, p.OwnerID, string(p.Kind), hash, p.LogicalClock, dbFormatTime(lastModified), dbFormatTime(now))
	if err != nil {
		return nil, err
	}

	out, err := scanPointer(tx.QueryRowContext(ctx, "SELECT "+pointerColumns+" FROM pointers WHERE id = ?", p.ID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPointer returns the pointer for id, or nil when absent.
func (s *Store) GetPointer(ctx context.Context, id string) (*Pointer, error) {
	p, err := scanPointer(s.db.QueryRowContext(ctx, "SELECT "+pointerColumns+" FROM pointers WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// DeletePointer removes the pointer only. Content it referenced stays stored.
func (s *Store) DeletePointer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pointers WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ListPointers returns an owner's pointers of one kind ordered by id.
func (s *Store) ListPointers(ctx context.Context, ownerID string, kind Kind) ([]Pointer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pointerColumns+`
		FROM pointers
		WHERE owner_id = ? AND kind = ?
		ORDER BY id ASC
	`, ownerID, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Pointer, 0)
	for rows.Next() {
		p, err := scanPointer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanPointer(scanner interface{ Scan(dest ...any) error }) (*Pointer, error) {
	var (
		p                       Pointer
		kind                    string
		lastModified, createdAt string
	)
	if err := scanner.Scan(&p.ID, &p.OwnerID, &kind, &p.CurrentHash, &p.LogicalClock, &lastModified, &createdAt); err != nil {
		return nil, err
	}
	p.Kind = Kind(kind)

	var err error
	if p.LastModified, err = dbParseTime(lastModified); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}
