package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SyncState is the last sync outcome recorded for display. LastSync is the
// time of the last successful sync and is zero until one succeeds;
// LastAttempt is the time of the most recent run.
type SyncState struct {
	OwnerID     string    `json:"owner_id" yaml:"owner_id"`
	Email       string    `json:"email" yaml:"email"`
	Synced      bool      `json:"synced" yaml:"synced"`
	LastSync    time.Time `json:"last_sync" yaml:"last_sync"`
	LastAttempt time.Time `json:"last_attempt" yaml:"last_attempt"`
	LastError   string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// SaveSyncState upserts the sync status of one owner. A failed run leaves
// the stored LastSync untouched.
func (s *Store) SaveSyncState(ctx context.Context, st SyncState) error {
	synced := 0
	lastSync := ""
	if st.Synced {
		synced = 1
		lastSync = dbFormatTime(st.LastSync)
	}
	var lastErr any
	if st.LastError != "" {
		lastErr = st.LastError
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (owner_id, email, synced, last_sync, last_attempt, last_error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
		  email = excluded.email,
		  synced = excluded.synced,
		  last_sync = CASE WHEN excluded.synced = 1 THEN excluded.last_sync ELSE sync_state.last_sync END,
		  last_attempt = excluded.last_attempt,
		  last_error = excluded.last_error
	`, st.OwnerID, st.Email, synced, lastSync, dbFormatTime(st.LastAttempt), lastErr)
	return err
}

// GetSyncState returns the recorded status for ownerID, or nil if it never synced.
func (s *Store) GetSyncState(ctx context.Context, ownerID string) (*SyncState, error) {
	var (
		st          SyncState
		synced      int
		lastSync    string
		lastAttempt sql.NullString
		lastErr     sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_id, email, synced, last_sync, last_attempt, last_error
		FROM sync_state
		WHERE owner_id = ?
	`, ownerID).Scan(&st.OwnerID, &st.Email, &synced, &lastSync, &lastAttempt, &lastErr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.Synced = synced == 1
	st.LastError = lastErr.String
	if lastSync != "" {
		if st.LastSync, err = dbParseTime(lastSync); err != nil {
			return nil, err
		}
	}
	if lastAttempt.Valid && lastAttempt.String != "" {
		if st.LastAttempt, err = dbParseTime(lastAttempt.String); err != nil {
			return nil, err
		}
	}
	return &st, nil
}
