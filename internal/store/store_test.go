package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"trifle/internal/content"
)

// testStore creates a temporary store for testing.
func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestPutBlobDeduplicates(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	first, err := st.PutBlob(ctx, []byte("print(1)"))
	if err != nil {
		t.Fatalf("put first: %v", err)
	}
	second, err := st.PutBlob(ctx, []byte("print(1)"))
	if err != nil {
		t.Fatalf("put second: %v", err)
	}
	if first != second {
		t.Fatalf("expected same hash, got %q and %q", first, second)
	}
	if first != content.Hash([]byte("print(1)")) {
		t.Fatalf("unexpected hash %q", first)
	}

	count, err := st.CountBlobs(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one stored blob, got %d", count)
	}

	data, ok, err := st.GetBlob(ctx, first)
	if err != nil || !ok {
		t.Fatalf("get blob: ok=%v err=%v", ok, err)
	}
	if string(data) != "print(1)" {
		t.Fatalf("unexpected data %q", data)
	}
}

func TestGetBlobMissIsNotAnError(t *testing.T) {
	st := testStore(t)

	data, ok, err := st.GetBlob(context.Background(), content.Hash([]byte("nope")))
	if err != nil {
		t.Fatalf("expected no error on miss, got %v", err)
	}
	if ok || data != nil {
		t.Fatalf("expected absent blob, got ok=%v data=%q", ok, data)
	}
}

func TestEmptyBlob(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	hash, err := st.PutBlob(ctx, nil)
	if err != nil {
		t.Fatalf("put empty: %v", err)
	}
	data, ok, err := st.GetBlob(ctx, hash)
	if err != nil || !ok {
		t.Fatalf("get empty: ok=%v err=%v", ok, err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty data, got %q", data)
	}
}

func TestPointerClockAdvancesByOne(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	p, err := st.CreatePointer(ctx, "trifle_0000000000000001", "local", KindTrifle, []byte("v0"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.LogicalClock != 1 {
		t.Fatalf("expected clock 1, got %d", p.LogicalClock)
	}

	const edits = 5
	var last []byte
	for i := 1; i <= edits; i++ {
		last = []byte{'v', byte('0' + i)}
		p, err = st.UpdatePointer(ctx, p.ID, last)
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	got, err := st.GetPointer(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LogicalClock != 1+edits {
		t.Fatalf("expected clock %d, got %d", 1+edits, got.LogicalClock)
	}
	if got.CurrentHash != content.Hash(last) {
		t.Fatalf("expected hash of latest content, got %q", got.CurrentHash)
	}
	if got.Kind != KindTrifle || got.OwnerID != "local" {
		t.Fatalf("unexpected pointer %#v", got)
	}
}

func TestCreatePointerTwiceFails(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	if _, err := st.CreatePointer(ctx, "profile_local", "local", KindProfile, []byte("{}")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.CreatePointer(ctx, "profile_local", "local", KindProfile, []byte("{}")); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestUpdateMissingPointer(t *testing.T) {
	st := testStore(t)
	if _, err := st.UpdatePointer(context.Background(), "missing", []byte("x")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeletePointerKeepsContent(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	p, err := st.CreatePointer(ctx, "trifle_0000000000000002", "local", KindTrifle, []byte("keep me"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.DeletePointer(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := st.GetPointer(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected pointer to be gone, got %#v", got)
	}
	if ok, err := st.HasBlob(ctx, p.CurrentHash); err != nil || !ok {
		t.Fatalf("expected content to survive pointer delete: ok=%v err=%v", ok, err)
	}
	if err := st.DeletePointer(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestAdoptPointerWritesClockVerbatim(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	remoteTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	p, err := st.AdoptPointer(ctx, Pointer{
		ID:           "trifle_0000000000000003",
		OwnerID:      "local",
		Kind:         KindTrifle,
		LogicalClock: 7,
		LastModified: remoteTime,
	}, []byte("remote"))
	if err != nil {
		t.Fatalf("adopt: %v", err)
	}
	if p.LogicalClock != 7 || !p.LastModified.Equal(remoteTime) {
		t.Fatalf("expected verbatim clock/time, got %d %v", p.LogicalClock, p.LastModified)
	}
	if p.CurrentHash != content.Hash([]byte("remote")) {
		t.Fatalf("unexpected hash %q", p.CurrentHash)
	}

	// Equal clock is allowed (remote wins ties for profiles).
	if _, err := st.AdoptPointer(ctx, Pointer{ID: p.ID, OwnerID: "local", Kind: KindTrifle, LogicalClock: 7}, []byte("tie")); err != nil {
		t.Fatalf("adopt tie: %v", err)
	}

	_, err = st.AdoptPointer(ctx, Pointer{ID: p.ID, OwnerID: "local", Kind: KindTrifle, LogicalClock: 3}, []byte("old"))
	if !errors.Is(err, ErrClockRegression) {
		t.Fatalf("expected ErrClockRegression, got %v", err)
	}
	got, _ := st.GetPointer(ctx, p.ID)
	if got.LogicalClock != 7 || got.CurrentHash != content.Hash([]byte("tie")) {
		t.Fatalf("expected refused adopt to leave pointer untouched, got %#v", got)
	}
}

func TestListPointersByOwnerAndKind(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	mustCreate := func(id, owner string, kind Kind) {
		t.Helper()
		if _, err := st.CreatePointer(ctx, id, owner, kind, []byte(id)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	mustCreate("trifle_b", "alice", KindTrifle)
	mustCreate("trifle_a", "alice", KindTrifle)
	mustCreate("trifle_c", "bob", KindTrifle)
	mustCreate("profile_alice", "alice", KindProfile)

	got, err := st.ListPointers(ctx, "alice", KindTrifle)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "trifle_a" || got[1].ID != "trifle_b" {
		t.Fatalf("unexpected pointers %#v", got)
	}
}

func TestSyncStateRoundTrip(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	none, err := st.GetSyncState(ctx, "alice")
	if err != nil || none != nil {
		t.Fatalf("expected no state, got %#v err=%v", none, err)
	}

	when := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	if err := st.SaveSyncState(ctx, SyncState{OwnerID: "alice", Email: "alice@example.com", Synced: true, LastSync: when, LastAttempt: when}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := st.GetSyncState(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Synced || got.Email != "alice@example.com" || !got.LastSync.Equal(when) || got.LastError != "" {
		t.Fatalf("unexpected state %#v", got)
	}

	later := when.Add(time.Hour)
	if err := st.SaveSyncState(ctx, SyncState{OwnerID: "alice", Email: "alice@example.com", LastSync: later, LastAttempt: later, LastError: "boom"}); err != nil {
		t.Fatalf("save failure: %v", err)
	}
	got, err = st.GetSyncState(ctx, "alice")
	if err != nil {
		t.Fatalf("get after failure: %v", err)
	}
	if got.Synced || got.LastError != "boom" {
		t.Fatalf("unexpected state after failure %#v", got)
	}
	if !got.LastSync.Equal(when) {
		t.Fatalf("failed run moved last_sync to %v, want %v", got.LastSync, when)
	}
	if !got.LastAttempt.Equal(later) {
		t.Fatalf("last_attempt = %v, want %v", got.LastAttempt, later)
	}
}

func TestSyncStateFirstRunFailure(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	when := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	if err := st.SaveSyncState(ctx, SyncState{OwnerID: "bob", Email: "bob@example.com", LastSync: when, LastAttempt: when, LastError: "offline"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := st.GetSyncState(ctx, "bob")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.LastSync.IsZero() {
		t.Fatalf("expected no successful sync, got %v", got.LastSync)
	}
	if !got.LastAttempt.Equal(when) || got.LastError != "offline" {
		t.Fatalf("unexpected state %#v", got)
	}
}
