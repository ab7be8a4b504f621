package workspace

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"trifle/internal/content"
	"trifle/internal/store"
)

func testWorkspace(t *testing.T) *Workspace {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "trifle.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, "", nil)
}

func TestCreateTrifle(t *testing.T) {
	ws := testWorkspace(t)
	ctx := context.Background()

	tr, err := ws.CreateTrifle(ctx, "demo", "a demo", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.ValidateTrifleID(tr.ID()); err != nil {
		t.Fatalf("bad id: %v", err)
	}
	if tr.Pointer.LogicalClock != 1 || tr.Pointer.OwnerID != DefaultOwner {
		t.Fatalf("unexpected pointer %#v", tr.Pointer)
	}
	if len(tr.Project.Files) != 0 {
		t.Fatalf("expected no files, got %#v", tr.Project.Files)
	}

	if _, err := ws.CreateTrifle(ctx, "  ", "", ""); err == nil {
		t.Fatal("expected error for blank name")
	}
}

func TestWriteFileAdvancesClock(t *testing.T) {
	ws := testWorkspace(t)
	ctx := context.Background()

	tr, err := ws.CreateTrifle(ctx, "demo", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tr, err = ws.WriteFile(ctx, tr.ID(), "main.py", []byte("print(1)"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if tr.Pointer.LogicalClock != 2 {
		t.Fatalf("expected clock 2, got %d", tr.Pointer.LogicalClock)
	}
	ref, ok := tr.Project.File("main.py")
	if !ok || ref.Hash != content.Hash([]byte("print(1)")) {
		t.Fatalf("unexpected file ref %#v", ref)
	}

	// Rewriting identical bytes is not a mutation.
	same, err := ws.WriteFile(ctx, tr.ID(), "main.py", []byte("print(1)"))
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if same.Pointer.LogicalClock != 2 {
		t.Fatalf("expected clock to stay at 2, got %d", same.Pointer.LogicalClock)
	}

	tr, err = ws.WriteFile(ctx, tr.ID(), "main.py", []byte("print(2)"))
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if tr.Pointer.LogicalClock != 3 {
		t.Fatalf("expected clock 3, got %d", tr.Pointer.LogicalClock)
	}

	data, err := ws.ReadFile(ctx, tr.ID(), "main.py")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "print(2)" {
		t.Fatalf("unexpected file data %q", data)
	}

	loaded, err := ws.Load(ctx, tr.ID())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	encoded, _ := content.Encode(loaded.Project)
	if content.Hash(encoded) != loaded.Pointer.CurrentHash {
		t.Fatal("pointer hash does not match its project content")
	}
}

func TestWriteFileSharesBlobs(t *testing.T) {
	ws := testWorkspace(t)
	ctx := context.Background()

	a, _ := ws.CreateTrifle(ctx, "a", "", "")
	b, _ := ws.CreateTrifle(ctx, "b", "", "")
	if _, err := ws.WriteFile(ctx, a.ID(), "main.py", []byte("shared")); err != nil {
		t.Fatalf("write a: %v", err)
	}
	before, _ := ws.Store().CountBlobs(ctx)
	if _, err := ws.WriteFile(ctx, b.ID(), "lib/util.py", []byte("shared")); err != nil {
		t.Fatalf("write b: %v", err)
	}
	after, _ := ws.Store().CountBlobs(ctx)
	// Only b's new project blob is added; the file bytes are shared.
	if after != before+1 {
		t.Fatalf("expected one new blob, got %d -> %d", before, after)
	}
}

func TestRemoveRenameDescribe(t *testing.T) {
	ws := testWorkspace(t)
	ctx := context.Background()

	tr, _ := ws.CreateTrifle(ctx, "demo", "", "")
	tr, _ = ws.WriteFile(ctx, tr.ID(), "main.py", []byte("x"))
	tr, _ = ws.WriteFile(ctx, tr.ID(), "b.py", []byte("y"))

	tr, err := ws.RemoveFile(ctx, tr.ID(), "main.py")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := tr.Project.File("main.py"); ok {
		t.Fatal("expected main.py to be gone")
	}
	if _, err := ws.RemoveFile(ctx, tr.ID(), "main.py"); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}

	tr, err = ws.Rename(ctx, tr.ID(), "renamed")
	if err != nil || tr.Project.Name != "renamed" {
		t.Fatalf("rename: %#v %v", tr, err)
	}
	tr, err = ws.Describe(ctx, tr.ID(), "hello")
	if err != nil || tr.Project.Description != "hello" {
		t.Fatalf("describe: %#v %v", tr, err)
	}
	if tr.Pointer.LogicalClock != 6 {
		t.Fatalf("expected clock 6 after five mutations, got %d", tr.Pointer.LogicalClock)
	}

	if _, err := ws.WriteFile(ctx, tr.ID(), "../escape.py", []byte("x")); !errors.Is(err, content.ErrInvalidProject) {
		t.Fatalf("expected invalid path error, got %v", err)
	}
}

func TestDeleteAndList(t *testing.T) {
	ws := testWorkspace(t)
	ctx := context.Background()

	a, _ := ws.CreateTrifle(ctx, "a", "", "")
	b, _ := ws.CreateTrifle(ctx, "b", "", "")

	list, err := ws.List(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("list: %d %v", len(list), err)
	}

	if err := ws.Delete(ctx, a.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := ws.Load(ctx, a.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	list, _ = ws.List(ctx)
	if len(list) != 1 || list[0].ID() != b.ID() {
		t.Fatalf("unexpected list %#v", list)
	}

	other := New(ws.Store(), "someone-else", nil)
	if _, err := other.Load(ctx, b.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected other owner not to see trifle, got %v", err)
	}
}

func TestProfile(t *testing.T) {
	ws := testWorkspace(t)
	ctx := context.Background()

	profile, p, err := ws.Profile(ctx)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if !strings.Contains(profile.DisplayName, "-") || p.LogicalClock != 1 {
		t.Fatalf("unexpected default profile %#v %#v", profile, p)
	}

	again, p2, err := ws.Profile(ctx)
	if err != nil || again != profile || p2.LogicalClock != 1 {
		t.Fatalf("expected stable profile, got %#v %#v %v", again, p2, err)
	}

	updated, p3, err := ws.SetDisplayName(ctx, "Alice")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if updated.DisplayName != "Alice" || p3.LogicalClock != 2 {
		t.Fatalf("unexpected update %#v %#v", updated, p3)
	}
}
