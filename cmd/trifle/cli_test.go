package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trifle/internal/auth"
	"trifle/internal/config"
	"trifle/internal/kv"
	"trifle/internal/server"
	"trifle/internal/store"
	"trifle/internal/syncer"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv(logLevelEnvKey, "")
	cfg := config.Default()
	cfg.LogLevel = "error"
	cfg.Local.DBPath = filepath.Join(t.TempDir(), "state", "trifle.db")
	cfg.Local.Owner = config.DefaultOwner
	return &cfg
}

func runCLI(t *testing.T, cfg *config.Config, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPutAndCatByName(t *testing.T) {
	cfg := testConfig(t)

	if _, err := runCLI(t, cfg, "", "new", "demo", "-d", "first"); err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := runCLI(t, cfg, "print('hi')\n", "put", "demo", "--as", "main.py"); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := runCLI(t, cfg, "", "cat", "demo", "main.py")
	if err != nil {
		t.Fatalf("cat: %v", err)
	}
	if got != "print('hi')\n" {
		t.Fatalf("unexpected content %q", got)
	}

	if _, err := runCLI(t, cfg, "", "rm", "demo", "--file", "main.py"); err != nil {
		t.Fatalf("rm --file: %v", err)
	}
	if _, err := runCLI(t, cfg, "", "cat", "demo", "main.py"); err == nil {
		t.Fatal("expected missing file error")
	}
	if _, err := runCLI(t, cfg, "", "rm", "demo"); err != nil {
		t.Fatalf("rm: %v", err)
	}
	if _, err := runCLI(t, cfg, "", "show", "demo"); err == nil {
		t.Fatal("expected not found after rm")
	}
}

func TestPutRequiresSomething(t *testing.T) {
	cfg := testConfig(t)
	if _, err := runCLI(t, cfg, "", "new", "demo"); err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := runCLI(t, cfg, "", "put", "demo"); err == nil {
		t.Fatal("expected error without files or flags")
	}
}

func TestInvalidLogLevelFlag(t *testing.T) {
	cfg := testConfig(t)
	if _, err := runCLI(t, cfg, "", "--log-level", "loud", "ls"); err == nil {
		t.Fatal("expected invalid --log-level error")
	}
}

func TestSyncCommand(t *testing.T) {
	ns, err := kv.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	jwt := auth.NewJWTAuthenticator("cli-secret")
	srv := httptest.NewServer(server.New(ns, jwt, server.Config{VerifyFileHashes: true}, nil).Handler())
	t.Cleanup(srv.Close)
	token, err := jwt.Issue("alice@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cfg := testConfig(t)
	if _, err := runCLI(t, cfg, "", "sync"); err == nil {
		t.Fatal("expected missing remote to fail")
	}

	cfg.Remote.URL = srv.URL
	t.Setenv("TRIFLE_TOKEN", "")
	if _, err := runCLI(t, cfg, "", "sync"); !errors.Is(err, syncer.ErrNotLoggedIn) {
		t.Fatalf("expected not logged in without a token, got %v", err)
	}

	cfg.Remote.Email = "bob@example.com"
	cfg.Remote.Token = token
	if _, err := runCLI(t, cfg, "", "sync"); !errors.Is(err, syncer.ErrNotLoggedIn) {
		t.Fatalf("expected not logged in for a token issued to someone else, got %v", err)
	}
	if listed, err := ns.List(context.Background(), "domain", kv.ListOptions{Recursive: true}); err != nil || len(listed) != 0 {
		t.Fatalf("mismatched identity must not write, got %v err=%v", listed, err)
	}

	cfg.Remote.Email = ""
	if _, err := runCLI(t, cfg, "", "new", "demo"); err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := runCLI(t, cfg, "", "sync"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	st, err := store.Open(cfg.Local.DBPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	state, err := st.GetSyncState(context.Background(), cfg.Local.Owner)
	if err != nil {
		t.Fatalf("sync state: %v", err)
	}
	if state == nil || !state.Synced || state.Email != "alice@example.com" {
		t.Fatalf("unexpected sync state %#v", state)
	}
}
