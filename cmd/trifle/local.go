package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"trifle/internal/config"
	"trifle/internal/store"
	"trifle/internal/workspace"
)

func withWorkspace(cmd *cobra.Command, cfg *config.Config, fn func(context.Context, *workspace.Workspace) error) error {
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	if cfg.Local.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Local.DBPath), 0o700); err != nil {
		return err
	}

	st, err := store.Open(cfg.Local.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ws := workspace.New(st, cfg.Local.Owner, slog.Default().With("component", "workspace"))
	return fn(cmd.Context(), ws)
}

// resolveTrifle accepts a trifle id or a name that matches exactly one trifle.
func resolveTrifle(ctx context.Context, ws *workspace.Workspace, ref string) (*workspace.Trifle, error) {
	ref = strings.TrimSpace(ref)
	t, err := ws.Load(ctx, ref)
	if err == nil || !errors.Is(err, workspace.ErrNotFound) {
		return t, err
	}

	all, err := ws.List(ctx)
	if err != nil {
		return nil, err
	}
	var matches []workspace.Trifle
	for _, candidate := range all {
		if candidate.Project.Name == ref {
			matches = append(matches, candidate)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: trifle %q", workspace.ErrNotFound, ref)
	case 1:
		return &matches[0], nil
	default:
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.ID())
		}
		return nil, fmt.Errorf("name %q is ambiguous: %s", ref, strings.Join(ids, ", "))
	}
}
