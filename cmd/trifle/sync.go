package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"trifle/internal/api"
	"trifle/internal/config"
	"trifle/internal/syncer"
	"trifle/internal/workspace"
)

func newRemoteClient(cfg *config.Config) (*api.Client, error) {
	if strings.TrimSpace(cfg.Remote.URL) == "" {
		return nil, fmt.Errorf("remote.url is required")
	}
	return api.NewClient(cfg.Remote.URL,
		api.WithToken(cfg.Remote.Token),
		api.WithTimeout(cfg.RemoteTimeout()),
	), nil
}

func newEngine(cfg *config.Config, ws *workspace.Workspace) (*syncer.Engine, *api.Client, error) {
	client, err := newRemoteClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return syncer.New(ws, client, syncer.Options{
		Parallelism: cfg.Remote.Parallelism,
		Logger:      slog.Default().With("component", "sync"),
	}), client, nil
}

func newSyncCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local store with the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, cfg, func(ctx context.Context, ws *workspace.Workspace) error {
				engine, client, err := newEngine(cfg, ws)
				if err != nil {
					return err
				}
				res := engine.SyncAuthenticated(ctx, client, cfg.Remote.Email)
				if out.structured() {
					if err := writeStructured(out, res); err != nil {
						return err
					}
				} else if res.Success() {
					s := res.Stats
					if err := writePlain("synced %s: %d uploaded, %d downloaded, %d unchanged, %d diverged, %d migrated (files: %d up, %d down)\n",
						res.Email, s.Uploaded, s.Downloaded, s.Skipped, s.Diverged, s.Migrated, s.FilesUploaded, s.FilesDownloaded); err != nil {
						return err
					}
				}
				if !res.Success() {
					return res.Err
				}
				return nil
			})
		},
	}
}

type statusView struct {
	Owner       string `json:"owner" yaml:"owner"`
	Email       string `json:"email,omitempty" yaml:"email,omitempty"`
	Remote      string `json:"remote" yaml:"remote"`
	Trifles     int    `json:"trifles" yaml:"trifles"`
	Blobs       int    `json:"blobs" yaml:"blobs"`
	Synced      bool   `json:"synced" yaml:"synced"`
	LastSync    string `json:"last_sync" yaml:"last_sync"`
	LastAttempt string `json:"last_attempt,omitempty" yaml:"last_attempt,omitempty"`
	LastError   string `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

func newStatusCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show local store and last sync status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, cfg, func(ctx context.Context, ws *workspace.Workspace) error {
				trifles, err := ws.List(ctx)
				if err != nil {
					return err
				}
				blobs, err := ws.Store().CountBlobs(ctx)
				if err != nil {
					return err
				}
				view := statusView{
					Owner:    ws.Owner(),
					Email:    cfg.Remote.Email,
					Remote:   cfg.Remote.URL,
					Trifles:  len(trifles),
					Blobs:    blobs,
					LastSync: "never",
				}
				state, err := ws.Store().GetSyncState(ctx, ws.Owner())
				if err != nil {
					return err
				}
				if state != nil {
					view.Synced = state.Synced
					if !state.LastSync.IsZero() {
						view.LastSync = formatTime(state.LastSync)
					}
					if !state.LastAttempt.IsZero() {
						view.LastAttempt = formatTime(state.LastAttempt)
					}
					view.LastError = state.LastError
					if view.Email == "" {
						view.Email = state.Email
					}
				}

				if out.structured() {
					return writeStructured(out, view)
				}
				lines := []string{
					fmt.Sprintf("owner: %s", view.Owner),
					fmt.Sprintf("email: %s", valueOr(view.Email, "(not logged in)")),
					fmt.Sprintf("remote: %s", view.Remote),
					fmt.Sprintf("trifles: %d", view.Trifles),
					fmt.Sprintf("blobs: %d", view.Blobs),
					fmt.Sprintf("synced: %t", view.Synced),
					fmt.Sprintf("last_sync: %s", view.LastSync),
				}
				if view.LastAttempt != "" && view.LastAttempt != view.LastSync {
					lines = append(lines, fmt.Sprintf("last_attempt: %s", view.LastAttempt))
				}
				if view.LastError != "" {
					lines = append(lines, fmt.Sprintf("last_error: %s", view.LastError))
				}
				return writePlain("%s\n", strings.Join(lines, "\n"))
			})
		},
	}
}

func newProfileCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or set the local profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, cfg, func(ctx context.Context, ws *workspace.Workspace) error {
				profile, ptr, err := ws.Profile(ctx)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("name") {
					if profile, ptr, err = ws.SetDisplayName(ctx, name); err != nil {
						return err
					}
				}
				if out.structured() {
					return writeStructured(out, map[string]any{
						"display_name":  profile.DisplayName,
						"logical_clock": ptr.LogicalClock,
						"last_modified": ptr.LastModified,
					})
				}
				return writePlain("%s (clock %d)\n", profile.DisplayName, ptr.LogicalClock)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "set the display name")
	return cmd
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
