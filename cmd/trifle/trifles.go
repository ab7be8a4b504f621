package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"trifle/internal/config"
	"trifle/internal/syncer"
	"trifle/internal/workspace"
)

func newNewCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	var (
		description string
		parent      string
	)

	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create an empty trifle",
		Args:  requireExactlyArgs(1, "name is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, cfg, func(ctx context.Context, ws *workspace.Workspace) error {
				t, err := ws.CreateTrifle(ctx, args[0], description, parent)
				if err != nil {
					return err
				}
				if out.structured() {
					return writeStructured(out, t)
				}
				return writePlain("%s\n", t.ID())
			})
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "trifle description")
	cmd.Flags().StringVar(&parent, "parent", "", "id of the trifle this one was forked from")
	return cmd
}

func newListCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List local trifles",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, cfg, func(ctx context.Context, ws *workspace.Workspace) error {
				trifles, err := ws.List(ctx)
				if err != nil {
					return err
				}
				if out.structured() {
					return writeStructured(out, trifles)
				}
				return writeTrifleList(trifles)
			})
		},
	}
}

func newShowCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a trifle and its files",
		Args:  requireTrifle(0, 0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, cfg, func(ctx context.Context, ws *workspace.Workspace) error {
				t, err := resolveTrifle(ctx, ws, args[0])
				if err != nil {
					return err
				}
				if out.structured() {
					return writeStructured(out, t)
				}
				return writeTrifleDetail(*t)
			})
		},
	}
}

func newPutCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	var (
		as          string
		name        string
		description string
	)

	cmd := &cobra.Command{
		Use:   "put <id> [file...]",
		Short: "Write files into a trifle (stdin when no file is given)",
		Long: `Write files into a trifle. Each file is stored under its base name unless
--as is given. With no files, stdin is read and stored under --as.
--name and --description update the trifle's metadata.`,
		Args: requireTrifle(0, -1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := args[1:]
			if len(files) > 1 && as != "" {
				return fmt.Errorf("--as needs exactly one file")
			}
			if len(files) == 0 && as == "" && name == "" && !cmd.Flags().Changed("description") {
				return fmt.Errorf("nothing to write: pass files, --as for stdin, --name or --description")
			}

			return withWorkspace(cmd, cfg, func(ctx context.Context, ws *workspace.Workspace) error {
				t, err := resolveTrifle(ctx, ws, args[0])
				if err != nil {
					return err
				}
				id := t.ID()

				if len(files) == 0 && as != "" {
					data, err := io.ReadAll(cmd.InOrStdin())
					if err != nil {
						return err
					}
					if t, err = ws.WriteFile(ctx, id, as, data); err != nil {
						return err
					}
				}
				for _, path := range files {
					data, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					target := filepath.ToSlash(filepath.Base(path))
					if as != "" {
						target = as
					}
					if t, err = ws.WriteFile(ctx, id, target, data); err != nil {
						return err
					}
				}
				if name != "" {
					if t, err = ws.Rename(ctx, id, name); err != nil {
						return err
					}
				}
				if cmd.Flags().Changed("description") {
					if t, err = ws.Describe(ctx, id, description); err != nil {
						return err
					}
				}

				if out.structured() {
					return writeStructured(out, t)
				}
				return writePlain("%s\n", formatTrifleLine(*t))
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "path to store the content under")
	cmd.Flags().StringVar(&name, "name", "", "rename the trifle")
	cmd.Flags().StringVarP(&description, "description", "d", "", "set the trifle description")
	return cmd
}

func newCatCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <id> <path>",
		Short: "Print one file of a trifle",
		Args:  requireTrifleFile,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, cfg, func(ctx context.Context, ws *workspace.Workspace) error {
				t, err := resolveTrifle(ctx, ws, args[0])
				if err != nil {
					return err
				}
				data, err := ws.ReadFile(ctx, t.ID(), args[1])
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}
}

func newRmCmd(cfg *config.Config) *cobra.Command {
	var (
		file   string
		remote bool
	)

	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a trifle, or one of its files with --file",
		Long: `Delete a trifle from the local store. With --remote its latest markers are
also removed from the server so other clients stop downloading it. Version
records and file content stay on the server.`,
		Args: requireTrifle(0, 0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" && remote {
				return fmt.Errorf("--file and --remote cannot be combined")
			}
			return withWorkspace(cmd, cfg, func(ctx context.Context, ws *workspace.Workspace) error {
				t, err := resolveTrifle(ctx, ws, args[0])
				if err != nil {
					return err
				}
				if file != "" {
					_, err := ws.RemoveFile(ctx, t.ID(), file)
					return err
				}
				if remote {
					engine, client, err := newEngine(cfg, ws)
					if err != nil {
						return err
					}
					email, err := syncer.Authenticate(ctx, client, cfg.Remote.Email)
					if err != nil {
						return err
					}
					if err := engine.DeleteRemote(ctx, email, t.ID()); err != nil {
						return err
					}
				}
				return ws.Delete(ctx, t.ID())
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "remove only this file from the trifle")
	cmd.Flags().BoolVar(&remote, "remote", false, "also stop publishing the trifle on the server")
	return cmd
}
