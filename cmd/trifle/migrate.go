package main

import (
	"database/sql"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"trifle/internal/config"
	"trifle/internal/keys"
	"trifle/internal/store"
	"trifle/internal/syncer"

	_ "modernc.org/sqlite"
)

func newMigrateCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	var (
		dryRun  bool
		inspect bool
		remote  bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run or inspect local schema migrations",
		Long: `Run or inspect local schema migrations. With --remote, list the legacy
server keys the next sync would move into the current namespace layout
without changing anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote {
				return showRemoteMigration(cmd, cfg, out)
			}

			db, err := openRawDB(cfg.Local.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if inspect || dryRun {
				plan, err := store.MigrationPlan(db)
				if err != nil {
					return fmt.Errorf("inspect migrations: %w", err)
				}

				if out.structured() {
					return writeStructured(out, plan)
				}

				fmt.Printf("Current version: %d\n", plan.CurrentVersion)
				fmt.Printf("Available version: %d\n", plan.AvailableVersion)
				if len(plan.Pending) == 0 {
					fmt.Println("No pending migrations.")
				} else {
					fmt.Printf("Pending migrations: %d\n", len(plan.Pending))
					for _, m := range plan.Pending {
						fmt.Printf("  %d: %s\n", m.Version, m.Description)
					}
				}
				return nil
			}

			// Opening the store applies pending migrations.
			st, err := store.Open(cfg.Local.DBPath)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer st.Close()

			if out.structured() {
				plan, err := store.MigrationPlan(db)
				if err != nil {
					return err
				}
				return writeStructured(out, plan)
			}

			fmt.Println("Migrations applied successfully.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	cmd.Flags().BoolVar(&inspect, "inspect", false, "show migration status")
	cmd.Flags().BoolVar(&remote, "remote", false, "show pending legacy key migration on the server")

	return cmd
}

func showRemoteMigration(cmd *cobra.Command, cfg *config.Config, out *outputFlags) error {
	client, err := newRemoteClient(cfg)
	if err != nil {
		return err
	}
	email, err := syncer.Authenticate(cmd.Context(), client, cfg.Remote.Email)
	if err != nil {
		return err
	}
	owner, err := keys.ParseEmail(email)
	if err != nil {
		return fmt.Errorf("%w: %v", syncer.ErrNotLoggedIn, err)
	}
	steps, err := syncer.PlanMigration(cmd.Context(), client, owner)
	if err != nil {
		return err
	}
	if out.structured() {
		return writeStructured(out, steps)
	}
	if len(steps) == 0 {
		return writePlain("No legacy keys for %s.\n", owner.Email)
	}
	if err := writePlain("Legacy keys to migrate: %d\n", len(steps)); err != nil {
		return err
	}
	for _, s := range steps {
		if err := writePlain("  %s -> %s\n", s.From, s.To); err != nil {
			return err
		}
	}
	return nil
}

func openRawDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return sql.Open("sqlite", u.String())
}
