package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"trifle/internal/config"
)

// outputFlags carries the persistent output selectors.
type outputFlags struct {
	json bool
	yaml bool
}

func (o *outputFlags) structured() bool { return o.json || o.yaml }

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		out      outputFlags
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           "trifle",
		Short:         "Trifle keeps small multi-file projects in a local store and syncs them to a server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&out.json, "json", false, "output JSON")
	cmd.PersistentFlags().BoolVar(&out.yaml, "yaml", false, "output YAML")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newNewCmd(cfg, &out),
		newListCmd(cfg, &out),
		newShowCmd(cfg, &out),
		newPutCmd(cfg, &out),
		newCatCmd(cfg),
		newRmCmd(cfg),
		newProfileCmd(cfg, &out),
		newSyncCmd(cfg, &out),
		newStatusCmd(cfg, &out),
		newTokenCmd(cfg),
		newConfigCmd(cfg, &out),
		newMigrateCmd(cfg, &out),
	)

	return cmd
}
