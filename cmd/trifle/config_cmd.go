package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"trifle/internal/config"
)

func newConfigCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration",
	}

	cmd.AddCommand(newConfigGetCmd(cfg, out))
	cmd.AddCommand(newConfigSetCmd())
	return cmd
}

// configEntry is one effective setting. Secrets are masked by Config.Get.
type configEntry struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

func configEntries(cfg *config.Config, keys []string) ([]configEntry, error) {
	entries := make([]configEntry, 0, len(keys))
	for _, key := range keys {
		if !config.IsAllowedKey(key) {
			return nil, fmt.Errorf("unknown key: %s (allowed: %v)", key, config.AllowedKeys())
		}
		value, err := cfg.Get(key)
		if err != nil {
			return nil, err
		}
		entries = append(entries, configEntry{Key: key, Value: value})
	}
	return entries, nil
}

func newConfigGetCmd(cfg *config.Config, out *outputFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Get one config value, or every effective value",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := config.AllowedKeys()
			if len(args) == 1 {
				keys = args
			}
			entries, err := configEntries(cfg, keys)
			if err != nil {
				return err
			}
			if out.structured() {
				return writeStructured(out, entries)
			}
			if len(args) == 1 {
				return writePlain("%s\n", entries[0].Value)
			}
			for _, e := range entries {
				if err := writePlain("%s = %s\n", e.Key, e.Value); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Long: `Set a config value in ./.trifle.toml, or in ~/.trifle.toml with --global.
The project file is only read when TRIFLE_TRUST_PROJECT_CONFIG=true.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configSetPath(global)
			if err != nil {
				return err
			}
			if err := config.SetKey(path, args[0], args[1]); err != nil {
				return err
			}
			if !global && !config.ProjectConfigTrusted() {
				slog.Warn("project config is ignored until TRIFLE_TRUST_PROJECT_CONFIG=true", "path", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "write to global config (~/.trifle.toml)")
	return cmd
}

func configSetPath(global bool) (string, error) {
	if global {
		return config.GlobalPath()
	}
	return config.ProjectPath()
}
