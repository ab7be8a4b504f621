package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"trifle/internal/auth"
	"trifle/internal/config"
	"trifle/internal/kv"
	"trifle/internal/server"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	var (
		listen  string
		backend string
		dataDir string
	)

	cmd := &cobra.Command{
		Use:   "srv",
		Short: "Run the trifle sync server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			sc := cfg.Server
			if listen != "" {
				sc.Listen = listen
			}
			if backend != "" {
				sc.Backend = backend
			}
			if dataDir != "" {
				sc.DataDir = dataDir
			}
			if sc.DataDir == "" {
				return fmt.Errorf("server.data_dir is required")
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(sc.Listen)
			if err != nil {
				return err
			}

			authn := buildAuthenticator(sc, logger)

			if err := os.MkdirAll(sc.DataDir, 0o700); err != nil {
				return err
			}
			logger.Info("opening namespace", "backend", sc.Backend, "path", sc.DataDir)
			ns, err := kv.Open(sc.Backend, sc.DataDir)
			if err != nil {
				return err
			}
			defer ns.Close()

			srv := server.New(ns, authn, server.Config{
				Addr:             addr,
				Backend:          sc.Backend,
				MaxValueBytes:    sc.MaxValueBytes,
				VerifyFileHashes: sc.VerifyFileHashes,
				RateLimit:        sc.RateLimit,
				RateBurst:        sc.RateBurst,
			}, logger)
			return srv.ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (host:port or URL)")
	cmd.Flags().StringVar(&backend, "backend", "", "namespace backend: fs or bolt")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory holding the namespace")
	return cmd
}

func buildAuthenticator(sc config.ServerConfig, logger *slog.Logger) auth.Authenticator {
	var chain auth.Chain
	if jwt := auth.NewJWTAuthenticator(sc.JWTSecret); jwt != nil {
		chain = append(chain, jwt)
	}
	if table := auth.NewTokenTable(sc.Tokens); table.Len() > 0 {
		chain = append(chain, table)
	}
	if len(chain) == 0 {
		logger.Warn("no jwt secret or tokens configured; only file content is reachable")
	}
	return chain
}
