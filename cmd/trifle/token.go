package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"trifle/internal/auth"
	"trifle/internal/config"
	"trifle/internal/keys"
)

func newTokenCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint and hash bearer tokens for the server",
	}
	cmd.AddCommand(newTokenIssueCmd(cfg), newTokenHashCmd(), newTokenGenerateCmd())
	return cmd
}

func newTokenIssueCmd(cfg *config.Config) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "issue <email>",
		Short: "Issue a signed JWT for email using server.jwt_secret",
		Args:  requireEmail,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := keys.ParseEmail(args[0])
			if err != nil {
				return err
			}
			jwt := auth.NewJWTAuthenticator(cfg.Server.JWTSecret)
			if jwt == nil {
				return fmt.Errorf("server.jwt_secret (or TRIFLE_JWT_SECRET) is required")
			}
			token, err := jwt.Issue(owner.Email, ttl)
			if err != nil {
				return err
			}
			return writePlain("%s\n", token)
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default 30 days)")
	return cmd
}

func newTokenHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash [token]",
		Short: "Print the bcrypt hash of a token for server.tokens (stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				token = string(data)
			}
			hash, err := auth.HashToken(strings.TrimSpace(token))
			if err != nil {
				return err
			}
			return writePlain("%s\n", hash)
		},
	}
}

func newTokenGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate a random static token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.GenerateToken()
			if err != nil {
				return err
			}
			return writePlain("%s\n", token)
		},
	}
}
