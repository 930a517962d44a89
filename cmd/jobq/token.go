package main

import (
	"fmt"
	"time"

	"github.com/UniQw/jobq/internal/api"
	"github.com/spf13/cobra"
)

func tokenCmd(a *app) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Server.AuthSecret == "" {
				return fmt.Errorf("server.auth_secret is not set")
			}
			tok, err := api.NewAuth(a.cfg.Server.AuthSecret).GenerateToken(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
