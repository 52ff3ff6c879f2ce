package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/radio-control/commandd/internal/auth"
	"github.com/radio-control/commandd/internal/config"
)

func tokenCmd() *cobra.Command {
	var (
		secret  string
		subject string
		ttl     time.Duration
		scopes  []string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin bearer token",
		Long: `Issue an HS256 bearer token for the admin surface.

The secret defaults to ` + config.EnvPrefix + `ADMIN_AUTH_SECRET.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv(config.EnvPrefix + "ADMIN_AUTH_SECRET")
			}
			if secret == "" {
				return errors.New("no secret: pass --secret or set " + config.EnvPrefix + "ADMIN_AUTH_SECRET")
			}
			token, err := auth.IssueToken(secret, subject, scopes, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "HS256 signing secret")
	cmd.Flags().StringVar(&subject, "subject", "operator", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeAdmin}, "Granted scopes")

	return cmd
}
