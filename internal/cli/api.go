package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wemix/headwatch/internal/api"
)

// NewAPICommand creates the api command
func NewAPICommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Status API utilities",
	}

	cmd.AddCommand(newAPITokenCommand(opts))

	return cmd
}

func newAPITokenCommand(opts *rootOptions) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the status API",
		Long: `Sign an HS256 token with api.jwt_secret. Send it as
"Authorization: Bearer <token>" to reach /api/v1 endpoints.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			if cfg.API.JWTSecret == "" {
				return errors.New("api.jwt_secret is not set")
			}
			if ttl <= 0 {
				return errors.New("--ttl must be positive")
			}

			token, err := api.NewAuthMiddleware(cfg.API.JWTSecret, log).GenerateJWT(subject, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "operator", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	return cmd
}
