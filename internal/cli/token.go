package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/gkobilansky/ga4-goat/internal/server"
	"github.com/gkobilansky/ga4-goat/internal/store"
	"github.com/spf13/cobra"
)

const apiTokenSetting = "api_token"

func init() {
	rootCmd.AddCommand(newTokenCmd())
}

func newTokenCmd() *cobra.Command {
	var rotate bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Show the API access token",
		Long: `Show the token that protects the /api endpoints.

The token is generated on first use and kept in the database. GOAT_API_TOKEN
overrides it. Use --rotate to replace the stored token; restart the server
afterwards.

Example:
  curl -H "Authorization: Bearer $(ga4-goat token)" localhost:8080/api/experiments`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()
				if rotate {
					token := server.GenerateToken()
					if err := s.SetSetting(ctx, apiTokenSetting, token); err != nil {
						return fmt.Errorf("failed to store token: %w", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), token)
					return nil
				}

				token, err := resolveToken(ctx, s, appConfig.APIToken)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&rotate, "rotate", false, "generate and store a new token")
	return cmd
}

// resolveToken prefers the configured token, then the stored one, and
// generates and stores a new token when neither exists.
func resolveToken(ctx context.Context, s *store.SQLiteStore, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	token, err := s.GetSetting(ctx, apiTokenSetting)
	if err == nil && token != "" {
		return token, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("failed to read token: %w", err)
	}

	token = server.GenerateToken()
	if err := s.SetSetting(ctx, apiTokenSetting, token); err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	return token, nil
}
