package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/reportengine/internal/auth"
	"github.com/spf13/cobra"
)

func NewTokenCommand() *cobra.Command {
	var (
		secret string
		userID string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token",
		Long: `Mint a bearer token signed with the server's JWT secret.
The secret defaults to REPORTENGINE_SERVER_JWT_SECRET.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("REPORTENGINE_SERVER_JWT_SECRET")
			}
			switch auth.Role(role) {
			case auth.RoleAdmin, auth.RoleViewer:
			default:
				return fmt.Errorf("invalid role %q: must be admin or viewer", role)
			}

			a, err := auth.NewAuthenticator(secret)
			if err != nil {
				return err
			}
			token, err := a.GenerateToken(userID, auth.Role(role), ttl)
			if err != nil {
				return fmt.Errorf("failed to generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "JWT signing secret")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id the token acts for")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "Role: admin or viewer")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTTL, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
