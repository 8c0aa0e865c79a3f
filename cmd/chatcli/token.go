package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Vovarama1992/market-messaging/internal/messaging"
	"github.com/Vovarama1992/market-messaging/internal/platform/envutil"
)

// newTokenCmd mints development tokens signed with the server's JWT_SECRET.
func newTokenCmd() *cobra.Command {
	var (
		sub  string
		role string
		name string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			secret := envutil.String("JWT_SECRET", "")
			if secret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			if sub == "" {
				return errors.New("--sub is required")
			}
			tok, err := messaging.SignToken(secret, messaging.Viewer{ID: sub, Role: messaging.Role(role), Name: name}, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&sub, "sub", "", "user id")
	cmd.Flags().StringVar(&role, "role", string(messaging.RoleCustomer), "customer or provider")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
