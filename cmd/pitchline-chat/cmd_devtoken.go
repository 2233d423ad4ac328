package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/services"
)

var devtokenCmd = &cobra.Command{
	Use:   "devtoken",
	Short: "Mint a signed access token for local development",
	Long: `Signs an HS256 access token with the backend's JWT_SECRET.

Only for local development: production tokens come from the identity provider.

Example:
  export PITCHLINE_TOKEN=$(pitchline-chat devtoken --secret dev-secret --sub u1 --name Ada --role founder)`,
	Args: cobra.NoArgs,
	RunE: runDevtoken,
}

func init() {
	devtokenCmd.Flags().String("secret", os.Getenv("JWT_SECRET"), "HMAC secret (defaults to JWT_SECRET)")
	devtokenCmd.Flags().String("issuer", os.Getenv("JWT_ISSUER"), "Token issuer (defaults to JWT_ISSUER)")
	devtokenCmd.Flags().String("sub", "", "Profile id (required)")
	devtokenCmd.Flags().String("name", "", "Display name")
	devtokenCmd.Flags().String("role", string(models.RoleFounder), "founder, investor or expert")
	devtokenCmd.Flags().String("email", "", "E-mail for offline notifications")
	devtokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	_ = devtokenCmd.MarkFlagRequired("sub")
}

func runDevtoken(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	secret, _ := flags.GetString("secret")
	issuer, _ := flags.GetString("issuer")
	sub, _ := flags.GetString("sub")
	name, _ := flags.GetString("name")
	role, _ := flags.GetString("role")
	email, _ := flags.GetString("email")
	ttl, _ := flags.GetDuration("ttl")

	if secret == "" {
		return errors.New("--secret or JWT_SECRET is required")
	}

	token, err := services.NewTokenService(secret, issuer).Issue(sub, name, models.Role(role), email, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
