package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/alecgard/toolshelf/internal/auth"
	"github.com/alecgard/toolshelf/internal/config"
)

var (
	tokenUserID string
	tokenEmail  string
	tokenTTL    time.Duration
)

// tokenCmd mints a JWT the way the identity provider would, for local
// development against a server configured with the same secret.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a development JWT",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user-id", "", "subject user id (default: random UUID)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}

	id := auth.Identity{UserID: tokenUserID, Email: tokenEmail}
	if id.UserID == "" {
		id.UserID = uuid.NewString()
	} else if _, err := uuid.Parse(id.UserID); err != nil {
		return fmt.Errorf("--user-id must be a UUID: %w", err)
	}

	token, err := auth.IssueToken(id, cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
