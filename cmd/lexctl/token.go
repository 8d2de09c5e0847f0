package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/lexbridge-backend/internal/domain/user"
	"github.com/yungbote/lexbridge-backend/internal/http/middleware"
)

var (
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an operator bearer token for the /admin routes",
	Long:  `Signs an HS256 token with OPS_JWT_SECRET. The service accepts admin and service roles.`,
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "lexctl", "token subject")
	tokenCmd.Flags().StringVar(&tokenRole, "role", user.RoleAdmin, "operator role")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	secret := os.Getenv("OPS_JWT_SECRET")
	if secret == "" {
		return errors.New("OPS_JWT_SECRET is not set")
	}
	tok, err := middleware.IssueToken(secret, tokenSubject, tokenRole, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
