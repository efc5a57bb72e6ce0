/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/speakergroups/internal/auth"
)

var (
	tokenName string
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a signed API token for a dashboard",
	Long: `Issue a signed API token for a dashboard.

Viewer tokens can read players, groups and the event stream. Controller
tokens can also send commands and apply predefined groups.

Examples:
  speakergroups token issue --name hallway-tablet --role viewer
  speakergroups token issue --name kitchen-panel --role controller --ttl 2160h
`,
	Args: cobra.NoArgs,
	RunE: runTokenIssue,
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenName, "name", "", "Dashboard name stored in the token")
	tokenIssueCmd.Flags().StringVar(&tokenRole, "role", auth.RoleViewer, "Token role (viewer or controller)")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (defaults to SPEAKERGROUPS_JWT_TTL)")
	_ = tokenIssueCmd.MarkFlagRequired("name")

	tokenCmd.AddCommand(tokenIssueCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if !cfg.AuthEnabled() {
		return errors.New("SPEAKERGROUPS_JWT_SIGNING_KEY is not set")
	}
	if tokenRole != auth.RoleViewer && tokenRole != auth.RoleController {
		return fmt.Errorf("unknown role %q, want %s or %s", tokenRole, auth.RoleViewer, auth.RoleController)
	}

	ttl := tokenTTL
	if ttl <= 0 {
		ttl = cfg.JWTTTL
	}
	token, err := auth.Issue([]byte(cfg.JWTSigningKey), auth.Claims{
		UserID: tokenName,
		Roles:  []string{tokenRole},
	}, ttl)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
