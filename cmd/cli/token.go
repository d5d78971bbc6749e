package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"crmflow/internal/middleware"
)

var (
	flagUserID uint
	flagRoles  string
	flagTTL    time.Duration
)

// tokenCmd issues an HS256 JWT for API access (admin / testing usage).
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a JWT (HS256) for API authentication",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _ := loadConfig()
		if flagUserID == 0 {
			return fmt.Errorf("--user-id is required")
		}
		var roles []string
		for _, r := range strings.Split(flagRoles, ",") {
			if s := strings.TrimSpace(r); s != "" {
				roles = append(roles, s)
			}
		}
		tok, err := middleware.IssueToken(cfg, flagUserID, roles, flagTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().UintVar(&flagUserID, "user-id", 1, "numeric user id (tenant) to embed in token")
	tokenCmd.Flags().StringVar(&flagRoles, "roles", "owner", "comma-separated roles (owner, admin, staff, viewer)")
	tokenCmd.Flags().DurationVar(&flagTTL, "ttl", 0, "token lifetime (default jwt.expires_in)")
}
