package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/webpanel/internal/permission"
	"github.com/me/webpanel/pkg/model"
)

func newBadgesCmd() *cobra.Command {
	var (
		level int
		since string
		asOf  string
	)

	cmd := &cobra.Command{
		Use:   "badges",
		Short: "Compute the role and badges for a permission level offline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if asOf != "" {
				t, err := time.Parse(time.DateOnly, asOf)
				if err != nil {
					return fmt.Errorf("invalid --now: %w", err)
				}
				now = t
			}

			var profile *model.Profile
			if since != "" {
				created, err := time.Parse(time.DateOnly, since)
				if err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
				profile = &model.Profile{NumericLevel: level, CreatedAt: created}
			}

			perms := &model.Permissions{NumericLevel: level}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Role:   %s\n", permission.RoleDisplay(level))
			if profile != nil {
				fmt.Fprintf(out, "Tenure: %d months\n", permission.TenureMonths(profile.CreatedAt, now))
			}
			printBadges(cmd, permission.ComputeBadges(perms, profile, now))
			return nil
		},
	}

	cmd.Flags().IntVar(&level, "level", 0, "Numeric permission level")
	cmd.Flags().StringVar(&since, "since", "", "Account creation date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&asOf, "now", "", "Evaluate tenure as of this date (YYYY-MM-DD)")
	return cmd
}

func printBadges(cmd *cobra.Command, badges []model.Badge) {
	out := cmd.OutOrStdout()
	if len(badges) == 0 {
		fmt.Fprintln(out, "Badges: none")
		return
	}
	fmt.Fprintln(out, "Badges:")
	for _, b := range badges {
		fmt.Fprintf(out, "  %s %-18s %s\n", b.Icon, b.Name, b.Color)
	}
}
