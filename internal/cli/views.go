package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/webpanel/internal/permission"
	"github.com/me/webpanel/internal/router"
	"github.com/me/webpanel/pkg/model"
)

// levelChecker answers capability checks for a fixed numeric level.
type levelChecker struct {
	level     int
	anonymous bool
}

func (l levelChecker) Has(c permission.Capability) bool {
	return permission.HasCapability(&model.Permissions{NumericLevel: l.level}, c)
}

func (l levelChecker) IsAuthenticated() bool { return !l.anonymous }

func newViewsCmd() *cobra.Command {
	var (
		level     int
		anonymous bool
	)

	cmd := &cobra.Command{
		Use:   "views",
		Short: "Show which views a permission level can open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := levelChecker{level: level, anonymous: anonymous}
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Menu for level %d (%s):\n", level, permission.RoleDisplay(level))
			for _, e := range router.Menu(c, !anonymous, router.Dashboard) {
				fmt.Fprintf(out, "  %s %s\n", e.Icon, e.Label)
			}

			fmt.Fprintln(out, "Routing:")
			for _, v := range router.All() {
				requires := string(v.Requires)
				if requires == "" {
					requires = "-"
				}
				fmt.Fprintf(out, "  %-12s requires %-10s -> %s\n", v.Key, requires, router.Resolve(v.Key, c).Key)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&level, "level", 0, "Numeric permission level")
	cmd.Flags().BoolVar(&anonymous, "anonymous", false, "Render the menu for a logged-out user")
	return cmd
}
