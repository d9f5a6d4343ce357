package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/webpanel/internal/panel"
	"github.com/me/webpanel/internal/permission"
	"github.com/me/webpanel/internal/router"
)

func newWhoamiCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the session, role and badges the backend reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			st := panel.NewState("cli", client, nil, panel.DefaultConfig(), logger)
			defer st.Close()
			st.SetCredentials(credentials())
			st.Bootstrap(ctx)
			if err := st.WaitBootstrap(ctx); err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}

			out := cmd.OutOrStdout()
			sess := st.Session()
			if !sess.Authenticated {
				fmt.Fprintln(out, "Not logged in")
				fmt.Fprintf(out, "  Login at: %s\n", client.LoginURL())
			} else {
				fmt.Fprintf(out, "User:   %s\n", sess.Username())
				if sess.User != nil && sess.User.ID != "" {
					fmt.Fprintf(out, "  ID:   %s\n", sess.User.ID)
				}
			}

			fmt.Fprintf(out, "Role:   %s\n", st.RoleDisplay())
			if p := st.Permissions(); p != nil {
				fmt.Fprintf(out, "Level:  %d\n", p.NumericLevel)
			} else {
				fmt.Fprintln(out, "Level:  unavailable")
			}

			var caps []string
			for _, c := range permission.All() {
				if st.Has(c) {
					caps = append(caps, string(c))
				}
			}
			if len(caps) > 0 {
				fmt.Fprintf(out, "Can:    %s\n", strings.Join(caps, ", "))
			}

			if prof := st.Profile(); prof != nil && !prof.CreatedAt.IsZero() {
				fmt.Fprintf(out, "Joined: %s (%s)\n", prof.CreatedAt.Format("2006-01-02"), humanize.Time(prof.CreatedAt))
			}

			printBadges(cmd, st.Badges())

			if sess.Authenticated {
				fmt.Fprintln(out, "Views:")
				for _, e := range router.Menu(st, true, panel.DefaultView) {
					fmt.Fprintf(out, "  %s %s\n", e.Icon, e.Label)
				}
			}

			if errs := st.BootstrapErrors(); len(errs) > 0 {
				endpoints := make([]string, 0, len(errs))
				for ep := range errs {
					endpoints = append(endpoints, ep)
				}
				sort.Strings(endpoints)
				fmt.Fprintln(out, "Errors:")
				for _, ep := range endpoints {
					fmt.Fprintf(out, "  %s: %s\n", ep, errs[ep])
				}
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for the backend")
	return cmd
}
