package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/webpanel/internal/fetch"
)

func newGetCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Fetch a backend endpoint and print its JSON",
		Long:  "Fetch a path under the backend's /api prefix, e.g. `webpanelctl get /economy/config/123`.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			conn := client.As(credentials())
			h := fetch.New(conn, timeout, logger)
			h.Use(ctx, args[0])
			snap, err := h.Wait(ctx)
			if err != nil {
				return fmt.Errorf("get %s: %w", args[0], err)
			}
			if snap.Error != "" {
				return fmt.Errorf("get %s: %s", args[0], snap.Error)
			}

			var buf bytes.Buffer
			if err := json.Indent(&buf, snap.Data, "", "  "); err != nil {
				return fmt.Errorf("format response: %w", err)
			}
			buf.WriteByte('\n')
			_, err = buf.WriteTo(cmd.OutOrStdout())
			return err
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	return cmd
}
