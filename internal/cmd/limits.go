package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/iaeternum/datagate/internal/core/store"
)

var limitsPrefix string

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Inspect stored rate limit state",
}

var limitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rate limit windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		if err := db.Migrate(cmd.Context()); err != nil {
			return err
		}

		windows, err := db.ListWindows(cmd.Context(), limitsPrefix)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Key", "Bucket", "Count", "Created", "Expires"})
		for _, w := range windows {
			expires := w.ExpiresAt.Format(time.RFC3339)
			if w.ExpiresAt.Before(now) {
				expires += " (expired)"
			}
			t.AppendRow(table.Row{
				w.Key,
				w.WindowBucket,
				w.Count,
				w.CreatedAt.Format(time.RFC3339),
				expires,
			})
		}
		t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d windows", len(windows))})
		fmt.Println(t.Render())

		return nil
	},
}

var limitsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired rate limit windows now",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		if err := db.Migrate(cmd.Context()); err != nil {
			return err
		}

		purged, err := db.PurgeExpiredWindows(cmd.Context(), time.Now().UTC())
		if err != nil {
			return err
		}

		fmt.Printf("purged %d expired windows\n", purged)
		return nil
	},
}

func init() {
	limitsListCmd.Flags().StringVar(&limitsPrefix, "prefix", "", "only list keys with this prefix")
	limitsCmd.AddCommand(limitsListCmd)
	limitsCmd.AddCommand(limitsSweepCmd)
	rootCmd.AddCommand(limitsCmd)
}
