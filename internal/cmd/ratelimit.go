package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	rateLimitListPrefix  string
	rateLimitListJSON    bool
	rateLimitResetPrefix string
)

var rateLimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Inspect observed rate-limit bucket state",
}

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bucket snapshots observed by previous commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		entries, err := db.ListSnapshots(ctx, rateLimitListPrefix)
		if err != nil {
			return err
		}

		if rateLimitListJSON {
			payload, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(payload))
			return nil
		}

		if len(entries) == 0 {
			fmt.Println("(no stored bucket snapshots)")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Bucket", "Remaining", "Reset At", "Observed At"})
		for _, entry := range entries {
			t.AppendRow(table.Row{
				entry.Snapshot.Key,
				entry.Snapshot.Remaining,
				entry.Snapshot.ResetAt.Format("2006-01-02 15:04:05"),
				entry.UpdatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		t.Render()
		return nil
	},
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard stored bucket snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		removed, err := db.ResetSnapshots(ctx, rateLimitResetPrefix)
		if err != nil {
			return err
		}

		scope := "all buckets"
		if prefix := strings.TrimSpace(rateLimitResetPrefix); prefix != "" {
			scope = fmt.Sprintf("buckets matching %q", prefix)
		}
		fmt.Printf("Removed %d snapshots (%s)\n", removed, scope)
		return nil
	},
}

func init() {
	rateLimitListCmd.Flags().StringVar(&rateLimitListPrefix, "prefix", "", "only list buckets whose key starts with this prefix")
	rateLimitListCmd.Flags().BoolVar(&rateLimitListJSON, "json", false, "emit JSON instead of a table")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetPrefix, "prefix", "", "only reset buckets whose key starts with this prefix")

	rateLimitCmd.AddCommand(rateLimitListCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}
