package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Inspect and manage channels",
}

var channelListCmd = &cobra.Command{
	Use:   "list <server-id>",
	Short: "List the channels of a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		client, err := newClient(ctx, db)
		if err != nil {
			return err
		}

		channels, err := client.ServerChannels(ctx, args[0])
		if err != nil {
			return err
		}
		persistSnapshots(ctx, db, client)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Type", "Name", "Position"})
		for _, ch := range channels {
			t.AppendRow(table.Row{ch.ID, ch.Type, ch.Name, ch.Position})
		}
		t.Render()
		return nil
	},
}

var channelDeleteCmd = &cobra.Command{
	Use:   "delete <channel-id>",
	Short: "Delete a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		client, err := newClient(ctx, db)
		if err != nil {
			return err
		}

		deleted, err := client.DeleteChannel(ctx, args[0])
		if err != nil {
			return err
		}
		persistSnapshots(ctx, db, client)

		fmt.Printf("Deleted channel %s (%s)\n", deleted.ID, deleted.Name)
		return nil
	},
}

func init() {
	channelCmd.AddCommand(channelListCmd)
	channelCmd.AddCommand(channelDeleteCmd)
	rootCmd.AddCommand(channelCmd)
}
