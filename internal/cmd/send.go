package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatwire/chatwire/internal/rest"
)

var (
	sendTimeout time.Duration
	sendRetries int
)

var sendCmd = &cobra.Command{
	Use:   "send <channel-id> <message>",
	Short: "Send a message to a channel",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		channelID := strings.TrimSpace(args[0])
		content := strings.Join(args[1:], " ")

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

		req := rest.NewRequest("POST", rest.EndpointMessage, channelID).
			WithBody(map[string]string{"content": content}).
			WithRetries(sendRetries).
			WithTimeout(sendTimeout)
		if err := client.Submit(req); err != nil {
			return err
		}

		if _, err := req.Wait(ctx); err != nil {
			return err
		}

		persistSnapshots(ctx, db, client)
		fmt.Printf("Message sent to channel %s\n", channelID)
		return nil
	},
}

func init() {
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 2*time.Minute, "overall deadline covering all retries")
	sendCmd.Flags().IntVar(&sendRetries, "retries", rest.DefaultRetries, "ratelimit retry budget")
	rootCmd.AddCommand(sendCmd)
}
