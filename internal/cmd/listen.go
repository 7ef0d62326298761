package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatwire/chatwire/internal/entity"
	"github.com/chatwire/chatwire/internal/gateway"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Connect to the gateway and print incoming messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		client, err := newClient(ctx, db)
		if err != nil {
			return err
		}

		gatewayURL := cfg.Gateway.URL
		if gatewayURL == "" {
			gatewayURL, err = client.GatewayURL(ctx)
			if err != nil {
				return err
			}
		}

		session, err := db.GetSession(ctx, profile)
		if err != nil {
			return err
		}
		token := cfg.API.Token
		if token == "" && session != nil {
			token = session.Token
		}

		conn, err := gateway.NewConnection(gateway.Config{
			URL:              gatewayURL,
			Token:            token,
			Logger:           logger,
			ReconnectBackoff: cfg.Gateway.ReconnectBackoff,
		})
		if err != nil {
			return err
		}

		conn.On(gateway.EventMessageCreate, func(eventType string, payload any) {
			msg, ok := payload.(entity.Message)
			if !ok {
				return
			}
			fmt.Printf("[%s] %s: %s\n", msg.ChannelID, msg.Author.Username, msg.Content)
		})

		err = conn.Run(ctx)
		persistSnapshots(cmd.Context(), db, client)
		if ctx.Err() != nil {
			return nil // interrupted by the user
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)
}
