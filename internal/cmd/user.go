package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chatwire/chatwire/internal/entity"
)

var userAvatarOut string

var userCmd = &cobra.Command{
	Use:   "user <user-id>",
	Short: "Show a user, optionally saving their avatar",
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

		user, err := client.User(ctx, args[0])
		if err != nil {
			return err
		}
		persistSnapshots(ctx, db, client)

		fmt.Printf("%s#%s (id %s)\n", user.Username, user.Discriminator, user.ID)
		if user.Bot {
			fmt.Println("  bot account")
		}

		if out := strings.TrimSpace(userAvatarOut); out != "" {
			// Avatars are served from the CDN next to the API host.
			cdn := strings.TrimSuffix(cfg.API.BaseURL, "/api/v6")
			img, err := entity.FetchAvatar(ctx, nil, cdn, user, 128)
			if err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close() // nolint:errcheck // best-effort cleanup
			if err := entity.EncodePNG(f, img); err != nil {
				return err
			}
			fmt.Printf("Avatar written to %s\n", out)
		}
		return nil
	},
}

func init() {
	userCmd.Flags().StringVar(&userAvatarOut, "avatar", "", "write the user's avatar as PNG to this path")
	rootCmd.AddCommand(userCmd)
}
