package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chatwire/chatwire/internal/rest"
	"github.com/chatwire/chatwire/internal/store"
)

var loginToken string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Validate a token and save it as the session for this profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		token := strings.TrimSpace(loginToken)
		if token == "" {
			return fmt.Errorf("--token is required")
		}

		ctx := cmd.Context()
		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		kinds, err := rest.ErrorKindsFromConfig(cfg.API.ErrorKinds)
		if err != nil {
			return err
		}
		client, err := rest.New(rest.ClientConfig{
			BaseURL:    cfg.API.BaseURL,
			Token:      token,
			ErrorKinds: kinds,
			Logger:     logger,
		})
		if err != nil {
			return err
		}

		self, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("token validation failed: %w", err)
		}

		if err := db.SaveSession(ctx, store.Session{
			Profile:  profile,
			Token:    token,
			UserID:   self.ID,
			Username: self.Username,
		}); err != nil {
			return err
		}

		fmt.Printf("Logged in as %s (profile %q)\n", self.Username, profile)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "access token to validate and save")
	rootCmd.AddCommand(loginCmd)
}
