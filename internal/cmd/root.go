// Package cmd implements the chatwire command line interface.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/chatwire/chatwire/internal/config"
	"github.com/chatwire/chatwire/internal/observability"
	"github.com/chatwire/chatwire/internal/rest"
	"github.com/chatwire/chatwire/internal/store"
)

var (
	cfgFile string
	verbose bool
	profile string

	cfg    *config.Config
	logger *zap.Logger

	// Version info set by the main package via ldflags.
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by the main package to set version information.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "chatwire",
	Short: "Rate-limit-aware client for the chat service API",
	Long: `chatwire is a client runtime for the chat service REST API and gateway.

Requests are grouped into rate-limit buckets and paced so the service's
quotas are never violated; quota rejections are retried transparently.

Use the subcommands to perform specific operations.`,
	SilenceUsage: true,
}

// Execute runs the root command. It is called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/chatwire/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "default", "session profile to use")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		ExitWithError("Failed to load configuration", err)
	}
	cfg = loaded

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err = observability.NewLogger(level, cfg.Logging.Format)
	if err != nil {
		ExitWithError("Failed to initialize logger", err)
	}
}

// openStore opens the local database configured for this invocation.
func openStore(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, cfg.Store)
}

// newClient builds a REST client from configuration and the saved session.
// The config token, when set, wins over the stored one.
func newClient(ctx context.Context, db *store.Store) (*rest.Client, error) {
	token := cfg.API.Token
	if token == "" && db != nil {
		session, err := db.GetSession(ctx, profile)
		if err != nil {
			return nil, err
		}
		if session != nil {
			token = session.Token
		}
	}

	kinds, err := rest.ErrorKindsFromConfig(cfg.API.ErrorKinds)
	if err != nil {
		return nil, err
	}

	return rest.New(rest.ClientConfig{
		BaseURL:         cfg.API.BaseURL,
		Token:           token,
		GlobalPerSecond: cfg.API.GlobalPerSecond,
		GlobalBurst:     cfg.API.GlobalBurst,
		RequestTimeout:  cfg.API.RequestTimeout,
		Retries:         cfg.API.RatelimitRetries,
		ErrorKinds:      kinds,
		Logger:          logger,
	})
}

// persistSnapshots writes the dispatcher's observed bucket state to the local
// store so later invocations can display it. Best effort: failures are logged
// and do not affect the command result.
func persistSnapshots(ctx context.Context, db *store.Store, client *rest.Client) {
	if db == nil || client == nil {
		return
	}
	snapshots := client.Ratelimiter().Snapshot()
	if len(snapshots) == 0 {
		return
	}
	if err := db.SaveSnapshots(ctx, snapshots); err != nil {
		logger.Warn("failed to persist bucket snapshots", zap.Error(err))
	}
}
