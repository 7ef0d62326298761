package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "CHATWIRE"

// Load reads configuration from defaults, an optional config file and the
// environment. path may be empty, in which case the user config directory is
// searched and a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := userConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, nil
}

// DefaultStorePath returns the default location of the local database.
func DefaultStorePath() string {
	dir, err := userConfigDir()
	if err != nil {
		return "chatwire.db"
	}
	return filepath.Join(dir, "chatwire.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://chat.example.com/api/v6")
	// Empty defaults register the keys so environment-only values reach
	// Unmarshal.
	v.SetDefault("api.token", "")
	v.SetDefault("gateway.url", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")
	v.SetDefault("api.request_timeout", 2*time.Minute)
	v.SetDefault("api.ratelimit_retries", 5)
	v.SetDefault("api.global_per_second", 50.0)
	v.SetDefault("api.global_burst", 50)
	v.SetDefault("gateway.reconnect_backoff", time.Second)
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

func userConfigDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "chatwire"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "chatwire"), nil
}
