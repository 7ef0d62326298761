// Package config provides centralized configuration for chatwire with three
// layers: built-in defaults, a YAML config file (--config or the user config
// directory), and CHATWIRE_* environment variables.
package config

import "time"

// Config is the complete application configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// APIConfig configures the REST dispatcher.
type APIConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	Token            string        `mapstructure:"token"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	RatelimitRetries int           `mapstructure:"ratelimit_retries"`
	GlobalPerSecond  float64       `mapstructure:"global_per_second"`
	GlobalBurst      int           `mapstructure:"global_burst"`

	// ErrorKinds extends the built-in error-code table. Keys are numeric
	// service error codes as strings, values are kind names understood by
	// rest.KindByName (e.g. "cannot_message_user").
	ErrorKinds map[string]string `mapstructure:"error_kinds"`
}

// GatewayConfig configures the websocket event stream.
type GatewayConfig struct {
	URL              string        `mapstructure:"url"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
}

// StoreConfig contains database configuration for libsql/Turso.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}
