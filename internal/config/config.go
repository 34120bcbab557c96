package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// APIKeyEnvVar names the environment variable carrying the upstream API
// key. The key is never read from the config file and never logged.
const APIKeyEnvVar = "OPENWEATHER_API_KEY"

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server   ServerConfig   `toml:"server"`   // HTTP server settings
	Upstream UpstreamConfig `toml:"upstream"` // Weather provider settings
	Storage  StorageConfig  `toml:"storage"`  // Data persistence settings
	Logging  LoggingConfig  `toml:"logging"`  // Application logging settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Host             string `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	Port             int    `toml:"port"`                  // HTTP port for the server
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request on a kept-alive connection
}

// UpstreamConfig contains weather provider configuration settings
type UpstreamConfig struct {
	BaseURL            string `toml:"base_url"`                // Provider API base URL
	RequestTimeoutSecs int    `toml:"request_timeout_seconds"` // Timeout for each upstream request in seconds
	Units              string `toml:"units"`                   // Measurement units: "metric", "imperial" or "standard"
	BreakerEnabled     bool   `toml:"breaker_enabled"`         // Shed upstream load through a circuit breaker

	// APIKey is resolved from the environment at load time.
	APIKey string `toml:"-"`
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"` // Path to the SQLite database file
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeoutSecs:  15,
			WriteTimeoutSecs: 15,
			IdleTimeoutSecs:  60,
		},
		Upstream: UpstreamConfig{
			BaseURL:            "https://api.openweathermap.org",
			RequestTimeoutSecs: 10,
			Units:              "metric",
			BreakerEnabled:     true,
		},
		Storage: StorageConfig{
			SQLitePath: "data/weather.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the TOML file at the given path over the defaults and
// resolves the upstream API key from the environment.
func Load(path string) (*Config, error) {
	config := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	if err := config.loadAPIKey(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadWithFallback loads configuration from the preferred path if given,
// then from the standard locations. When no config file exists anywhere
// the defaults are used; the API key is required either way.
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{}
	if preferredPath != "" {
		searchPaths = append(searchPaths, preferredPath)
	}
	searchPaths = append(searchPaths, "configs/config.toml", "config.toml")

	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if seen[path] {
			continue
		}
		seen[path] = true

		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	config := Default()
	if err := config.loadAPIKey(); err != nil {
		return nil, err
	}
	return config, nil
}

// loadAPIKey resolves the upstream API key. A .env file in the working
// directory is honored when present; an already-set process environment
// variable wins over it.
func (c *Config) loadAPIKey() error {
	_ = godotenv.Load()

	key := os.Getenv(APIKeyEnvVar)
	if key == "" {
		return fmt.Errorf("%s is not set: an upstream API key is required", APIKeyEnvVar)
	}
	c.Upstream.APIKey = key
	return nil
}

// Validate checks that the configuration is usable and returns an error
// describing the first problem found.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeoutSecs < 0 || c.Server.WriteTimeoutSecs < 0 || c.Server.IdleTimeoutSecs < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}

	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base_url cannot be empty")
	}
	if c.Upstream.RequestTimeoutSecs <= 0 {
		return fmt.Errorf("upstream request_timeout_seconds must be greater than 0: %d", c.Upstream.RequestTimeoutSecs)
	}
	switch c.Upstream.Units {
	case "metric", "imperial", "standard":
	default:
		return fmt.Errorf("invalid upstream units: %s (must be metric, imperial or standard)", c.Upstream.Units)
	}
	if c.Upstream.APIKey == "" {
		return fmt.Errorf("upstream API key is not set (set %s)", APIKeyEnvVar)
	}

	if c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage sqlite_path cannot be empty")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logging.Format)
	}

	return nil
}
