package portalauth

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables read by [LoadConfig]. They win over the file.
const (
	EnvAPIBaseURL     = "PORTAL_API_BASE_URL"
	EnvSessionBackend = "PORTAL_SESSION_BACKEND"
	EnvRedisAddr      = "PORTAL_REDIS_ADDR"
	EnvSQLitePath     = "PORTAL_SQLITE_PATH"
	EnvLogLevel       = "PORTAL_LOG_LEVEL"
)

// LoadConfig reads a YAML configuration file over the defaults, applies
// environment overrides and validates the result. An empty path skips the
// file.
func LoadConfig(path string) (Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// API
	if v := os.Getenv(EnvAPIBaseURL); v != "" {
		cfg.API.BaseURL = v
	}

	// Session
	if v := os.Getenv(EnvSessionBackend); v != "" {
		cfg.Session.Backend = strings.ToLower(v)
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Session.RedisAddr = v
	}
	if v := os.Getenv(EnvSQLitePath); v != "" {
		cfg.Session.SQLitePath = v
	}

	// Logging
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
		cfg.Logging.Enabled = true
	}
}
