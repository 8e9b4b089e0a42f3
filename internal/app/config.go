package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable read into Config.
const EnvPrefix = "ASSETGRID_"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// ConfigPath is the pipeline file or directory, relative to Dir.
	ConfigPath string `env:"CONFIG" envDefault:"assetgrid.hcl"`
	// Dir is the project root. Globs, destinations and watches resolve
	// against it.
	Dir string `env:"DIR" envDefault:"."`

	LogFormat       string `env:"LOG_FORMAT" envDefault:"auto"`
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	Workers         int    `env:"WORKERS" envDefault:"10"`
	HealthcheckPort int    `env:"HEALTHCHECK_PORT"`

	Cache     bool   `env:"CACHE" envDefault:"true"`
	CachePath string `env:"CACHE_PATH"`

	OtelEndpoint string `env:"OTEL_ENDPOINT"`
}

// ConfigFromEnv returns the defaults overridden by ASSETGRID_* variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate normalizes the configuration and rejects invalid values.
func (c *Config) Validate() error {
	if c.Dir == "" {
		c.Dir = "."
	}
	if c.ConfigPath == "" {
		return errors.New("config path is a required configuration field and cannot be empty")
	}

	c.LogFormat = strings.ToLower(c.LogFormat)
	switch c.LogFormat {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("invalid log-format %q: must be 'auto', 'text' or 'json'", c.LogFormat)
	}

	c.LogLevel = strings.ToLower(c.LogLevel)
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn' or 'error'", c.LogLevel)
	}

	if c.Workers < 1 {
		return fmt.Errorf("invalid workers %d: must be at least 1", c.Workers)
	}
	if c.HealthcheckPort < 0 || c.HealthcheckPort > 65535 {
		return fmt.Errorf("invalid healthcheck-port %d", c.HealthcheckPort)
	}
	return nil
}

// PipelinePath returns ConfigPath resolved against Dir.
func (c *Config) PipelinePath() string {
	if filepath.IsAbs(c.ConfigPath) {
		return c.ConfigPath
	}
	return filepath.Join(c.Dir, c.ConfigPath)
}
