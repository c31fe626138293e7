package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config is loaded once at startup from the environment variables
// spec.md §6 names, plus the ambient knobs a production deployment
// needs (environment selector, metrics port, transactional email).
type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Host string `env:"HOST" envDefault:"0.0.0.0" validate:"required"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	JWTSecret  string `env:"JWT_SECRET,required" validate:"required,min=32"`
	JWTMaxAgeMinutes int `env:"JWT_MAXAGE" envDefault:"1440" validate:"min=1"`

	OctabotLogLevel string `env:"OCTABOT_LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	WorkerCount     int `env:"OCTABOT_WORKER_COUNT" envDefault:"5" validate:"min=1,max=100"`
	PollIntervalSec int `env:"OCTABOT_POLL_INTERVAL_SEC" envDefault:"5" validate:"min=1,max=60"`
	ReapIntervalSec int `env:"OCTABOT_REAP_INTERVAL_SEC" envDefault:"15" validate:"min=1,max=300"`

	// ConfigPath points at the plugin configuration file described in
	// SPEC_FULL.md §6 ("config.json").
	ConfigPath string `env:"OCTABOT_CONFIG_PATH" envDefault:"./config.json" validate:"required"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090" validate:"required"`

	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM" validate:"required_if=Env production,required_if=Env staging"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts OCTABOT_LOG_LEVEL to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.OctabotLogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
