package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// LoadConfig reads the process environment, after loading a .env file from
// the working directory if there is one.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return parse()
}

func parse() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, ErrConfig(err.Error())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.AdvanceLockTimeout <= 0 {
		return ErrConfig("ADVANCE_LOCK_TIMEOUT must be positive")
	}
	if c.CommandRate <= 0 || c.CommandBurst < 1 {
		return ErrConfig("COMMAND_RATE must be positive and COMMAND_BURST at least 1")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return ErrConfig("LOG_FORMAT must be text or json")
	}
	return nil
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, ErrConfig(fmt.Sprintf("invalid LOG_LEVEL %q", c.LogLevel))
	}
	return lvl, nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger() *slog.Logger {
	lvl, _ := c.SlogLevel()
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
