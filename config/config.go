// Package config loads runtime settings from SCREAMSCRIBER_* environment
// variables. Command-line flags in main override individual fields after
// loading.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/OnePlanDan/screamscriber/hook"
)

type Config struct {
	Hotkey  string `env:"HOTKEY" envDefault:"ctrl+shift+space"`
	Mode    string `env:"MODE" envDefault:"push-to-talk"`
	Backend string `env:"BACKEND" envDefault:"local"`

	WhisperBinary string `env:"WHISPER_BINARY"`
	WhisperModel  string `env:"WHISPER_MODEL"`

	RemoteURL     string        `env:"REMOTE_URL"`
	RemoteAPIKey  string        `env:"REMOTE_API_KEY"`
	RemoteModel   string        `env:"REMOTE_MODEL" envDefault:"whisper-1"`
	RemoteTimeout time.Duration `env:"REMOTE_TIMEOUT" envDefault:"30s"`
	RemoteFormat  string        `env:"REMOTE_FORMAT" envDefault:"flac"`
	MaxChainHops  int           `env:"MAX_CHAIN_HOPS" envDefault:"3"`

	ServeAddr string `env:"SERVE_ADDR"`

	Language   string        `env:"LANGUAGE"`
	Workers    int           `env:"WORKERS" envDefault:"2"`
	MaxSegment time.Duration `env:"MAX_SEGMENT" envDefault:"60s"`
	Paste      bool          `env:"PASTE" envDefault:"true"`
	LogPath    string        `env:"LOG_PATH"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "SCREAMSCRIBER_"}); err != nil {
		return nil, fmt.Errorf("environment variables are invalid: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := hook.ParseCombo(c.Hotkey); err != nil {
		return fmt.Errorf("SCREAMSCRIBER_HOTKEY: %w", err)
	}
	switch c.Mode {
	case "push-to-talk", "continuous":
	default:
		return fmt.Errorf("SCREAMSCRIBER_MODE must be push-to-talk or continuous, got %q", c.Mode)
	}
	switch c.Backend {
	case "local":
		if c.WhisperBinary == "" {
			return fmt.Errorf("SCREAMSCRIBER_WHISPER_BINARY is required with the local backend")
		}
	case "remote":
		if c.RemoteURL == "" {
			return fmt.Errorf("SCREAMSCRIBER_REMOTE_URL is required with the remote backend")
		}
	default:
		return fmt.Errorf("SCREAMSCRIBER_BACKEND must be local or remote, got %q", c.Backend)
	}
	switch c.RemoteFormat {
	case "flac", "wav":
	default:
		return fmt.Errorf("SCREAMSCRIBER_REMOTE_FORMAT must be flac or wav, got %q", c.RemoteFormat)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("SCREAMSCRIBER_WORKERS must be positive, got %d", c.Workers)
	}
	if c.MaxChainHops <= 0 {
		return fmt.Errorf("SCREAMSCRIBER_MAX_CHAIN_HOPS must be positive, got %d", c.MaxChainHops)
	}
	if c.MaxSegment < time.Second {
		return fmt.Errorf("SCREAMSCRIBER_MAX_SEGMENT must be at least 1s, got %s", c.MaxSegment)
	}
	return nil
}
