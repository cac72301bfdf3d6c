// Package config handles loading and validating gateway configuration.
//
// Unit credentials are deliberately NOT part of this file-based config:
// the REI_AGENT_SECRET_* environment scan (see the units package) is the
// only surface for the registry. This file covers everything else — the
// listen address, the upstream endpoint, and log rotation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultUpstreamBaseURL is the fixed REI API host. Overridable in config
// only so tests can point the gateway at a local fake.
const DefaultUpstreamBaseURL = "https://api.reisearch.box"

// DefaultUpstreamTimeout matches the REI API's worst-case completion time.
// Generative calls can legitimately run for tens of minutes; callers are
// expected to wait rather than get a premature timeout.
const DefaultUpstreamTimeout = 50 * time.Minute

// Config is the top-level configuration for the reigate gateway.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int           `koanf:"port"`
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// WriteTimeout must outlast Upstream.Timeout or long completions get
	// cut off mid-response. Zero disables it.
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// UpstreamConfig holds the settings for the REI chat-completion API.
type UpstreamConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

// LogConfig holds the rotating log sink settings.
type LogConfig struct {
	File       string `koanf:"file"`        // empty = stdout only
	MaxSizeMB  int    `koanf:"max_size_mb"` // per-file cap before rotation
	MaxBackups int    `koanf:"max_backups"` // rotated files kept
}

// Load reads configuration from a YAML file, layers environment variable
// overrides on top, and returns a fully populated Config.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	// This is also how REI_AGENT_SECRET_* vars reach os.Environ during
	// local development.
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Layer environment variables on top. Any env var starting with
	// "REIGATE_" can override a config value:
	//   REIGATE_SERVER_PORT -> server.port
	if err := k.Load(env.Provider("REIGATE_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "REIGATE_")),
			"_", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = DefaultUpstreamBaseURL
	}
	if cfg.Upstream.Timeout <= 0 {
		cfg.Upstream.Timeout = DefaultUpstreamTimeout
	}

	return &cfg, nil
}
