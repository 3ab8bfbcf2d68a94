// Package config loads daemon configuration from a file and overlays
// environment variables on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"tianshand/internal/common/fsutil"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and fall back to Default().
type Config struct {
	// Addr is the listen address of the diagnostics HTTP API.
	Addr string `json:"addr" yaml:"addr" toml:"addr" env:"TIANSHAND_ADDR"`
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level" env:"TIANSHAND_LOG_LEVEL"`
	// CORSOrigins lists origins allowed to call the API cross-origin. Empty
	// leaves CORS disabled.
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins" env:"TIANSHAND_CORS_ORIGINS" envSeparator:","`

	// Event bus sizing.
	EventQueueSize  int `json:"event_queue_size" yaml:"event_queue_size" toml:"event_queue_size" env:"TIANSHAND_EVENT_QUEUE_SIZE"`
	MaxHandlers     int `json:"max_handlers" yaml:"max_handlers" toml:"max_handlers" env:"TIANSHAND_MAX_HANDLERS"`
	MaxEventPayload int `json:"max_event_payload" yaml:"max_event_payload" toml:"max_event_payload" env:"TIANSHAND_MAX_EVENT_PAYLOAD"`
	// PostTimeoutMS bounds the enqueue wait of convenience posts, in
	// milliseconds.
	PostTimeoutMS int `json:"post_timeout_ms" yaml:"post_timeout_ms" toml:"post_timeout_ms" env:"TIANSHAND_POST_TIMEOUT_MS"`

	// Service registry sizing.
	MaxServices int `json:"max_services" yaml:"max_services" toml:"max_services" env:"TIANSHAND_MAX_SERVICES"`

	// HeartbeatSeconds is the system monitor's heartbeat period. Zero means
	// unspecified (the default applies); a negative value disables the
	// heartbeat.
	HeartbeatSeconds int `json:"heartbeat_seconds" yaml:"heartbeat_seconds" toml:"heartbeat_seconds" env:"TIANSHAND_HEARTBEAT_SECONDS"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:             ":8090",
		LogLevel:         "info",
		HeartbeatSeconds: 30,
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	if !fsutil.PathExists(path) {
		return cfg, fmt.Errorf("config file not found: %s", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyEnv overlays TIANSHAND_* environment variables on cfg. Variables that
// are unset leave the file values untouched.
func ApplyEnv(cfg Config) (Config, error) {
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Merge fills unspecified fields of cfg from fallback.
func Merge(cfg, fallback Config) Config {
	if cfg.Addr == "" {
		cfg.Addr = fallback.Addr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = fallback.LogLevel
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = fallback.CORSOrigins
	}
	if cfg.EventQueueSize <= 0 {
		cfg.EventQueueSize = fallback.EventQueueSize
	}
	if cfg.MaxHandlers <= 0 {
		cfg.MaxHandlers = fallback.MaxHandlers
	}
	if cfg.MaxEventPayload <= 0 {
		cfg.MaxEventPayload = fallback.MaxEventPayload
	}
	if cfg.PostTimeoutMS <= 0 {
		cfg.PostTimeoutMS = fallback.PostTimeoutMS
	}
	if cfg.MaxServices <= 0 {
		cfg.MaxServices = fallback.MaxServices
	}
	// negative means explicitly disabled, only zero is unspecified
	if cfg.HeartbeatSeconds == 0 {
		cfg.HeartbeatSeconds = fallback.HeartbeatSeconds
	}
	return cfg
}

// PostTimeout converts PostTimeoutMS to a duration; zero means "use the bus
// default".
func (c Config) PostTimeout() time.Duration {
	if c.PostTimeoutMS <= 0 {
		return 0
	}
	return time.Duration(c.PostTimeoutMS) * time.Millisecond
}
