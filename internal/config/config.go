// Package config loads the daemon's TOML configuration file (spec §6,
// §10.3).
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/aytixel/dwitch/internal/cache"
	"github.com/aytixel/dwitch/internal/netns"
	"github.com/aytixel/dwitch/internal/protocol"
)

// DefaultPath is where the daemon looks for its config unless overridden
// by a flag.
const DefaultPath = "/etc/dwitch/config.toml"

// Config is the daemon's on-disk configuration. switch_id, listen, and
// servers are required; everything else tunes the §4 constants without
// changing the required set.
type Config struct {
	SwitchID uint32   `toml:"switch_id"`
	Listen   string   `toml:"listen"`
	Servers  []string `toml:"servers"`

	CachePath string `toml:"cache_path"`
	NetnsDir  string `toml:"netns_dir"`

	PingIntervalMS  int64 `toml:"ping_interval_ms"`
	PingTimeoutMS   int64 `toml:"ping_timeout_ms"`
	ConnectRetryMS  int64 `toml:"connect_retry_ms"`
	AcceptBackoffMS int64 `toml:"accept_backoff_ms"`

	LogLevel string `toml:"log_level"`
}

// Durations is the resolved set of timing parameters, defaulting to the
// §4 constants when a TOML key is absent or zero.
type Durations struct {
	PingInterval  time.Duration
	PingTimeout   time.Duration
	ConnectRetry  time.Duration
	AcceptBackoff time.Duration
}

// Load reads and validates path, defaulting optional keys per spec §10.3.
// A missing required key or switch_id == 0 is a fatal startup error
// (spec §7), reported as a non-nil error for the caller to log and exit on.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if cfg.SwitchID == 0 {
		return nil, fmt.Errorf("config: switch_id is required and must be non-zero")
	}
	if protocol.SwitchID(cfg.SwitchID) == protocol.ConfigurationSwitchID {
		return nil, fmt.Errorf("config: switch_id 0 is reserved for the operator control channel")
	}
	if cfg.Listen == "" {
		return nil, fmt.Errorf("config: listen is required")
	}
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("config: servers must list at least one peer address")
	}

	if cfg.CachePath == "" {
		cfg.CachePath = cache.DefaultPath
	}
	if cfg.NetnsDir == "" {
		cfg.NetnsDir = netns.DefaultDir
	}

	return &cfg, nil
}

// Durations resolves the optional timing overrides against the §4
// defaults.
func (c *Config) Durations() Durations {
	d := Durations{
		PingInterval:  protocol.PingInterval,
		PingTimeout:   protocol.PingTimeout,
		ConnectRetry:  protocol.ConnectRetryInterval,
		AcceptBackoff: protocol.AcceptBackoff,
	}
	if c.PingIntervalMS > 0 {
		d.PingInterval = time.Duration(c.PingIntervalMS) * time.Millisecond
	}
	if c.PingTimeoutMS > 0 {
		d.PingTimeout = time.Duration(c.PingTimeoutMS) * time.Millisecond
	}
	if c.ConnectRetryMS > 0 {
		d.ConnectRetry = time.Duration(c.ConnectRetryMS) * time.Millisecond
	}
	if c.AcceptBackoffMS > 0 {
		d.AcceptBackoff = time.Duration(c.AcceptBackoffMS) * time.Millisecond
	}
	return d
}
