// Package config loads duewatch application settings.
//
// Settings are layered: built-in defaults, then an optional YAML file, then
// DUEWATCH_* environment variables. Nested keys use a double underscore in
// the environment, so DUEWATCH_HTTP__ADDR sets http.addr.
//
// Application settings describe how the engine runs. The user's notification
// preferences (advance days, hour) live in the store and are resolved by the
// settings package.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DUEWATCH_"

type Config struct {
	Database     string             `koanf:"database"`
	Timezone     string             `koanf:"timezone"`
	Locale       string             `koanf:"locale"`
	HTTP         HTTPConfig         `koanf:"http"`
	Sync         SyncConfig         `koanf:"sync"`
	Timers       TimersConfig       `koanf:"timers"`
	Lease        LeaseConfig        `koanf:"lease"`
	Display      DisplayConfig      `koanf:"display"`
	Notification NotificationConfig `koanf:"notification"`
	Log          LogConfig          `koanf:"log"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr"` // empty disables the HTTP channel
}

type SyncConfig struct {
	Schedule   string `koanf:"schedule"`    // cron spec or @every descriptor
	DefaultTag string `koanf:"default_tag"` // registered on start; empty waits for schedule-sync
}

type TimersConfig struct {
	MaxDelay time.Duration `koanf:"max_delay"`
}

type LeaseConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

type DisplayConfig struct {
	Console bool `koanf:"console"`
	Tray    bool `koanf:"tray"`
}

type NotificationConfig struct {
	Icon  string `koanf:"icon"`
	Badge string `koanf:"badge"`
	URL   string `koanf:"url"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug | info | warn | error
	Format string `koanf:"format"` // text | json
}

// Load reads settings from defaults, the YAML file at path (skipped when
// path is empty or the file does not exist) and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		path = expandPath(path)
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Database = expandPath(cfg.Database)

	return &cfg, nil
}

// envKey maps DUEWATCH_TIMERS__MAX_DELAY to timers.max_delay.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database path is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Language(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.Sync.Schedule); err != nil {
		return fmt.Errorf("invalid sync.schedule %q: %w", c.Sync.Schedule, err)
	}
	if c.Timers.MaxDelay <= 0 {
		return fmt.Errorf("timers.max_delay must be positive")
	}
	if c.Lease.TTL <= 0 {
		return fmt.Errorf("lease.ttl must be positive")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level: %s (supported: debug, info, warn, error)", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log.format: %s (supported: text, json)", c.Log.Format)
	}

	return nil
}

// Location returns the time zone for due dates and the notification hour.
// "Local" and the empty string mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Language returns the locale used to format amounts.
func (c *Config) Language() (language.Tag, error) {
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.Und, fmt.Errorf("invalid locale %q: %w", c.Locale, err)
	}
	return tag, nil
}

func expandPath(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
