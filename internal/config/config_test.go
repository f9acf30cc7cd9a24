package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "duewatch.db", cfg.Database)
	assert.Equal(t, "America/Argentina/Buenos_Aires", cfg.Timezone)
	assert.Equal(t, "es-AR", cfg.Locale)
	assert.Empty(t, cfg.HTTP.Addr)
	assert.Equal(t, "@every 5m", cfg.Sync.Schedule)
	assert.Equal(t, "check-vencimientos", cfg.Sync.DefaultTag)
	assert.Equal(t, 24*time.Hour, cfg.Timers.MaxDelay)
	assert.Equal(t, 15*time.Minute, cfg.Lease.TTL)
	assert.True(t, cfg.Display.Console)
	assert.True(t, cfg.Display.Tray)
	assert.Equal(t, "/tarjetas", cfg.Notification.URL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_MissingFileIgnored(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "duewatch.db", cfg.Database)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database: /var/lib/duewatch/state.db
timezone: UTC
http:
  addr: 127.0.0.1:8787
timers:
  max_delay: 2h
display:
  console: false
log:
  level: debug
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/duewatch/state.db", cfg.Database)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, "127.0.0.1:8787", cfg.HTTP.Addr)
	assert.Equal(t, 2*time.Hour, cfg.Timers.MaxDelay)
	assert.False(t, cfg.Display.Console)
	assert.True(t, cfg.Display.Tray, "unset keys keep defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unterminated"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config file")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: :9000\n"), 0644))

	t.Setenv("DUEWATCH_HTTP__ADDR", ":8080")
	t.Setenv("DUEWATCH_LEASE__TTL", "1m")
	t.Setenv("DUEWATCH_DISPLAY__TRAY", "false")
	t.Setenv("DUEWATCH_SYNC__DEFAULT_TAG", "nightly")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, time.Minute, cfg.Lease.TTL)
	assert.False(t, cfg.Display.Tray)
	assert.Equal(t, "nightly", cfg.Sync.DefaultTag)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "timers.max_delay", envKey("DUEWATCH_TIMERS__MAX_DELAY"))
	assert.Equal(t, "database", envKey("DUEWATCH_DATABASE"))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "x.db"), expandPath("~/x.db"))
	assert.Equal(t, "/abs/x.db", expandPath("/abs/x.db"))
	assert.Equal(t, "", expandPath(""))
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Timezone = "UTC"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"local timezone", func(c *Config) { c.Timezone = "Local" }, ""},
		{"no database", func(c *Config) { c.Database = "" }, "database path is required"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus_Mons" }, "invalid timezone"},
		{"bad locale", func(c *Config) { c.Locale = "not a locale!" }, "invalid locale"},
		{"bad schedule", func(c *Config) { c.Sync.Schedule = "whenever" }, "invalid sync.schedule"},
		{"zero max delay", func(c *Config) { c.Timers.MaxDelay = 0 }, "timers.max_delay"},
		{"negative ttl", func(c *Config) { c.Lease.TTL = -time.Minute }, "lease.ttl"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "unknown log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "unknown log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLanguage(t *testing.T) {
	cfg := validConfig(t)
	tag, err := cfg.Language()
	require.NoError(t, err)
	assert.Equal(t, language.MustParse("es-AR"), tag)
}
