package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, warns, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, warns)

	assert.Equal(t, 26*time.Hour, cfg.RetentionWindow())
	assert.Equal(t, time.Hour, cfg.CleanupInterval())
	assert.Equal(t, 4*time.Hour, cfg.SafetyMargin())
	assert.Equal(t, 6, cfg.Retention.OrphanSweepEvery)
	assert.Equal(t, time.Hour, cfg.ArchiveAfter())
	assert.Equal(t, []string{"yahoo", "finnhub"}, cfg.Quote.Providers)
	assert.Equal(t, "127.0.0.1:37778", cfg.ListenAddr())
	assert.Empty(t, cfg.Database.Path)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CHARTBOT_RETENTION_HOURS", "1.5")
	t.Setenv("CHARTBOT_RETENTION_CLEANUP_INTERVAL_MINUTES", "15")
	t.Setenv("CHARTBOT_DISCORD_CHANNELS", "111, 222,333")
	t.Setenv("CHARTBOT_QUOTE_PROVIDERS", "finnhub")
	t.Setenv("CHARTBOT_LOG_FORMAT", "JSON")
	t.Setenv("DISCORD_TOKEN", "secret")

	cfg, warns, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, warns)

	assert.Equal(t, 90*time.Minute, cfg.RetentionWindow())
	assert.Equal(t, 15*time.Minute, cfg.CleanupInterval())
	assert.Equal(t, []string{"111", "222", "333"}, cfg.Discord.Channels)
	assert.Equal(t, []string{"finnhub"}, cfg.Quote.Providers)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "secret", cfg.Discord.Token)
}

func TestLoadClampsAndFallsBack(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		value     string
		check     func(t *testing.T, cfg Config)
		wantWarns int
	}{
		{"retention below min", "CHARTBOT_RETENTION_HOURS", "0.01", func(t *testing.T, cfg Config) {
			assert.Equal(t, MinRetentionHours, cfg.Retention.Hours)
		}, 1},
		{"retention above max", "CHARTBOT_RETENTION_HOURS", "10000", func(t *testing.T, cfg Config) {
			assert.Equal(t, float64(MaxRetentionHours), cfg.Retention.Hours)
		}, 1},
		{"retention garbage", "CHARTBOT_RETENTION_HOURS", "soon", func(t *testing.T, cfg Config) {
			assert.Equal(t, float64(26), cfg.Retention.Hours)
		}, 1},
		{"retention negative", "CHARTBOT_RETENTION_HOURS", "-3", func(t *testing.T, cfg Config) {
			assert.Equal(t, float64(26), cfg.Retention.Hours)
		}, 1},
		{"interval above max", "CHARTBOT_RETENTION_CLEANUP_INTERVAL_MINUTES", "5000", func(t *testing.T, cfg Config) {
			assert.Equal(t, MaxIntervalMinutes, cfg.Retention.CleanupIntervalMinutes)
		}, 1},
		{"interval zero", "CHARTBOT_RETENTION_CLEANUP_INTERVAL_MINUTES", "0", func(t *testing.T, cfg Config) {
			assert.Equal(t, 60, cfg.Retention.CleanupIntervalMinutes)
		}, 1},
		{"archive rounded up", "CHARTBOT_THREADS_ARCHIVE_MINUTES", "90", func(t *testing.T, cfg Config) {
			assert.Equal(t, 1440, cfg.Threads.ArchiveMinutes)
		}, 1},
		{"bad timezone", "CHARTBOT_CACHE_TIMEZONE", "Mars/Olympus", func(t *testing.T, cfg Config) {
			assert.Equal(t, DefaultTimezone, cfg.Cache.Timezone)
		}, 1},
		{"bad log level", "CHARTBOT_LOG_LEVEL", "loud", func(t *testing.T, cfg Config) {
			assert.Equal(t, "info", cfg.Log.Level)
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			cfg, warns, err := Load("")
			require.NoError(t, err)
			assert.Len(t, warns, tt.wantWarns, "warnings: %v", warns)
			tt.check(t, cfg)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chartbot.yaml")
	body := `
retention:
  hours: 2
discord:
  channels: ["c1", "c2"]
threads:
  name_prefix: Quotes
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("CHARTBOT_RETENTION_HOURS", "3")
	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Hour, cfg.RetentionWindow(), "env overrides file")
	assert.Equal(t, []string{"c1", "c2"}, cfg.Discord.Channels)
	assert.Equal(t, "Quotes", cfg.Threads.NamePrefix)

	_, _, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLocation(t *testing.T) {
	cfg := Default()
	cfg.Cache.Timezone = "Nowhere/Land"
	assert.Equal(t, time.UTC, cfg.Location())
}
