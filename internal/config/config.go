package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// CHARTBOT_RETENTION_HOURS for retention.hours.
const EnvPrefix = "CHARTBOT"

// Config holds all chartbot configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Discord   DiscordConfig   `mapstructure:"discord"`
	Retention RetentionConfig `mapstructure:"retention"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Threads   ThreadsConfig   `mapstructure:"threads"`
	Quote     QuoteConfig     `mapstructure:"quote"`
	Chart     ChartConfig     `mapstructure:"chart"`
}

type ServerConfig struct {
	Bind string `mapstructure:"bind"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"` // empty disables the tracking journal
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

type DiscordConfig struct {
	Token     string   `mapstructure:"token"`
	APIURL    string   `mapstructure:"api_url"`
	Channels  []string `mapstructure:"channels"`    // watched conversation ids
	BotUserID string   `mapstructure:"bot_user_id"` // resolved from the token when empty

	// ApplicationID addresses deferred interaction replies. Defaults to
	// the bot user id.
	ApplicationID string `mapstructure:"application_id"`
}

type RetentionConfig struct {
	Hours                  float64 `mapstructure:"hours"`
	CleanupIntervalMinutes int     `mapstructure:"cleanup_interval_minutes"`
	SafetyMarginHours      float64 `mapstructure:"safety_margin_hours"`
	OrphanSweepEvery       int     `mapstructure:"orphan_sweep_every"`
}

type CacheConfig struct {
	SweepIntervalMinutes int    `mapstructure:"sweep_interval_minutes"`
	Timezone             string `mapstructure:"timezone"` // reference calendar for day rollover
}

type ThreadsConfig struct {
	ArchiveMinutes int    `mapstructure:"archive_minutes"`
	NamePrefix     string `mapstructure:"name_prefix"`
}

type QuoteConfig struct {
	Providers      []string `mapstructure:"providers"` // tried in order: "yahoo", "finnhub"
	FinnhubKey     string   `mapstructure:"finnhub_key"`
	YahooURL       string   `mapstructure:"yahoo_url"`
	FinnhubURL     string   `mapstructure:"finnhub_url"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

type ChartConfig struct {
	RendererURL string `mapstructure:"renderer_url"`
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
}

// Bounds for values that are clamped rather than rejected.
const (
	MinRetentionHours   = 0.1
	MaxRetentionHours   = 720
	MinIntervalMinutes  = 1
	MaxIntervalMinutes  = 1440
	DefaultTimezone     = "America/New_York"
	defaultRetentionHrs = 26
)

// Archive windows the platform accepts for threads, in minutes.
var archiveWindows = []int{60, 1440, 4320, 10080}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Discord: DiscordConfig{
			APIURL: "https://discord.com/api/v10",
		},
		Retention: RetentionConfig{
			Hours:                  defaultRetentionHrs,
			CleanupIntervalMinutes: 60,
			SafetyMarginHours:      4,
			OrphanSweepEvery:       6,
		},
		Cache: CacheConfig{
			SweepIntervalMinutes: 30,
			Timezone:             DefaultTimezone,
		},
		Threads: ThreadsConfig{
			ArchiveMinutes: 60,
			NamePrefix:     "Charts",
		},
		Quote: QuoteConfig{
			Providers:      []string{"yahoo", "finnhub"},
			YahooURL:       "https://query1.finance.yahoo.com",
			FinnhubURL:     "https://finnhub.io",
			TimeoutSeconds: 10,
		},
		Chart: ChartConfig{
			RendererURL: "https://quickchart.io",
			Width:       800,
			Height:      400,
		},
	}
}

// Load reads configuration from the optional file at path and from
// CHARTBOT_* environment variables, which take precedence. Invalid
// values fall back to their defaults; each fallback or clamp is reported
// in the returned warnings. Only an unreadable config file is an error.
func Load(path string) (Config, []string, error) {
	def := Default()
	v := viper.New()
	setDefaults(v, def)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The conventional unprefixed token variable is honoured too.
	_ = v.BindEnv("discord.token", EnvPrefix+"_DISCORD_TOKEN", "DISCORD_TOKEN")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var w warnings
	cfg := Config{
		Server: ServerConfig{
			Bind: stringSetting(v, "server.bind", def.Server.Bind),
			Port: intSetting(v, &w, "server.port", def.Server.Port, 1, 65535),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Log: LogConfig{
			Level:  oneOf(v, &w, "log.level", def.Log.Level, "debug", "info", "warn", "error"),
			Format: oneOf(v, &w, "log.format", def.Log.Format, "text", "json"),
		},
		Discord: DiscordConfig{
			Token:         v.GetString("discord.token"),
			APIURL:        stringSetting(v, "discord.api_url", def.Discord.APIURL),
			Channels:      listSetting(v, "discord.channels"),
			BotUserID:     v.GetString("discord.bot_user_id"),
			ApplicationID: v.GetString("discord.application_id"),
		},
		Retention: RetentionConfig{
			Hours:                  floatSetting(v, &w, "retention.hours", def.Retention.Hours, MinRetentionHours, MaxRetentionHours),
			CleanupIntervalMinutes: intSetting(v, &w, "retention.cleanup_interval_minutes", def.Retention.CleanupIntervalMinutes, MinIntervalMinutes, MaxIntervalMinutes),
			SafetyMarginHours:      floatSetting(v, &w, "retention.safety_margin_hours", def.Retention.SafetyMarginHours, 0, MaxRetentionHours),
			OrphanSweepEvery:       intSetting(v, &w, "retention.orphan_sweep_every", def.Retention.OrphanSweepEvery, 1, 1000),
		},
		Cache: CacheConfig{
			SweepIntervalMinutes: intSetting(v, &w, "cache.sweep_interval_minutes", def.Cache.SweepIntervalMinutes, 1, MaxIntervalMinutes),
			Timezone:             stringSetting(v, "cache.timezone", def.Cache.Timezone),
		},
		Threads: ThreadsConfig{
			ArchiveMinutes: archiveSetting(v, &w, "threads.archive_minutes", def.Threads.ArchiveMinutes),
			NamePrefix:     stringSetting(v, "threads.name_prefix", def.Threads.NamePrefix),
		},
		Quote: QuoteConfig{
			Providers:      listSetting(v, "quote.providers"),
			FinnhubKey:     v.GetString("quote.finnhub_key"),
			YahooURL:       stringSetting(v, "quote.yahoo_url", def.Quote.YahooURL),
			FinnhubURL:     stringSetting(v, "quote.finnhub_url", def.Quote.FinnhubURL),
			TimeoutSeconds: intSetting(v, &w, "quote.timeout_seconds", def.Quote.TimeoutSeconds, 1, 120),
		},
		Chart: ChartConfig{
			RendererURL: stringSetting(v, "chart.renderer_url", def.Chart.RendererURL),
			Width:       intSetting(v, &w, "chart.width", def.Chart.Width, 100, 4000),
			Height:      intSetting(v, &w, "chart.height", def.Chart.Height, 100, 4000),
		},
	}
	if len(cfg.Quote.Providers) == 0 {
		cfg.Quote.Providers = def.Quote.Providers
	}
	if _, err := time.LoadLocation(cfg.Cache.Timezone); err != nil {
		w.addf("cache.timezone %q: %v, using %s", cfg.Cache.Timezone, err, DefaultTimezone)
		cfg.Cache.Timezone = DefaultTimezone
	}
	return cfg, w, nil
}

func setDefaults(v *viper.Viper, def Config) {
	v.SetDefault("server.bind", def.Server.Bind)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.api_url", def.Discord.APIURL)
	v.SetDefault("discord.channels", "")
	v.SetDefault("discord.bot_user_id", "")
	v.SetDefault("discord.application_id", "")
	v.SetDefault("retention.hours", def.Retention.Hours)
	v.SetDefault("retention.cleanup_interval_minutes", def.Retention.CleanupIntervalMinutes)
	v.SetDefault("retention.safety_margin_hours", def.Retention.SafetyMarginHours)
	v.SetDefault("retention.orphan_sweep_every", def.Retention.OrphanSweepEvery)
	v.SetDefault("cache.sweep_interval_minutes", def.Cache.SweepIntervalMinutes)
	v.SetDefault("cache.timezone", def.Cache.Timezone)
	v.SetDefault("threads.archive_minutes", def.Threads.ArchiveMinutes)
	v.SetDefault("threads.name_prefix", def.Threads.NamePrefix)
	v.SetDefault("quote.providers", strings.Join(def.Quote.Providers, ","))
	v.SetDefault("quote.finnhub_key", "")
	v.SetDefault("quote.yahoo_url", def.Quote.YahooURL)
	v.SetDefault("quote.finnhub_url", def.Quote.FinnhubURL)
	v.SetDefault("quote.timeout_seconds", def.Quote.TimeoutSeconds)
	v.SetDefault("chart.renderer_url", def.Chart.RendererURL)
	v.SetDefault("chart.width", def.Chart.Width)
	v.SetDefault("chart.height", def.Chart.Height)
}

type warnings []string

func (w *warnings) addf(format string, args ...any) {
	*w = append(*w, fmt.Sprintf(format, args...))
}

func stringSetting(v *viper.Viper, key, def string) string {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		return s
	}
	return def
}

// floatSetting parses key, falling back to def when the value is missing,
// unparsable or not positive, and clamping it into [lo, hi].
func floatSetting(v *viper.Viper, w *warnings, key string, def, lo, hi float64) float64 {
	raw := strings.TrimSpace(v.GetString(key))
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		w.addf("%s=%q is invalid, using default %v", key, raw, def)
		return def
	}
	if f < lo {
		w.addf("%s=%v below minimum, clamped to %v", key, f, lo)
		return lo
	}
	if f > hi {
		w.addf("%s=%v above maximum, clamped to %v", key, f, hi)
		return hi
	}
	return f
}

func intSetting(v *viper.Viper, w *warnings, key string, def, lo, hi int) int {
	raw := strings.TrimSpace(v.GetString(key))
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		w.addf("%s=%q is invalid, using default %d", key, raw, def)
		return def
	}
	if n < lo {
		w.addf("%s=%d below minimum, clamped to %d", key, n, lo)
		return lo
	}
	if n > hi {
		w.addf("%s=%d above maximum, clamped to %d", key, n, hi)
		return hi
	}
	return n
}

func oneOf(v *viper.Viper, w *warnings, key, def string, allowed ...string) string {
	s := strings.ToLower(strings.TrimSpace(v.GetString(key)))
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	w.addf("%s=%q must be one of %v, using %s", key, s, allowed, def)
	return def
}

// archiveSetting picks the smallest accepted archive window at or above
// the requested one.
func archiveSetting(v *viper.Viper, w *warnings, key string, def int) int {
	n := intSetting(v, w, key, def, archiveWindows[0], archiveWindows[len(archiveWindows)-1])
	for _, win := range archiveWindows {
		if n <= win {
			if n != win {
				w.addf("%s=%d is not an accepted archive window, using %d", key, n, win)
			}
			return win
		}
	}
	return def
}

// listSetting accepts a comma or whitespace separated string as well as a
// list from the config file.
func listSetting(v *viper.Viper, key string) []string {
	var parts []string
	switch raw := v.Get(key).(type) {
	case string:
		parts = strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	default:
		parts = v.GetStringSlice(key)
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// RetentionWindow is how old an artifact must be before cleanup takes it.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.Retention.Hours * float64(time.Hour))
}

// CleanupInterval is the time between retention ticks.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Retention.CleanupIntervalMinutes) * time.Minute
}

// SafetyMargin is added to the retention window before stale tracking is
// forgotten.
func (c *Config) SafetyMargin() time.Duration {
	return time.Duration(c.Retention.SafetyMarginHours * float64(time.Hour))
}

// CacheSweepInterval is the time between day-rollover sweeps.
func (c *Config) CacheSweepInterval() time.Duration {
	return time.Duration(c.Cache.SweepIntervalMinutes) * time.Minute
}

// ArchiveAfter is the thread auto-archive window.
func (c *Config) ArchiveAfter() time.Duration {
	return time.Duration(c.Threads.ArchiveMinutes) * time.Minute
}

// Location returns the reference calendar location for cache keys.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Cache.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
