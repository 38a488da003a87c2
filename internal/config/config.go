package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config keeps runtime settings for the bot and the background engine.
type Config struct {
	TelegramToken string
	DatabaseURL   string
	LogLevel      string
	LogConsole    bool

	ReminderInterval   time.Duration
	ReminderTimeout    time.Duration
	EngagementEvery    time.Duration
	ExpirationInterval time.Duration
	ExpirationEvery    time.Duration
	SummaryInterval    time.Duration
	JobTimeout         time.Duration

	StreakBonusXP  int
	SendRatePerSec int
	SessionTTL     time.Duration
	ServerTimezone string
}

var defaults = map[string]any{
	"telegram_token":      "",
	"database_url":        "tynles.db",
	"log_level":           "info",
	"log_console":         false,
	"reminder_interval":   "60s",
	"reminder_timeout":    "25s",
	"engagement_every":    "6h",
	"expiration_interval": "60s",
	"expiration_every":    "1h",
	"summary_interval":    "1h",
	"job_timeout":         "25s",
	"streak_bonus_xp":     10,
	"send_rate_per_sec":   20,
	"session_ttl":         "30m",
	"server_timezone":     "",
}

// Load reads configuration from an optional YAML file and the environment.
// Environment variables (upper-cased keys, e.g. REMINDER_INTERVAL) win over
// the file. Durations need a unit ("90s", "6h").
func Load(path string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := Config{
		TelegramToken:      strings.TrimSpace(v.GetString("telegram_token")),
		DatabaseURL:        strings.TrimSpace(v.GetString("database_url")),
		LogLevel:           v.GetString("log_level"),
		LogConsole:         v.GetBool("log_console"),
		ReminderInterval:   v.GetDuration("reminder_interval"),
		ReminderTimeout:    v.GetDuration("reminder_timeout"),
		EngagementEvery:    v.GetDuration("engagement_every"),
		ExpirationInterval: v.GetDuration("expiration_interval"),
		ExpirationEvery:    v.GetDuration("expiration_every"),
		SummaryInterval:    v.GetDuration("summary_interval"),
		JobTimeout:         v.GetDuration("job_timeout"),
		StreakBonusXP:      v.GetInt("streak_bonus_xp"),
		SendRatePerSec:     v.GetInt("send_rate_per_sec"),
		SessionTTL:         v.GetDuration("session_ttl"),
		ServerTimezone:     strings.TrimSpace(v.GetString("server_timezone")),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "tynles.db"
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	positive := map[string]time.Duration{
		"REMINDER_INTERVAL":   c.ReminderInterval,
		"REMINDER_TIMEOUT":    c.ReminderTimeout,
		"ENGAGEMENT_EVERY":    c.EngagementEvery,
		"EXPIRATION_INTERVAL": c.ExpirationInterval,
		"EXPIRATION_EVERY":    c.ExpirationEvery,
		"SUMMARY_INTERVAL":    c.SummaryInterval,
		"JOB_TIMEOUT":         c.JobTimeout,
		"SESSION_TTL":         c.SessionTTL,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive duration", name))
		}
	}
	if c.StreakBonusXP < 0 {
		errs = append(errs, fmt.Errorf("STREAK_BONUS_XP must not be negative"))
	}
	if c.SendRatePerSec <= 0 {
		errs = append(errs, fmt.Errorf("SEND_RATE_PER_SEC must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RequireToken fails when no Telegram token is configured.
func (c Config) RequireToken() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	return nil
}

// Location is the server timezone used for the weekly summary windows.
func (c Config) Location() (*time.Location, error) {
	if c.ServerTimezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.ServerTimezone)
	if err != nil {
		return nil, fmt.Errorf("SERVER_TIMEZONE %q: %w", c.ServerTimezone, err)
	}
	return loc, nil
}
