package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// SWEETSYNC_TELEGRAM_BOT_TOKEN.
const EnvPrefix = "SWEETSYNC"

// Config represents the complete application configuration
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Reminders RemindersConfig `mapstructure:"reminders"`
	Cycles    CyclesConfig    `mapstructure:"cycles"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StorageConfig holds the database location and an optional seed file
type StorageConfig struct {
	DBPath   string `mapstructure:"db_path"`
	SeedPath string `mapstructure:"seed_path"`
}

// ScheduleConfig controls when sweeps run and which calendar day "today" is
type ScheduleConfig struct {
	Cron     string `mapstructure:"cron"`
	Timezone string `mapstructure:"timezone"`
}

// RemindersConfig holds event reminder behaviour
type RemindersConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	LookaheadDays int  `mapstructure:"lookahead_days"`

	// ScheduleOccurrences is how many upcoming dates per event the report
	// and the /schedule command list.
	ScheduleOccurrences int `mapstructure:"schedule_occurrences"`
}

// CyclesConfig holds cycle prediction behaviour
type CyclesConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	NotifyDaysBefore int  `mapstructure:"notify_days_before"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// FeedConfig holds iCalendar export configuration
type FeedConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Name    string `mapstructure:"name"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Load reads configuration from file and environment variables.
// A .env file in the working directory, if present, is loaded into the
// process environment first so that it can supply overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Set config file
	v.SetConfigFile(path)

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Storage defaults
	v.SetDefault("storage.db_path", "./data/sweetsync.db")
	v.SetDefault("storage.seed_path", "")

	// Schedule defaults: every morning at 08:00
	v.SetDefault("schedule.cron", "0 8 * * *")
	v.SetDefault("schedule.timezone", "Local")

	// Reminder defaults
	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.lookahead_days", 0)
	v.SetDefault("reminders.schedule_occurrences", 3)

	// Cycle defaults
	v.SetDefault("cycles.enabled", true)
	v.SetDefault("cycles.notify_days_before", 2)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Feed defaults
	v.SetDefault("feed.enabled", false)
	v.SetDefault("feed.path", "./data/sweetsync.ics")
	v.SetDefault("feed.name", "SweetSync")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.SeedPath != "" {
		if _, err := os.Stat(c.Storage.SeedPath); err != nil {
			return fmt.Errorf("storage.seed_path is not readable: %w", err)
		}
	}

	// Validate Schedule config
	if c.Schedule.Cron == "" {
		return fmt.Errorf("schedule.cron is required")
	}
	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		return fmt.Errorf("schedule.cron is not a valid cron expression: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	// Validate Reminders config
	if c.Reminders.LookaheadDays < 0 || c.Reminders.LookaheadDays > 366 {
		return fmt.Errorf("reminders.lookahead_days must be between 0 and 366")
	}

	if c.Reminders.ScheduleOccurrences < 0 || c.Reminders.ScheduleOccurrences > 50 {
		return fmt.Errorf("reminders.schedule_occurrences must be between 0 and 50")
	}

	// Validate Cycles config
	if c.Cycles.NotifyDaysBefore < 0 || c.Cycles.NotifyDaysBefore > 31 {
		return fmt.Errorf("cycles.notify_days_before must be between 0 and 31")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Telegram.MaxRetries < 0 {
		return fmt.Errorf("telegram.max_retries must not be negative")
	}
	if c.Telegram.RetryDelayBase < 0 {
		return fmt.Errorf("telegram.retry_delay_base must not be negative")
	}

	// Validate Feed config
	if c.Feed.Enabled && c.Feed.Path == "" {
		return fmt.Errorf("feed.path is required when feed is enabled")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	if c.Logging.File != "" && c.Logging.MaxSizeMB < 1 {
		return fmt.Errorf("logging.max_size_mb must be at least 1 when logging.file is set")
	}

	return nil
}

// Location resolves schedule.timezone. Empty and "Local" both mean the host
// zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Schedule.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone %q is not a known zone: %w", c.Schedule.Timezone, err)
	}
	return loc, nil
}
