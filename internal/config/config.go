// Package config reads process configuration from SYNAPSE_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// MaxBackfillPageSize is the largest history page Discord serves.
const MaxBackfillPageSize = 100

// Config is the process configuration.
type Config struct {
	DBPath           string `env:"SYNAPSE_DB_PATH"            envDefault:"synapse.db"`
	DiscordToken     string `env:"SYNAPSE_DISCORD_TOKEN"`
	GuildID          string `env:"SYNAPSE_GUILD_ID"`
	LogLevel         string `env:"SYNAPSE_LOG_LEVEL"          envDefault:"info"`
	LogFormat        string `env:"SYNAPSE_LOG_FORMAT"         envDefault:"text"`
	RulesFile        string `env:"SYNAPSE_RULES_FILE"`
	BackfillOnStart  bool   `env:"SYNAPSE_BACKFILL_ON_START"  envDefault:"false"`
	BackfillPageSize int    `env:"SYNAPSE_BACKFILL_PAGE_SIZE" envDefault:"100"`
	QueueWarnDepth   int    `env:"SYNAPSE_QUEUE_WARN_DEPTH"   envDefault:"1000"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks values that every command relies on.
func (c Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("SYNAPSE_DB_PATH is empty"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("SYNAPSE_LOG_FORMAT %q: want text or json", c.LogFormat))
	}
	if c.BackfillPageSize < 1 || c.BackfillPageSize > MaxBackfillPageSize {
		errs = append(errs, fmt.Errorf("SYNAPSE_BACKFILL_PAGE_SIZE %d: want 1..%d", c.BackfillPageSize, MaxBackfillPageSize))
	}
	if c.QueueWarnDepth < 1 {
		errs = append(errs, fmt.Errorf("SYNAPSE_QUEUE_WARN_DEPTH %d: must be positive", c.QueueWarnDepth))
	}
	return errors.Join(errs...)
}

// ValidateDiscord checks the settings needed to connect to Discord.
func (c Config) ValidateDiscord() error {
	var errs []error
	if c.DiscordToken == "" {
		errs = append(errs, errors.New("SYNAPSE_DISCORD_TOKEN is required"))
	}
	if c.GuildID == "" {
		errs = append(errs, errors.New("SYNAPSE_GUILD_ID is required"))
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("SYNAPSE_LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return l, nil
}
