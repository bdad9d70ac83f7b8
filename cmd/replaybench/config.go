package main

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/samuelfneumann/goreplay/expreplay"
)

// Config holds all replaybench configuration
type Config struct {
	Replay expreplay.Config `mapstructure:"replay"`

	// Actor/learner loop
	Steps         int     `mapstructure:"steps"`
	BatchSize     int     `mapstructure:"batch_size"`
	LearnEvery    int     `mapstructure:"learn_every"`
	FeatureSize   int     `mapstructure:"feature_size"`
	ActionSize    int     `mapstructure:"action_size"`
	EpisodeLength float64 `mapstructure:"episode_length"`
	Seed          uint64  `mapstructure:"seed"`

	// Reporting
	StatsEvery  time.Duration `mapstructure:"stats_every"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
	Progress    bool          `mapstructure:"progress"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	replay := expreplay.DefaultConfig()
	replay.Capacity = 10_000

	return &Config{
		Replay:        replay,
		Steps:         1_000,
		BatchSize:     32,
		LearnEvery:    4,
		FeatureSize:   8,
		ActionSize:    2,
		EpisodeLength: 200,
		Seed:          1,
		StatsEvery:    5 * time.Second,
		LogLevel:      "info",
		LogFormat:     "console",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.Replay.Validate(); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if c.Steps <= 0 {
		return fmt.Errorf("steps must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.LearnEvery <= 0 {
		return fmt.Errorf("learn_every must be positive")
	}
	if c.FeatureSize <= 0 || c.ActionSize <= 0 {
		return fmt.Errorf("feature_size and action_size must be positive")
	}
	if c.EpisodeLength < 1 {
		return fmt.Errorf("episode_length must be at least 1")
	}
	if c.StatsEvery <= 0 {
		return fmt.Errorf("stats_every must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be console or json, have %q",
			c.LogFormat)
	}
	return nil
}

// newLogger returns the logger described by c, writing to out and
// tagged with a fresh run ID
func (c *Config) newLogger(out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if c.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("run_id", uuid.NewString()).
		Logger()
}
