// Package config loads the worker daemon settings from the environment and
// an optional config file.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DBPath       string        `mapstructure:"DB_PATH"`
	PollInterval time.Duration `mapstructure:"POLL_INTERVAL"`
	BatchSize    int           `mapstructure:"BATCH_SIZE"`
	MetricsAddr  string        `mapstructure:"METRICS_ADDR"`
	LogLevel     string        `mapstructure:"LOG_LEVEL"`
}

// Load reads TRACKERNORM_* environment variables over the defaults. A
// non-empty path names a config file (json, yaml, toml or env) whose values
// sit between the two.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRACKERNORM")
	v.AutomaticEnv()
	v.SetDefault("DB_PATH", "data/trackernorm.db")
	v.SetDefault("POLL_INTERVAL", "5s")
	v.SetDefault("BATCH_SIZE", 10)
	v.SetDefault("METRICS_ADDR", ":9090")
	v.SetDefault("LOG_LEVEL", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("POLL_INTERVAL must be positive, got %s", cfg.PollInterval)
	}
	if cfg.BatchSize <= 0 {
		return Config{}, fmt.Errorf("BATCH_SIZE must be positive, got %d", cfg.BatchSize)
	}
	return cfg, nil
}

// Level parses LogLevel (debug, info, warn, error).
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}
