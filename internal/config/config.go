package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the relay's runtime configuration. Values come from an optional
// yaml file, with environment variables taking precedence.
type Config struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	RateLimitWindowSec int `yaml:"rate_limit_window_sec"`
	RateLimitMax       int `yaml:"rate_limit_max"`
	MaxMessageBytes    int `yaml:"max_message_bytes"`

	AuctionDefaultSec int `yaml:"auction_default_sec"`
	AuctionMaxSec     int `yaml:"auction_max_sec"`
	SweepIntervalSec  int `yaml:"sweep_interval_sec"`
	SweepGraceSec     int `yaml:"sweep_grace_sec"`

	// NATSURL enables lifecycle event publication when non-empty.
	NATSURL string `yaml:"nats_url"`
	// PostgresDSN enables sweep archival when non-empty.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Port:               8080,
		LogLevel:           "info",
		RateLimitWindowSec: 10,
		RateLimitMax:       100,
		MaxMessageBytes:    64 * 1024,
		AuctionDefaultSec:  60,
		AuctionMaxSec:      300,
		SweepIntervalSec:   30,
		SweepGraceSec:      30,
	}
}

// Load reads configuration from path (skipped when empty or missing) and then
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Port = getEnvAsInt("RELAY_PORT", cfg.Port)
	cfg.LogLevel = getEnv("RELAY_LOG_LEVEL", cfg.LogLevel)
	cfg.RateLimitWindowSec = getEnvAsInt("RELAY_RATE_LIMIT_WINDOW_SEC", cfg.RateLimitWindowSec)
	cfg.RateLimitMax = getEnvAsInt("RELAY_RATE_LIMIT_MAX", cfg.RateLimitMax)
	cfg.MaxMessageBytes = getEnvAsInt("RELAY_MAX_MESSAGE_BYTES", cfg.MaxMessageBytes)
	cfg.AuctionDefaultSec = getEnvAsInt("RELAY_AUCTION_DEFAULT_SEC", cfg.AuctionDefaultSec)
	cfg.AuctionMaxSec = getEnvAsInt("RELAY_AUCTION_MAX_SEC", cfg.AuctionMaxSec)
	cfg.SweepIntervalSec = getEnvAsInt("RELAY_SWEEP_INTERVAL_SEC", cfg.SweepIntervalSec)
	cfg.SweepGraceSec = getEnvAsInt("RELAY_SWEEP_GRACE_SEC", cfg.SweepGraceSec)
	cfg.NATSURL = getEnv("RELAY_NATS_URL", cfg.NATSURL)
	cfg.PostgresDSN = getEnv("RELAY_POSTGRES_DSN", cfg.PostgresDSN)

	return cfg, nil
}

// RateLimitWindow returns the rate-limit window as a duration.
func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSec) * time.Second
}

// AuctionDefault returns the default auction duration.
func (c Config) AuctionDefault() time.Duration {
	return time.Duration(c.AuctionDefaultSec) * time.Second
}

// AuctionMax returns the hard cap on auction duration.
func (c Config) AuctionMax() time.Duration {
	return time.Duration(c.AuctionMaxSec) * time.Second
}

// SweepInterval returns the sweep period.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

// SweepGrace returns the post-deadline grace before deletion.
func (c Config) SweepGrace() time.Duration {
	return time.Duration(c.SweepGraceSec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
