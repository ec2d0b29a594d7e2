// Package config loads the yaml configuration for the bookwatch binary.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Feed  FeedConfig  `mapstructure:"feed"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	Log   LogConfig   `mapstructure:"log"`
}

// FeedConfig selects and parameterizes the feed source.
type FeedConfig struct {
	// Source is "websocket" (live) or "replay" (recorded Kafka topic).
	Source  string `mapstructure:"source"`
	URL     string `mapstructure:"url"`
	Product string `mapstructure:"product"`
	// ReadyTimeoutSec bounds the startup wait for the first snapshot;
	// 0 waits forever.
	ReadyTimeoutSec int `mapstructure:"ready_timeout_sec"`
}

// KafkaConfig covers both the replay source and the quote broadcaster.
type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers"`
	ReplayTopic     string   `mapstructure:"replay_topic"`
	QuoteTopic      string   `mapstructure:"quote_topic"`
	QuoteIntervalMS int      `mapstructure:"quote_interval_ms"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// Load reads configuration from a yaml file.
func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	viper.SetDefault("feed.source", "websocket")
	viper.SetDefault("feed.product", "BTC-USD")
	viper.SetDefault("feed.ready_timeout_sec", 30)
	viper.SetDefault("kafka.quote_interval_ms", 250)
	viper.SetDefault("log.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
