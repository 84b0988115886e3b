package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit int64 `mapstructure:"read_limit"`

	// PingPeriod is the websocket keepalive interval. The read side
	// allows slightly more than one period for the matching pong.
	PingPeriod time.Duration `mapstructure:"ping_period"`

	Secret string `mapstructure:"secret"`

	// ChunkMaxBytes is the single protocol-wide bound on one audio
	// chunk payload, after base64 decoding.
	ChunkMaxBytes int `mapstructure:"chunk_max_bytes"`

	// Sliding-window rate limit per connection, for text messages and
	// audio chunks alike. rate_limit <= 0 disables it.
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("chunk_max_bytes", 8192)
	v.SetDefault("rate_limit", 60)
	v.SetDefault("rate_window", "10s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
