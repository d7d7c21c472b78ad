package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode            string        `mapstructure:"mode"`
	ServerAddr      string        `mapstructure:"server_addr"`
	Port            int           `mapstructure:"port"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	PublishInterval time.Duration `mapstructure:"publish_interval"`
	DetailsCacheTTL time.Duration `mapstructure:"details_cache_ttl"`
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
	v.SetDefault("server_addr", "ws://localhost:3001/ws")
	v.SetDefault("port", 3001)
	v.SetDefault("connect_timeout", "10s")
	v.SetDefault("request_timeout", "5s")
	v.SetDefault("publish_interval", "10s")
	v.SetDefault("details_cache_ttl", "1m")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
