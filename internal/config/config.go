package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Workers struct {
	Producer int `mapstructure:"producer"`
	Consumer int `mapstructure:"consumer"`
	Mixed    int `mapstructure:"mixed"`
}

type Config struct {
	Mode    string `mapstructure:"mode"`
	Port    int    `mapstructure:"port"`
	Secret  string `mapstructure:"secret"`
	SfuAddr string `mapstructure:"sfu_addr"` // advertised address, published with the room lease

	RedisAddr string `mapstructure:"redis_addr"`

	LeaseTTL    time.Duration `mapstructure:"lease_ttl"`
	LivenessTTL time.Duration `mapstructure:"liveness_ttl"`
	TrackTTL    time.Duration `mapstructure:"track_ttl"`

	TaskTimeout       time.Duration `mapstructure:"task_timeout"`
	DisconnectTimeout time.Duration `mapstructure:"disconnect_timeout"`
	ReceiveTimeout    time.Duration `mapstructure:"receive_timeout"`
	SendTimeout       time.Duration `mapstructure:"send_timeout"`
	IdleSweepInterval time.Duration `mapstructure:"idle_sweep_interval"`

	Workers     Workers  `mapstructure:"workers"`
	StunServers []string `mapstructure:"stun_servers"`
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
	v.SetDefault("sfu_addr", "localhost:8080")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("lease_ttl", "10s")
	v.SetDefault("liveness_ttl", "10s")
	v.SetDefault("track_ttl", "30s")
	v.SetDefault("task_timeout", "100ms")
	v.SetDefault("disconnect_timeout", "60s")
	v.SetDefault("receive_timeout", "5s")
	v.SetDefault("send_timeout", "1s")
	v.SetDefault("idle_sweep_interval", "1m")
	v.SetDefault("workers.producer", 1)
	v.SetDefault("workers.consumer", 1)
	v.SetDefault("workers.mixed", 0)
	v.SetDefault("stun_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetEnvPrefix("SFU")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects worker layouts that leave a transport role unservable.
// Running without a producer-capable or consumer-capable worker would fail
// every client creation, so the process refuses to start instead.
func (c *Config) validate() error {
	if c.Workers.Producer+c.Workers.Mixed <= 0 {
		return fmt.Errorf("no worker configured to serve producers")
	}
	if c.Workers.Consumer+c.Workers.Mixed <= 0 {
		return fmt.Errorf("no worker configured to serve consumers")
	}
	return nil
}
