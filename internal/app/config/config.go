package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Meter     MeterConfig     `yaml:"meter"`
	Multicast MulticastConfig `yaml:"multicast"`
	NATS      NATSConfig      `yaml:"nats"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// MeterConfig locates the P1 port of the meter. Durations are plain seconds
// to match the listener deployment configs already in the field.
type MeterConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ReadTimeout    int    `yaml:"read_timeout"`
	DialTimeout    int    `yaml:"dial_timeout"`
	SkipCount      int    `yaml:"skip_count"`
	TimesyncPeriod int    `yaml:"timesync_period"`
	Location       string `yaml:"location"`
}

type MulticastConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	TTL     int    `yaml:"ttl"`
}

// NATSConfig is optional; the NATS publisher is only built when URL is set.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads YAML from disk, expands ${VAR} references from the
// environment, applies defaults, and validates.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Meter.ReadTimeout == 0 {
		c.Meter.ReadTimeout = 3
	}
	if c.Meter.DialTimeout == 0 {
		c.Meter.DialTimeout = 20
	}
	if c.Meter.SkipCount == 0 {
		c.Meter.SkipCount = 10
	}
	if c.Meter.TimesyncPeriod == 0 {
		c.Meter.TimesyncPeriod = 86400
	}
	if c.Meter.Location == "" {
		c.Meter.Location = "Europe/Amsterdam"
	}
	if c.Multicast.TTL == 0 {
		c.Multicast.TTL = 1
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		c.NATS.Subject = "p1.telegram"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	if c.Meter.Host == "" {
		return fmt.Errorf("meter.host is required")
	}
	if c.Meter.Port <= 0 || c.Meter.Port > 65535 {
		return fmt.Errorf("meter.port %d out of range", c.Meter.Port)
	}
	if c.Meter.TimesyncPeriod <= 0 {
		return fmt.Errorf("meter.timesync_period must be > 0")
	}
	if _, err := time.LoadLocation(c.Meter.Location); err != nil {
		return fmt.Errorf("meter.location: %w", err)
	}
	if c.Multicast.Address == "" {
		return fmt.Errorf("multicast.address is required")
	}
	if c.Multicast.Port <= 0 || c.Multicast.Port > 65535 {
		return fmt.Errorf("multicast.port %d out of range", c.Multicast.Port)
	}
	return nil
}
