// Package config loads the hub daemon's configuration: a YAML file with
// defaults filled in, then environment variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the hub daemon configuration.
type Config struct {
	Listen         string        `yaml:"listen"`         // HTTP listen address, e.g. ":7070"
	Path           string        `yaml:"path"`           // WebSocket endpoint path
	ExpectedOrigin string        `yaml:"expectedOrigin"` // "*" accepts any origin (insecure)
	RequestTimeout time.Duration `yaml:"requestTimeout"` // 0 disables the timeout middleware

	Backend   BackendConfig   `yaml:"backend"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Etcd      EtcdConfig      `yaml:"etcd"`
}

type BackendConfig struct {
	Driver string `yaml:"driver"` // "memory" or "sqlite"
	Path   string `yaml:"path"`   // sqlite database file
}

type RateLimitConfig struct {
	Rate  float64 `yaml:"rate"` // requests per second; 0 disables
	Burst int     `yaml:"burst"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // expose prometheus metrics at /metrics
}

type EtcdConfig struct {
	Endpoints     []string `yaml:"endpoints"` // empty disables registration
	Name          string   `yaml:"name"`      // logical hub name
	AdvertiseAddr string   `yaml:"advertiseAddr"`
	TTL           int64    `yaml:"ttl"`
}

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	return Config{
		Listen:         ":7070",
		Path:           "/channel",
		ExpectedOrigin: "*",
		Backend:        BackendConfig{Driver: "memory"},
		RateLimit:      RateLimitConfig{Burst: 1},
		Etcd:           EtcdConfig{Name: "kvbridge", TTL: 10},
	}
}

// Load reads the YAML file at path (skipped when path is empty or the file
// is missing), merges it over the defaults, and applies env overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Backend.Driver != "memory" && cfg.Backend.Driver != "sqlite" {
		return cfg, fmt.Errorf("unknown backend driver %q", cfg.Backend.Driver)
	}
	if cfg.Backend.Driver == "sqlite" && cfg.Backend.Path == "" {
		return cfg, fmt.Errorf("sqlite backend needs backend.path")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KVBRIDGE_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("KVBRIDGE_EXPECTED_ORIGIN"); v != "" {
		cfg.ExpectedOrigin = v
	}
	if v := os.Getenv("KVBRIDGE_BACKEND_DRIVER"); v != "" {
		cfg.Backend.Driver = v
	}
	if v := os.Getenv("KVBRIDGE_BACKEND_PATH"); v != "" {
		cfg.Backend.Path = v
	}
	if v := os.Getenv("KVBRIDGE_RATE_LIMIT"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit.Rate = rate
		}
	}
	if v := os.Getenv("KVBRIDGE_METRICS"); v != "" {
		cfg.Metrics.Enabled = v == "1" || v == "true"
	}
}
