// Package config loads ordersync configuration.
//
// Values come from three layers, later layers winning:
//
//  1. Default()
//  2. a YAML file (optional), read with viper
//  3. ORDERSYNC_* environment variables
//
// The merged result is validated against the embedded CUE schema.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ORDERSYNC_"

// Source kinds.
const (
	SourceHTTP   = "http"
	SourceDir    = "dir"
	SourceMemory = "memory"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the complete runtime configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store" envPrefix:"STORE_" json:"store"`
	Source    SourceConfig    `mapstructure:"source" envPrefix:"SOURCE_" json:"source"`
	Cache     CacheConfig     `mapstructure:"cache" envPrefix:"CACHE_" json:"cache"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" envPrefix:"SCHEDULER_" json:"scheduler"`
	Server    ServerConfig    `mapstructure:"server" envPrefix:"SERVER_" json:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" envPrefix:"TELEMETRY_" json:"telemetry"`
	Log       LogConfig       `mapstructure:"log" envPrefix:"LOG_" json:"log"`

	// Timezone is the IANA zone used to derive sub-order date keys.
	Timezone string `mapstructure:"timezone" env:"TIMEZONE" json:"timezone"`
}

type StoreConfig struct {
	Path string `mapstructure:"path" env:"PATH" json:"path"`
}

type SourceConfig struct {
	Kind     string `mapstructure:"kind" env:"KIND" json:"kind"`
	BaseURL  string `mapstructure:"base_url" env:"BASE_URL" json:"base_url"`
	Token    string `mapstructure:"token" env:"TOKEN" json:"token"`
	Dir      string `mapstructure:"dir" env:"DIR" json:"dir"`
	PageSize int    `mapstructure:"page_size" env:"PAGE_SIZE" json:"page_size"`
}

type CacheConfig struct {
	Backend string        `mapstructure:"backend" env:"BACKEND" json:"backend"`
	TTL     time.Duration `mapstructure:"ttl" env:"TTL" json:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis" envPrefix:"REDIS_" json:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" env:"ADDR" json:"addr"`
	Password string `mapstructure:"password" env:"PASSWORD" json:"password"`
	DB       int    `mapstructure:"db" env:"DB" json:"db"`
	Prefix   string `mapstructure:"prefix" env:"PREFIX" json:"prefix"`
}

type SchedulerConfig struct {
	Workers        int           `mapstructure:"workers" env:"WORKERS" json:"workers"`
	MaxAttempts    int           `mapstructure:"max_attempts" env:"MAX_ATTEMPTS" json:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" env:"INITIAL_BACKOFF" json:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" env:"MAX_BACKOFF" json:"max_backoff"`
	RunTimeout     time.Duration `mapstructure:"run_timeout" env:"RUN_TIMEOUT" json:"run_timeout"`
	Retention      time.Duration `mapstructure:"retention" env:"RETENTION" json:"retention"`
	Interval       time.Duration `mapstructure:"interval" env:"INTERVAL" json:"interval"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" env:"ADDR" json:"addr"`
}

type TelemetryConfig struct {
	// OTLPEndpoint enables tracing when set, e.g. http://localhost:4318.
	OTLPEndpoint string `mapstructure:"otlp_endpoint" env:"OTLP_ENDPOINT" json:"otlp_endpoint"`
}

type LogConfig struct {
	Level string `mapstructure:"level" env:"LEVEL" json:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Path: "ordersync.db"},
		Source: SourceConfig{
			Kind:     SourceDir,
			Dir:      "events",
			PageSize: 100,
		},
		Cache: CacheConfig{
			Backend: CacheMemory,
			TTL:     30 * time.Second,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "ordersync:",
			},
		},
		Scheduler: SchedulerConfig{
			Workers:        4,
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			RunTimeout:     2 * time.Minute,
			Retention:      72 * time.Hour,
			Interval:       time.Minute,
		},
		Server:   ServerConfig{Addr: ":8080"},
		Timezone: "UTC",
		Log:      LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against the schema and resolves the
// values the schema cannot express (time zone, log level).
func (c *Config) Validate() error {
	if err := validateSchema(c); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid config: timezone: %w", err)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("invalid config: log.level: %w", err)
	}
	return nil
}

// Location returns the configured time zone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, err
	}
	return level, nil
}
