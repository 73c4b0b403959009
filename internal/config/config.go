// Package config provides configuration management for Floodgate.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SERVER_PORT)
// 3. Default values
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Batcher   BatcherConfig   `mapstructure:"batcher"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Consumer  ConsumerConfig  `mapstructure:"consumer"`
	Stats     StatsConfig     `mapstructure:"stats"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	URL string `mapstructure:"url"`

	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RateLimitConfig contains sliding-window admission limits.
type RateLimitConfig struct {
	Window         time.Duration `mapstructure:"window"`
	LimitPerWindow int           `mapstructure:"limit_per_window"`
}

// BatcherConfig contains batched stream writer settings.
type BatcherConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// StreamConfig contains the event stream settings.
type StreamConfig struct {
	Name   string `mapstructure:"name"`
	Group  string `mapstructure:"group"`
	MaxLen int64  `mapstructure:"max_len"`
}

// ConsumerConfig contains stream worker settings.
type ConsumerConfig struct {
	ReadCount  int64         `mapstructure:"read_count"`
	BlockWait  time.Duration `mapstructure:"block_wait"`
	RetryPause time.Duration `mapstructure:"retry_pause"`
}

// StatsConfig contains live aggregator settings.
type StatsConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	RecentLimit  int           `mapstructure:"recent_limit"`
	HistorySize  int           `mapstructure:"history_size"`
}

// WorkerConfig contains goroutine pool settings.
type WorkerConfig struct {
	GeneralPoolSize   int `mapstructure:"general_pool_size"`
	BroadcastPoolSize int `mapstructure:"broadcast_pool_size"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// Load reads configuration from file and environment variables.
// Standard environment variables without prefix (DATABASE_URL, SERVER_PORT, etc.).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/floodgate")

	// Maps nested config: ratelimit.limit_per_window → RATELIMIT_LIMIT_PER_WINDOW
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("ratelimit.window must be positive")
	}
	if c.RateLimit.LimitPerWindow <= 0 {
		return fmt.Errorf("ratelimit.limit_per_window must be positive")
	}
	if c.Batcher.BatchSize <= 0 {
		return fmt.Errorf("batcher.batch_size must be positive")
	}
	if c.Batcher.FlushInterval <= 0 {
		return fmt.Errorf("batcher.flush_interval must be positive")
	}
	if c.Stream.Name == "" || c.Stream.Group == "" {
		return fmt.Errorf("stream.name and stream.group must not be empty")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "floodgate")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "analytics")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", true)

	// Redis
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Rate limit: 1000 events per user per minute
	v.SetDefault("ratelimit.window", "60s")
	v.SetDefault("ratelimit.limit_per_window", 1000)

	// Batcher
	v.SetDefault("batcher.batch_size", 500)
	v.SetDefault("batcher.flush_interval", "50ms")

	// Stream
	v.SetDefault("stream.name", "events:stream")
	v.SetDefault("stream.group", "analytics-workers")
	v.SetDefault("stream.max_len", 1000000)

	// Consumer
	v.SetDefault("consumer.read_count", 100)
	v.SetDefault("consumer.block_wait", "1s")
	v.SetDefault("consumer.retry_pause", "1s")

	// Stats
	v.SetDefault("stats.tick_interval", "1s")
	v.SetDefault("stats.recent_limit", 10)
	v.SetDefault("stats.history_size", 60)

	// Worker pools
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.broadcast_pool_size", 50)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
