package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// StoreDriver selects the entity store implementation. The driver is an
// explicit constructor-time value: there is no runtime toggle inside the
// engine, and fallback between stores is the embedding application's policy.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Booking  BookingConfig  `mapstructure:"booking"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Email    EmailConfig    `mapstructure:"email"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type BookingConfig struct {
	// MinGapMinutes is the minimum spacing between two appointments for
	// the same doctor and date. One global value; per-specialty windows
	// are deliberately not modelled.
	MinGapMinutes int `mapstructure:"min_gap_minutes"`
	// InflightTTL bounds how long a booking submission suppresses
	// identical re-submissions.
	InflightTTL time.Duration `mapstructure:"inflight_ttl"`
}

type RelayConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	PublishRate   float64       `mapstructure:"publish_rate"`
	PublishBurst  int           `mapstructure:"publish_burst"`
}

type EmailConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	From      string `mapstructure:"from"`
	ReceiptTo string `mapstructure:"receipt_to"`
}

// envOverrides take precedence over the config file, mirroring deployment
// environments where only a handful of values differ.
type envOverrides struct {
	StoreDriver  string `envconfig:"STORE_DRIVER"`
	DatabaseHost string `envconfig:"DATABASE_HOST"`
	RedisURL     string `envconfig:"REDIS_URL"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetDefault("store.driver", StoreMemory)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.retry_backoff", time.Second)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 2)
	viper.SetDefault("booking.min_gap_minutes", 15)
	viper.SetDefault("booking.inflight_ttl", 30*time.Second)
	viper.SetDefault("relay.batch_size", 100)
	viper.SetDefault("relay.poll_interval", 5*time.Second)
	viper.SetDefault("relay.retry_attempts", 3)
	viper.SetDefault("relay.retry_delay", 5*time.Second)
	viper.SetDefault("relay.publish_rate", 50)
	viper.SetDefault("relay.publish_burst", 10)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine: defaults plus env cover the library use.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("healtheasy", &env); err != nil {
		return nil, fmt.Errorf("failed to read env overrides: %w", err)
	}
	if env.StoreDriver != "" {
		config.Store.Driver = env.StoreDriver
	}
	if env.DatabaseHost != "" {
		config.Database.Host = env.DatabaseHost
	}
	if env.RedisURL != "" {
		config.Redis.URL = env.RedisURL
	}

	return &config, nil
}
