package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// StoreConfig describes the host storefront this service syncs from.
type StoreConfig struct {
	URL string `mapstructure:"url"`
}

// RemoteConfig configures the recommendation service client.
type RemoteConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

// SyncConfig configures the queue/dispatcher subsystem.
type SyncConfig struct {
	ChunkSize        int           `mapstructure:"chunk_size"`
	BatchLimit       int           `mapstructure:"batch_limit"`
	PassesPerTick    int           `mapstructure:"passes_per_tick"`
	DispatchInterval time.Duration `mapstructure:"dispatch_interval"`
	ResyncInterval   time.Duration `mapstructure:"resync_interval"`
	Retention        time.Duration `mapstructure:"retention"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
	ResyncSchedule   string        `mapstructure:"resync_schedule"`
	CleanupSchedule  string        `mapstructure:"cleanup_schedule"`
	CancelledStateID int           `mapstructure:"cancelled_state_id"`
	SecretKey        string        `mapstructure:"secret_key"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Store     StoreConfig     `mapstructure:"store"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Sync      SyncConfig      `mapstructure:"sync"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// envOverrides are applied on top of the file config so deployments can
// inject secrets without editing config.yml.
type envOverrides struct {
	DatabasePassword string `envconfig:"DB_PASSWORD"`
	RedisURL         string `envconfig:"REDIS_URL"`
	StoreURL         string `envconfig:"STORE_URL"`
	RemoteBaseURL    string `envconfig:"REMOTE_BASE_URL"`
	JWTSecret        string `envconfig:"JWT_SECRET"`
	SyncSecretKey    string `envconfig:"SYNC_SECRET_KEY"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/app/config")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("storesync", &env); err != nil {
		return nil, fmt.Errorf("failed to read env overrides: %w", err)
	}
	if env.DatabasePassword != "" {
		config.Database.Password = env.DatabasePassword
	}
	if env.RedisURL != "" {
		config.Redis.URL = env.RedisURL
	}
	if env.StoreURL != "" {
		config.Store.URL = env.StoreURL
	}
	if env.RemoteBaseURL != "" {
		config.Remote.BaseURL = env.RemoteBaseURL
	}
	if env.JWTSecret != "" {
		config.JWT.Secret = env.JWTSecret
	}
	if env.SyncSecretKey != "" {
		config.Sync.SecretKey = env.SyncSecretKey
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Sync.ChunkSize <= 0 {
		c.Sync.ChunkSize = 200
	}
	if c.Sync.BatchLimit <= 0 {
		c.Sync.BatchLimit = 200
	}
	if c.Sync.PassesPerTick <= 0 {
		c.Sync.PassesPerTick = 1
	}
	if c.Sync.DispatchInterval <= 0 {
		c.Sync.DispatchInterval = 20 * time.Second
	}
	if c.Sync.ResyncInterval <= 0 {
		c.Sync.ResyncInterval = time.Hour
	}
	if c.Sync.Retention <= 0 {
		c.Sync.Retention = 72 * time.Hour
	}
	if c.Sync.CleanupInterval <= 0 {
		c.Sync.CleanupInterval = 12 * time.Hour
	}
	if c.Sync.ResyncSchedule == "" {
		c.Sync.ResyncSchedule = "@every 1h"
	}
	if c.Sync.CleanupSchedule == "" {
		c.Sync.CleanupSchedule = "@every 12h"
	}
	if c.Sync.CancelledStateID == 0 {
		c.Sync.CancelledStateID = 6
	}
	if c.Remote.RequestTimeout <= 0 {
		c.Remote.RequestTimeout = 30 * time.Second
	}
	if c.Remote.MaxRetries <= 0 {
		c.Remote.MaxRetries = 3
	}
	if c.Remote.RateLimit <= 0 {
		c.Remote.RateLimit = 10
	}
	if c.Remote.RateBurst <= 0 {
		c.Remote.RateBurst = 20
	}
}
