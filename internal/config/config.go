// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ScrapeConfig governs the web scraping pipeline: discovery bounds plus the
// request gate's politeness knobs.
type ScrapeConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	UserAgent      string `mapstructure:"user_agent"`
	MaxDepth       int    `mapstructure:"max_depth"`
	MaxPages       int    `mapstructure:"max_pages"`
	MaxConcurrent  int    `mapstructure:"max_concurrent"`
	RequestDelayMs int    `mapstructure:"request_delay_ms"`
	MaxRetries     int    `mapstructure:"max_retries"`
	TimeoutMs      int    `mapstructure:"timeout_ms"`
}

// GitHubConfig points the repository client at the color-data repository.
type GitHubConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	Owner              string `mapstructure:"owner"`
	Repo               string `mapstructure:"repo"`
	Token              string `mapstructure:"token"`
	TimeoutMs          int    `mapstructure:"timeout_ms"`
	MaxRetries         int    `mapstructure:"max_retries"`
	RateLimitThreshold int    `mapstructure:"rate_limit_threshold"`
}

// CacheConfig selects the cache backend and its TTL.
type CacheConfig struct {
	Backend    string `mapstructure:"backend"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
	RedisAddr  string `mapstructure:"redis_addr"`
	RedisDB    int    `mapstructure:"redis_db"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Backend  string `mapstructure:"backend"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COLORSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("scrape.base_url", "https://sanzo-wada.dgtlmoon.com")
	v.SetDefault("scrape.user_agent", "colorsync-bot/0.1")
	v.SetDefault("scrape.max_depth", 2)
	v.SetDefault("scrape.max_pages", 50)
	v.SetDefault("scrape.max_concurrent", 1)
	v.SetDefault("scrape.request_delay_ms", 2000)
	v.SetDefault("scrape.max_retries", 3)
	v.SetDefault("scrape.timeout_ms", 30000)
	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.owner", "sanzolab")
	v.SetDefault("github.repo", "sanzo-colors")
	v.SetDefault("github.timeout_ms", 30000)
	v.SetDefault("github.max_retries", 3)
	v.SetDefault("github.rate_limit_threshold", 10)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("database.backend", "memory")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scrape.BaseURL == "" {
		return fmt.Errorf("scrape.base_url is required")
	}
	if c.Scrape.MaxConcurrent <= 0 {
		return fmt.Errorf("scrape.max_concurrent must be > 0")
	}
	if c.Scrape.TimeoutMs <= 0 {
		return fmt.Errorf("scrape.timeout_ms must be > 0")
	}
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("cache.backend must be memory or redis")
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be > 0")
	}
	if c.Database.Backend != "memory" && c.Database.Backend != "postgres" {
		return fmt.Errorf("database.backend must be memory or postgres")
	}
	if c.Database.Backend == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must be set when database.backend is postgres")
	}
	return nil
}

// RequestDelay returns the configured inter-request delay.
func (c Config) RequestDelay() time.Duration {
	return time.Duration(c.Scrape.RequestDelayMs) * time.Millisecond
}

// ScrapeTimeout returns the per-request timeout for the scrape gate.
func (c Config) ScrapeTimeout() time.Duration {
	return time.Duration(c.Scrape.TimeoutMs) * time.Millisecond
}

// GitHubTimeout returns the repository client timeout.
func (c Config) GitHubTimeout() time.Duration {
	return time.Duration(c.GitHub.TimeoutMs) * time.Millisecond
}

// CacheTTL returns the cache entry lifetime.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}
