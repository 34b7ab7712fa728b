// Package config loads application settings from defaults, an optional
// config file, an optional .env file and UNSPLASH_* environment variables,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. UNSPLASH_API_ACCESS_KEY.
const EnvPrefix = "UNSPLASH"

// Config holds application configuration.
type Config struct {
	API       APIConfig
	Cache     CacheConfig
	Search    SearchConfig
	Favorites FavoritesConfig
	Redis     RedisConfig
	Log       LogConfig
	Server    ServerConfig
}

// APIConfig holds Unsplash API settings.
type APIConfig struct {
	AccessKey          string        `mapstructure:"access_key"`
	BaseURL            string        `mapstructure:"base_url"`
	UserAgent          string        `mapstructure:"user_agent"`
	MinRequestInterval time.Duration `mapstructure:"min_request_interval"`
	QuotaWindow        time.Duration `mapstructure:"quota_window"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// CacheConfig holds image cache ceilings and download limits.
type CacheConfig struct {
	MaxEntries int   `mapstructure:"max_entries"`
	MaxBytes   int64 `mapstructure:"max_bytes"`

	// ImageHosts lists the hosts images may be fetched from.
	ImageHosts []string `mapstructure:"image_hosts"`

	// MaxImageBytes caps one image download; 0 derives it from MaxBytes.
	MaxImageBytes int64 `mapstructure:"max_image_bytes"`
}

// SearchConfig holds pagination settings.
type SearchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
	PerPage  int           `mapstructure:"per_page"`
}

// FavoritesConfig holds favorites persistence settings.
type FavoritesConfig struct {
	SaveDelay time.Duration `mapstructure:"save_delay"`
	RedisKey  string        `mapstructure:"redis_key"`
}

// RedisConfig holds the Redis connection. An empty Addr keeps favorites in memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// ServerConfig holds the HTTP proxy settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Options controls where Load looks for input.
type Options struct {
	// ConfigFile is an explicit config file path. Empty searches
	// ./unsplash.{yaml,toml,json}; a missing file is not an error.
	ConfigFile string

	// EnvFile is a dotenv file merged into the environment. Empty tries
	// ./.env; a missing file is not an error.
	EnvFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.access_key", "")
	v.SetDefault("api.base_url", "https://api.unsplash.com/")
	v.SetDefault("api.user_agent", "unsplash-client/0.1.0")
	v.SetDefault("api.min_request_interval", 100*time.Millisecond)
	v.SetDefault("api.quota_window", time.Hour)
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.max_bytes", 640*1024*1024)
	v.SetDefault("cache.image_hosts", []string{"images.unsplash.com", "plus.unsplash.com"})
	v.SetDefault("cache.max_image_bytes", 0)
	v.SetDefault("search.debounce", 500*time.Millisecond)
	v.SetDefault("search.per_page", 30)
	v.SetDefault("favorites.save_delay", 250*time.Millisecond)
	v.SetDefault("favorites.redis_key", "unsplash:favorite_authors")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("server.addr", ":8080")
}

// Load reads configuration and validates it.
func Load(opts Options) (Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("unsplash")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return c, nil
}

// loadEnvFile merges a dotenv file into the process environment without
// overriding variables that are already set.
func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration is usable. The access key is not
// checked here; commands that call the API require it via RequireAccessKey.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("invalid api.base_url: %q", c.API.BaseURL)
	}
	if c.API.UserAgent == "" {
		return fmt.Errorf("api.user_agent is required")
	}
	if c.API.MinRequestInterval < 0 {
		return fmt.Errorf("api.min_request_interval must be >= 0 (got %s)", c.API.MinRequestInterval)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be > 0 (got %s)", c.API.Timeout)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be > 0 (got %d)", c.Cache.MaxEntries)
	}
	for _, h := range c.Cache.ImageHosts {
		if strings.TrimSpace(h) == "" {
			return fmt.Errorf("cache.image_hosts must not contain empty entries")
		}
	}
	if c.Cache.MaxImageBytes < 0 {
		return fmt.Errorf("cache.max_image_bytes must be >= 0 (got %d)", c.Cache.MaxImageBytes)
	}
	if c.Search.PerPage < 1 || c.Search.PerPage > 30 {
		return fmt.Errorf("search.per_page must be between 1 and 30 (got %d)", c.Search.PerPage)
	}
	if c.Search.Debounce < 0 {
		return fmt.Errorf("search.debounce must be >= 0 (got %s)", c.Search.Debounce)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	return nil
}

// RequireAccessKey returns an error if no API access key is configured.
func (c *Config) RequireAccessKey() error {
	if c.API.AccessKey == "" {
		return fmt.Errorf("api.access_key is required (set %s_API_ACCESS_KEY)", EnvPrefix)
	}
	return nil
}
