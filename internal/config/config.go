// Package config loads the service configuration from a TOML file with
// HOOKBIN_* environment variable overrides.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	Limits       LimitsConfig       `mapstructure:"limits"`
	Cleanup      CleanupConfig      `mapstructure:"cleanup"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type RateLimitingConfig struct {
	// Backend selects the limiter implementation: "memory" or "redis".
	Backend           string        `mapstructure:"backend"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	BurstSize         int           `mapstructure:"burst_size"`
	PruneInterval     time.Duration `mapstructure:"prune_interval"`
	BucketIdleTTL     time.Duration `mapstructure:"bucket_idle_ttl"`
	RedisAddr         string        `mapstructure:"redis_addr"`
}

type LimitsConfig struct {
	MaxRequestsPerBin int `mapstructure:"max_requests_per_bin"`
	MaxBodySize       int `mapstructure:"max_body_size"`
	MaxHeadersSize    int `mapstructure:"max_headers_size"`
}

type CleanupConfig struct {
	BinExpiry time.Duration `mapstructure:"bin_expiry"`
	Interval  time.Duration `mapstructure:"interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)

	v.SetDefault("database.path", "hookbin.db")
	v.SetDefault("database.max_connections", 5)

	v.SetDefault("rate_limiting.backend", "memory")
	v.SetDefault("rate_limiting.requests_per_second", 2.0)
	v.SetDefault("rate_limiting.burst_size", 5)
	v.SetDefault("rate_limiting.prune_interval", "60s")
	v.SetDefault("rate_limiting.bucket_idle_ttl", "10m")
	v.SetDefault("rate_limiting.redis_addr", "localhost:6379")

	v.SetDefault("limits.max_requests_per_bin", 100)
	v.SetDefault("limits.max_body_size", 1024*1024)
	v.SetDefault("limits.max_headers_size", 1024*1024)

	v.SetDefault("cleanup.bin_expiry", "1h")
	v.SetDefault("cleanup.interval", "60s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads configuration from the given TOML file. A missing file is not an
// error: defaults plus environment overrides still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HOOKBIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
