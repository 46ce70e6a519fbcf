// Package config loads Hermes settings from an optional YAML file and
// HERMES_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. HERMES_SERVER_PORT.
const EnvPrefix = "HERMES"

// Supported values for database.driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the root of the settings tree shared by every Hermes binary.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig configures the public API listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxBodySize caps request bodies in bytes.
	MaxBodySize int64 `mapstructure:"max_body_size"`
}

// Addr joins Host and Port for net/http.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig selects and tunes the relational store.
// Host through ConnMaxIdleTime apply to postgres; Path through SynchronousMode to sqlite.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`

	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	Path            string `mapstructure:"path"`
	JournalMode     string `mapstructure:"journal_mode"`
	BusyTimeout     int    `mapstructure:"busy_timeout"` // ms
	CacheSize       int    `mapstructure:"cache_size"`   // pages, or KiB when negative
	SynchronousMode string `mapstructure:"synchronous_mode"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN renders the libpq keyword/value string pgx expects.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig points at the shared cache and lock server.
// With Enabled false both fall back to process memory.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig controls the read-through user cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	UserTTL time.Duration `mapstructure:"user_ttl"`

	// MaxEntries bounds the in-process cache; ignored when Redis backs it.
	MaxEntries int `mapstructure:"max_entries"`
}

// AuthConfig controls password hashing and HTTP Basic.
type AuthConfig struct {
	BcryptCost int `mapstructure:"bcrypt_cost"`

	// UpgradeLegacy rehashes legacy or under-cost credentials after a good login.
	UpgradeLegacy  bool          `mapstructure:"upgrade_legacy"`
	UpgradeLockTTL time.Duration `mapstructure:"upgrade_lock_ttl"`

	Realm string `mapstructure:"realm"`
}

type FeedConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig exposes Prometheus on a listener separate from the API.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// defaults seeds viper so every key is known to AutomaticEnv.
var defaults = map[string]any{
	"server.host":             "0.0.0.0",
	"server.port":             8080,
	"server.read_timeout":     15 * time.Second,
	"server.write_timeout":    30 * time.Second,
	"server.idle_timeout":     2 * time.Minute,
	"server.shutdown_timeout": 30 * time.Second,
	"server.max_body_size":    1 << 20,

	"database.driver":             DriverSQLite,
	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "hermes",
	"database.password":           "",
	"database.database":           "hermes",
	"database.ssl_mode":           "prefer",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  5 * time.Minute,
	"database.conn_max_idle_time": 5 * time.Minute,
	"database.path":               "./data/hermes.db",
	"database.journal_mode":       "WAL",
	"database.busy_timeout":       5000,
	"database.cache_size":         -2000,
	"database.synchronous_mode":   "NORMAL",
	"database.auto_migrate":       true,

	"redis.enabled":       false,
	"redis.host":          "localhost",
	"redis.port":          6379,
	"redis.password":      "",
	"redis.db":            0,
	"redis.pool_size":     10,
	"redis.dial_timeout":  5 * time.Second,
	"redis.read_timeout":  3 * time.Second,
	"redis.write_timeout": 3 * time.Second,
	"redis.key_prefix":    "hermes:",

	"cache.enabled":     true,
	"cache.user_ttl":    time.Minute,
	"cache.max_entries": 10000,

	"auth.bcrypt_cost":      10,
	"auth.upgrade_legacy":   true,
	"auth.upgrade_lock_ttl": 10 * time.Second,
	"auth.realm":            "hermes",

	"feed.default_page_size": 30,
	"feed.max_page_size":     100,

	"logging.level":       "info",
	"logging.format":      "json",
	"logging.output":      "stdout",
	"logging.time_format": time.RFC3339,

	"metrics.enabled": true,
	"metrics.port":    9091,
	"metrics.path":    "/metrics",
}

// searchPaths are tried in order for config.yaml when no path is given.
var searchPaths = []string{".", "./configs", "/etc/hermes"}

// Load builds a Config from defaults, then the file at path (or config.yaml
// found on searchPaths), then HERMES_* variables, and validates the result.
// A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, dir := range searchPaths {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var (
	logLevels  = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	logFormats = []string{"json", "console"}
)

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var problems []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port <= 65535,
		"server.port %d is outside 1-65535", c.Server.Port)

	switch c.Database.Driver {
	case DriverPostgres:
		check(c.Database.Host != "", "database.host is required for %s", DriverPostgres)
		check(c.Database.User != "", "database.user is required for %s", DriverPostgres)
		check(c.Database.Database != "", "database.database is required for %s", DriverPostgres)
	case DriverSQLite:
		check(c.Database.Path != "", "database.path is required for %s", DriverSQLite)
	default:
		check(false, "database.driver %q is not one of %s, %s", c.Database.Driver, DriverSQLite, DriverPostgres)
	}

	check(!c.Redis.Enabled || c.Redis.Host != "", "redis.host is required when redis.enabled is set")

	check(c.Auth.BcryptCost >= 4 && c.Auth.BcryptCost <= 31,
		"auth.bcrypt_cost %d is outside 4-31", c.Auth.BcryptCost)

	check(c.Feed.DefaultPageSize > 0 && c.Feed.DefaultPageSize <= c.Feed.MaxPageSize,
		"feed.default_page_size %d must be positive and at most feed.max_page_size %d",
		c.Feed.DefaultPageSize, c.Feed.MaxPageSize)

	check(slices.Contains(logLevels, strings.ToLower(c.Logging.Level)),
		"logging.level %q is not one of %s", c.Logging.Level, strings.Join(logLevels, ", "))
	check(slices.Contains(logFormats, strings.ToLower(c.Logging.Format)),
		"logging.format %q is not one of %s", c.Logging.Format, strings.Join(logFormats, ", "))

	check(!c.Metrics.Enabled || c.Metrics.Port != c.Server.Port,
		"metrics.port %d collides with server.port", c.Metrics.Port)

	return errors.Join(problems...)
}
