package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./data/hermes.db", cfg.Database.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.True(t, cfg.Auth.UpgradeLegacy)
	assert.Equal(t, time.Minute, cfg.Cache.UserTTL)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 30, cfg.Feed.DefaultPageSize)
	assert.Equal(t, 10000, cfg.Cache.MaxEntries)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hermes.yaml")
	content := `
server:
  port: 9000
database:
  driver: postgres
  host: db.internal
  user: social
  database: social
logging:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("HERMES_AUTH_BCRYPT_COST", "12")
	t.Setenv("HERMES_REDIS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "host=db.internal port=5432 user=social password= dbname=social sslmode=prefer", cfg.Database.DSN())
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Driver: "sqlite", Path: "x.db"},
			Auth:     AuthConfig{BcryptCost: 10},
			Feed:     FeedConfig{DefaultPageSize: 30, MaxPageSize: 100},
			Logging:  LoggingConfig{Level: "info", Format: "json"},
			Metrics:  MetricsConfig{Enabled: true, Port: 9091},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "bad driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "database.driver"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "postgres without host", mutate: func(c *Config) { c.Database.Driver = "postgres" }, wantErr: "database.host"},
		{name: "bcrypt cost", mutate: func(c *Config) { c.Auth.BcryptCost = 3 }, wantErr: "auth.bcrypt_cost"},
		{name: "page sizes", mutate: func(c *Config) { c.Feed.MaxPageSize = 10 }, wantErr: "feed.default_page_size"},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "logging.level"},
		{name: "log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
		{name: "metrics port clash", mutate: func(c *Config) { c.Metrics.Port = 8080 }, wantErr: "metrics.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: 70000},
		Database: DatabaseConfig{Driver: DriverPostgres},
		Auth:     AuthConfig{BcryptCost: 10},
		Feed:     FeedConfig{DefaultPageSize: 30, MaxPageSize: 100},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"server.port", "database.host", "database.user", "database.database"} {
		assert.Contains(t, err.Error(), want)
	}
}
