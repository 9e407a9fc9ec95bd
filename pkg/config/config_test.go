package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimf8th/my-skool-club-sub000/pkg/observability"
	"github.com/jimf8th/my-skool-club-sub000/pkg/rbac"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "value")
	t.Setenv("TEST_BOOL_TRUE", "TRUE")
	t.Setenv("TEST_BOOL_ONE", "1")
	t.Setenv("TEST_BOOL_NO", "no")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INT_BAD", "forty-two")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_DURATION_BAD", "soon")
	t.Setenv("TEST_FLOAT", "0.25")

	assert.Equal(t, "value", getEnv("TEST_STR", "default"))
	assert.Equal(t, "default", getEnv("TEST_UNSET", "default"))

	assert.True(t, getEnvBool("TEST_BOOL_TRUE", false))
	assert.True(t, getEnvBool("TEST_BOOL_ONE", false))
	assert.False(t, getEnvBool("TEST_BOOL_NO", true))
	assert.True(t, getEnvBool("TEST_UNSET", true))

	assert.Equal(t, 42, getEnvInt("TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("TEST_INT_BAD", 7), "unparsable values keep the default")
	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))

	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", 0))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DURATION_BAD", time.Minute))

	assert.Equal(t, 0.25, getEnvFloat("TEST_FLOAT", 1))
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, rbac.PolicyFallbackFirstClub, cfg.Policy.ListPolicy())
	assert.Equal(t, observability.InfoLevel, cfg.Observability.Level())
	assert.Equal(t, "clubd", cfg.Observability.OTel().ServiceName)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CLUB_PORT", "8181")
	t.Setenv("CLUB_DB_DRIVER", "sqlite3")
	t.Setenv("CLUB_DB_URL", "file:club.db")
	t.Setenv("CLUB_REDIS_ENABLED", "true")
	t.Setenv("CLUB_REDIS_URL", "redis://cache:6379/2")
	t.Setenv("CLUB_LIST_SCOPE_POLICY", "reject")
	t.Setenv("CLUB_TOKEN_TTL", "2h")
	t.Setenv("CLUB_TOKEN_PREFIX", "club_")
	t.Setenv("CLUB_TOKEN_BYTES", "24")
	t.Setenv("CLUB_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8181", cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "file:club.db", cfg.Database.URL)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis://cache:6379/2", cfg.Redis.URL)
	assert.Equal(t, rbac.PolicyRejectForeignClub, cfg.Policy.ListPolicy())
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	format, err := cfg.Auth.TokenFormat()
	require.NoError(t, err)
	assert.Equal(t, "club_", format.Prefix)
	assert.Equal(t, 24, format.Bytes)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.Level())
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clubd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7000"
  read_timeout: 5s
database:
  driver: sqlite3
  url: "file::memory:?cache=shared"
redis:
  enabled: true
  url: redis://file-cache:6379/0
  pool_size: 4
cache:
  role_cache_ttl: 30s
policy:
  list_scope: reject
jobs:
  overdue_report: "@every 5m"
`), 0o600))

	t.Setenv("CLUB_CONFIG_FILE", path)
	t.Setenv("CLUB_PORT", "7001")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7001", cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "redis://file-cache:6379/0", cfg.Redis.URL)
	assert.Equal(t, 4, cfg.Redis.PoolSize)
	assert.Equal(t, 30*time.Second, cfg.Cache.RoleCacheTTL)
	assert.Equal(t, "reject", cfg.Policy.ListScope)
	assert.Equal(t, "@every 5m", cfg.Jobs.OverdueReportSpec)
	assert.Equal(t, "@hourly", cfg.Jobs.TokenCleanupSpec, "unset keys keep defaults")
}

func TestLoadConfig_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))
	t.Setenv("CLUB_CONFIG_FILE", path)

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")

	t.Setenv("CLUB_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"same ports", func(c *Config) { c.Server.HealthPort = c.Server.Port }, "must be different"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "unsupported database driver"},
		{"missing db url", func(c *Config) { c.Database.URL = "" }, "database URL is required"},
		{"redis without url", func(c *Config) { c.Redis.Enabled = true; c.Redis.URL = "" }, "redis URL is required"},
		{"zero cache", func(c *Config) { c.Cache.RoleCacheSize = 0 }, "role cache size"},
		{"bad policy", func(c *Config) { c.Policy.ListScope = "maybe" }, "invalid list scope policy"},
		{"negative ttl", func(c *Config) { c.Auth.TokenTTL = -time.Second }, "token TTL"},
		{"bcrypt cost", func(c *Config) { c.Auth.BcryptCost = 2 }, "bcrypt cost"},
		{"rate", func(c *Config) { c.Auth.LoginRatePerMin = 0 }, "rate limits"},
		{"token prefix", func(c *Config) { c.Auth.TokenPrefix = "Club" }, "token prefix"},
		{"token size", func(c *Config) { c.Auth.TokenBytes = 4 }, "token size"},
		{"bad cron", func(c *Config) { c.Jobs.OverdueReportSpec = "every tuesday" }, "invalid overdue report schedule"},
		{"otel endpoint", func(c *Config) { c.Observability.OTelEnabled = true; c.Observability.OTelEndpoint = "" }, "OpenTelemetry endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.errMsg), "got %q", err.Error())
		})
	}

	t.Run("disabled jobs skip schedule checks", func(t *testing.T) {
		cfg := Default()
		cfg.Jobs.Enabled = false
		cfg.Jobs.OverdueReportSpec = "garbage"
		assert.NoError(t, cfg.Validate())
	})
}
