package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/jimf8th/my-skool-club-sub000/pkg/auth"
	"github.com/jimf8th/my-skool-club-sub000/pkg/observability"
	"github.com/jimf8th/my-skool-club-sub000/pkg/rbac"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      storage.Config      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Cache         CacheConfig         `yaml:"cache"`
	Policy        PolicyConfig        `yaml:"policy"`
	Auth          AuthConfig          `yaml:"auth"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// RedisConfig enables the shared role cache and distributed rate limiting
type RedisConfig struct {
	storage.RedisConfig `yaml:",inline"`

	Enabled bool `yaml:"enabled"`
}

// CacheConfig sizes the in-process role-set cache
type CacheConfig struct {
	RoleCacheSize int           `yaml:"role_cache_size"`
	RoleCacheTTL  time.Duration `yaml:"role_cache_ttl"`
}

// PolicyConfig holds authorization policy switches
type PolicyConfig struct {
	// ListScope is "fallback" (list the caller's first club) or "reject" (Forbidden)
	ListScope string `yaml:"list_scope"`
}

// AuthConfig holds token and login settings
type AuthConfig struct {
	TokenTTL         time.Duration `yaml:"token_ttl"`
	BcryptCost       int           `yaml:"bcrypt_cost"`
	LoginRatePerMin  int           `yaml:"login_rate_per_min"`
	CallerRatePerMin int           `yaml:"caller_rate_per_min"`
	TokenPrefix      string        `yaml:"token_prefix"`
	TokenBytes       int           `yaml:"token_bytes"`
}

// TokenFormat returns the bearer token shape for newly issued tokens
func (a AuthConfig) TokenFormat() (auth.TokenFormat, error) {
	return auth.NewTokenFormat(a.TokenPrefix, a.TokenBytes)
}

// JobsConfig holds cron schedules for background jobs
type JobsConfig struct {
	Enabled           bool   `yaml:"enabled"`
	OverdueReportSpec string `yaml:"overdue_report"`
	TokenCleanupSpec  string `yaml:"token_cleanup"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"` // Use insecure gRPC connection
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel converts the settings for observability.InitOTel
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// ListPolicy returns the parsed list-scope policy
func (p PolicyConfig) ListPolicy() rbac.ListPolicy {
	policy, err := rbac.ParseListPolicy(p.ListScope)
	if err != nil {
		return rbac.PolicyFallbackFirstClub
	}
	return policy
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			HealthPort:      "9090",
		},
		Database: storage.DefaultConfig(),
		Redis: RedisConfig{
			RedisConfig: storage.RedisConfig{URL: "redis://localhost:6379/0"},
		},
		Cache: CacheConfig{
			RoleCacheSize: 10000,
			RoleCacheTTL:  time.Minute,
		},
		Policy: PolicyConfig{ListScope: string(rbac.PolicyFallbackFirstClub)},
		Auth: AuthConfig{
			TokenTTL:         24 * time.Hour,
			BcryptCost:       12,
			LoginRatePerMin:  10,
			CallerRatePerMin: 600,
			TokenPrefix:      auth.DefaultTokenPrefix,
			TokenBytes:       auth.DefaultTokenBytes,
		},
		Jobs: JobsConfig{
			Enabled:           true,
			OverdueReportSpec: "*/15 * * * *",
			TokenCleanupSpec:  "@hourly",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "clubd",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1.0,
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by CLUB_CONFIG_FILE, and CLUB_* environment variables, in that order.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CLUB_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("CLUB_HOST", s.Host)
	s.Port = getEnv("CLUB_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("CLUB_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("CLUB_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("CLUB_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("CLUB_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxBodyBytes = getEnvInt64("CLUB_MAX_BODY_BYTES", s.MaxBodyBytes)
	s.HealthPort = getEnv("CLUB_HEALTH_PORT", s.HealthPort)

	d := &c.Database
	d.Driver = getEnv("CLUB_DB_DRIVER", d.Driver)
	d.URL = getEnv("CLUB_DB_URL", d.URL)
	d.MaxOpenConns = getEnvInt("CLUB_DB_MAX_OPEN_CONNS", d.MaxOpenConns)
	d.MaxIdleConns = getEnvInt("CLUB_DB_MAX_IDLE_CONNS", d.MaxIdleConns)
	d.ConnMaxLifetime = getEnvDuration("CLUB_DB_CONN_MAX_LIFETIME", d.ConnMaxLifetime)
	d.Timeout = getEnvDuration("CLUB_DB_TIMEOUT", d.Timeout)

	r := &c.Redis
	r.Enabled = getEnvBool("CLUB_REDIS_ENABLED", r.Enabled)
	r.URL = getEnv("CLUB_REDIS_URL", r.URL)
	r.Password = getEnv("CLUB_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("CLUB_REDIS_DB", r.DB)
	r.MaxRetries = getEnvInt("CLUB_REDIS_MAX_RETRIES", r.MaxRetries)
	r.PoolSize = getEnvInt("CLUB_REDIS_POOL_SIZE", r.PoolSize)

	c.Cache.RoleCacheSize = getEnvInt("CLUB_ROLE_CACHE_SIZE", c.Cache.RoleCacheSize)
	c.Cache.RoleCacheTTL = getEnvDuration("CLUB_ROLE_CACHE_TTL", c.Cache.RoleCacheTTL)

	c.Policy.ListScope = getEnv("CLUB_LIST_SCOPE_POLICY", c.Policy.ListScope)

	a := &c.Auth
	a.TokenTTL = getEnvDuration("CLUB_TOKEN_TTL", a.TokenTTL)
	a.BcryptCost = getEnvInt("CLUB_BCRYPT_COST", a.BcryptCost)
	a.LoginRatePerMin = getEnvInt("CLUB_LOGIN_RATE_PER_MIN", a.LoginRatePerMin)
	a.CallerRatePerMin = getEnvInt("CLUB_CALLER_RATE_PER_MIN", a.CallerRatePerMin)
	a.TokenPrefix = getEnv("CLUB_TOKEN_PREFIX", a.TokenPrefix)
	a.TokenBytes = getEnvInt("CLUB_TOKEN_BYTES", a.TokenBytes)

	j := &c.Jobs
	j.Enabled = getEnvBool("CLUB_JOBS_ENABLED", j.Enabled)
	j.OverdueReportSpec = getEnv("CLUB_JOBS_OVERDUE_REPORT", j.OverdueReportSpec)
	j.TokenCleanupSpec = getEnv("CLUB_JOBS_TOKEN_CLEANUP", j.TokenCleanupSpec)

	o := &c.Observability
	o.LogLevel = getEnv("CLUB_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("CLUB_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("CLUB_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("CLUB_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("CLUB_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("CLUB_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("CLUB_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("CLUB_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if _, err := c.Database.Dialect(); err != nil {
		return err
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required when redis is enabled")
	}
	if c.Cache.RoleCacheSize <= 0 {
		return fmt.Errorf("role cache size must be positive")
	}

	if _, err := rbac.ParseListPolicy(c.Policy.ListScope); err != nil {
		return err
	}

	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("token TTL must not be negative")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost must be between 4 and 31, got %d", c.Auth.BcryptCost)
	}
	if c.Auth.LoginRatePerMin <= 0 || c.Auth.CallerRatePerMin <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if _, err := c.Auth.TokenFormat(); err != nil {
		return err
	}

	if c.Jobs.Enabled {
		for name, spec := range map[string]string{
			"overdue report": c.Jobs.OverdueReportSpec,
			"token cleanup":  c.Jobs.TokenCleanupSpec,
		} {
			if _, err := cron.ParseStandard(spec); err != nil {
				return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
			}
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
