// Package config loads and validates the backend configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the AGD_ prefix (e.g. AGD_DATABASE_HOST
// overrides database.host in the YAML). The same binary runs with a config.yaml
// in local development and with pure environment variables in containerized
// deployments.
//
// The redis section is optional by design: when no Redis address is configured
// the rate-limiting counter store runs on its in-process fallback instead of
// failing startup. Missing Redis is a degraded mode, not an error.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Name               string        `mapstructure:"name"`
	User               string        `mapstructure:"user"`
	Password           string        `mapstructure:"password"`
	SSLMode            string        `mapstructure:"ssl_mode"`
	MaxConnections     int           `mapstructure:"max_connections"`
	MinIdleConnections int           `mapstructure:"min_idle_connections"`
	AcquireTimeout     time.Duration `mapstructure:"acquire_timeout"`
}

// DSN builds the lib/pq connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig holds the counter-store backend configuration. An empty Host
// means "no Redis": the counter store falls back to its in-process map.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis backend is configured.
func (r *RedisConfig) Enabled() bool { return r.Host != "" }

// Addr returns the host:port address for the Redis client.
func (r *RedisConfig) Addr() string { return fmt.Sprintf("%s:%d", r.Host, r.Port) }

// AuthConfig holds the settings for consuming already-issued JWTs. Token
// issuance lives in the identity service; this backend only validates.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// SecurityConfig holds rate limiting and enumeration-guard policy.
type SecurityConfig struct {
	RateLimiting     RateLimitingConfig     `mapstructure:"rate_limiting"`
	EnumerationGuard EnumerationGuardConfig `mapstructure:"enumeration_guard"`
}

// RateLimitingConfig holds the thresholds for the named limiter tiers.
type RateLimitingConfig struct {
	Enabled bool `mapstructure:"enabled"`

	GeneralIPMax    int           `mapstructure:"general_ip_max"`
	GeneralIPWindow time.Duration `mapstructure:"general_ip_window"`
	PerUserMax      int           `mapstructure:"per_user_max"`
	PerUserWindow   time.Duration `mapstructure:"per_user_window"`
	PerOrgMax       int           `mapstructure:"per_org_max"`
	PerOrgWindow    time.Duration `mapstructure:"per_org_window"`
	AuthIPMax       int           `mapstructure:"auth_ip_max"`
	AuthIPWindow    time.Duration `mapstructure:"auth_ip_window"`
	APIKeyMax       int           `mapstructure:"api_key_max"`
	APIKeyWindow    time.Duration `mapstructure:"api_key_window"`
	HeavyUserMax    int           `mapstructure:"heavy_user_max"`
	HeavyUserWindow time.Duration `mapstructure:"heavy_user_window"`
}

// EnumerationGuardConfig bounds how often the public tenant resolvers may be
// probed for a single organization id. The threshold is policy, not protocol,
// so it is configurable rather than a constant.
type EnumerationGuardConfig struct {
	MaxProbes int           `mapstructure:"max_probes"`
	Window    time.Duration `mapstructure:"window"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// Load reads configuration from the given path (or ./config.yaml when empty),
// applies environment overrides, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/agendly")
	}

	v.SetEnvPrefix("AGD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine (env-only deployments); anything else
		// (unparseable YAML, unreadable file) is a startup failure.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "agendly")
	v.SetDefault("database.user", "agendly")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)
	v.SetDefault("database.acquire_timeout", 5*time.Second)

	// redis.host deliberately has no default: absence selects the in-process
	// fallback counter store.
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.general_ip_max", 10)
	v.SetDefault("security.rate_limiting.general_ip_window", 15*time.Minute)
	v.SetDefault("security.rate_limiting.per_user_max", 300)
	v.SetDefault("security.rate_limiting.per_user_window", time.Minute)
	v.SetDefault("security.rate_limiting.per_org_max", 1200)
	v.SetDefault("security.rate_limiting.per_org_window", time.Minute)
	v.SetDefault("security.rate_limiting.auth_ip_max", 10)
	v.SetDefault("security.rate_limiting.auth_ip_window", time.Minute)
	v.SetDefault("security.rate_limiting.api_key_max", 600)
	v.SetDefault("security.rate_limiting.api_key_window", time.Minute)
	v.SetDefault("security.rate_limiting.heavy_user_max", 10)
	v.SetDefault("security.rate_limiting.heavy_user_window", time.Minute)

	v.SetDefault("security.enumeration_guard.max_probes", 30)
	v.SetDefault("security.enumeration_guard.window", time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("database.max_connections must be positive, got %d", c.Database.MaxConnections)
	}
	if c.Database.AcquireTimeout <= 0 {
		return fmt.Errorf("database.acquire_timeout must be positive, got %s", c.Database.AcquireTimeout)
	}
	if c.Security.EnumerationGuard.MaxProbes <= 0 {
		return fmt.Errorf("security.enumeration_guard.max_probes must be positive, got %d", c.Security.EnumerationGuard.MaxProbes)
	}
	if c.Security.EnumerationGuard.Window <= 0 {
		return fmt.Errorf("security.enumeration_guard.window must be positive, got %s", c.Security.EnumerationGuard.Window)
	}
	return nil
}
