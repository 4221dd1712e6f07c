package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"scoreboard/adapters/redis"
	"scoreboard/adapters/sqlx"
)

const (
	// EnvPrefix prefixes every environment override. A double underscore nests:
	// SCOREBOARD_SERVER__PORT sets server.port.
	EnvPrefix = "SCOREBOARD_"
	// ConfigFileEnv names an optional YAML or JSON file layered over the defaults.
	ConfigFileEnv = "SCOREBOARD_CONFIG"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Storage adapters.
const (
	AdapterRedis  = "redis"
	AdapterSQL    = "sql"
	AdapterMemory = "memory"
)

// Config holds the complete application configuration
type Config struct {
	Environment Environment `json:"environment" koanf:"environment"`

	Server      ServerConfig      `json:"server" koanf:"server"`
	Storage     StorageConfig     `json:"storage" koanf:"storage"`
	Leaderboard LeaderboardConfig `json:"leaderboard" koanf:"leaderboard"`
	Events      EventsConfig      `json:"events" koanf:"events"`
	Logging     LoggingConfig     `json:"logging" koanf:"logging"`
	Metrics     MetricsConfig     `json:"metrics" koanf:"metrics"`
	Security    SecurityConfig    `json:"security" koanf:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host              string        `json:"host" koanf:"host"`
	Port              int           `json:"port" koanf:"port"`
	PathPrefix        string        `json:"path_prefix" koanf:"path_prefix"`
	CORSOrigin        string        `json:"cors_origin" koanf:"cors_origin"`
	StaticDir         string        `json:"static_dir" koanf:"static_dir"`
	TrustProxyHeaders bool          `json:"trust_proxy_headers" koanf:"trust_proxy_headers"`
	ReadTimeout       time.Duration `json:"read_timeout" koanf:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout" koanf:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout" koanf:"idle_timeout"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" koanf:"shutdown_timeout"`
}

// Address is the listen address built from host and port.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// StorageConfig selects the primary store. "memory" runs without a primary.
type StorageConfig struct {
	Adapter string       `json:"adapter" koanf:"adapter"`
	Redis   redis.Config `json:"redis" koanf:"redis"`
	SQL     sqlx.Config  `json:"sql" koanf:"sql"`
}

// LeaderboardConfig holds the board identity, read limits and the startup retry policy.
type LeaderboardConfig struct {
	Key      string      `json:"key" koanf:"key"`
	MaxLimit int         `json:"max_limit" koanf:"max_limit"`
	Retry    RetryConfig `json:"retry" koanf:"retry"`
	// WaitForPrimary blocks startup until the connection loop has finished.
	WaitForPrimary bool `json:"wait_for_primary" koanf:"wait_for_primary"`
}

// RetryConfig bounds the primary connection attempts.
type RetryConfig struct {
	MaxAttempts    int           `json:"max_attempts" koanf:"max_attempts"`
	Step           time.Duration `json:"step" koanf:"step"`
	MaxDelay       time.Duration `json:"max_delay" koanf:"max_delay"`
	AttemptTimeout time.Duration `json:"attempt_timeout" koanf:"attempt_timeout"`
}

// EventsConfig controls the in-process event bus.
type EventsConfig struct {
	Async     bool `json:"async" koanf:"async"`
	QueueSize int  `json:"queue_size" koanf:"queue_size"`
	Workers   int  `json:"workers" koanf:"workers"`

	// Webhooks receive backend_failover events. A comma-separated value is accepted from the environment.
	Webhooks       []string      `json:"webhooks" koanf:"webhooks"`
	WebhookTimeout time.Duration `json:"webhook_timeout" koanf:"webhook_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" koanf:"level"`
	Format     string            `json:"format" koanf:"format"`
	Output     string            `json:"output" koanf:"output"`
	Attributes map[string]string `json:"attributes,omitempty" koanf:"attributes"`
}

// MetricsConfig holds metrics and monitoring configuration
type MetricsConfig struct {
	Enabled       bool   `json:"enabled" koanf:"enabled"`
	Path          string `json:"path" koanf:"path"`
	Namespace     string `json:"namespace" koanf:"namespace"`
	CollectSystem bool   `json:"collect_system" koanf:"collect_system"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" koanf:"enable_rate_limit"`
	RateLimit       RateLimitConfig `json:"rate_limit" koanf:"rate_limit"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute" koanf:"requests_per_minute"`
	BurstSize         int           `json:"burst_size" koanf:"burst_size"`
	CleanupInterval   time.Duration `json:"cleanup_interval" koanf:"cleanup_interval"`
}

// Load layers, from lowest to highest precedence: defaults, the file named by
// SCOREBOARD_CONFIG, the bare PORT and REDIS_URL variables, and SCOREBOARD_* variables.
func Load() (*Config, error) {
	return load(os.Getenv(ConfigFileEnv))
}

// LoadFromFile is Load with an explicit config file.
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}
	return load(path)
}

func load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := validateConfigPath(path); err != nil {
			return nil, fmt.Errorf("invalid config file path: %w", err)
		}
		// YAML is a superset of JSON, so one parser covers both formats.
		if err := k.Load(file.Provider(filepath.Clean(path)), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		if err := k.Set("server.port", port); err != nil {
			return nil, fmt.Errorf("failed to apply PORT: %w", err)
		}
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		if err := k.Set("storage.redis.url", redisURL); err != nil {
			return nil, fmt.Errorf("failed to apply REDIS_URL: %w", err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Events.Webhooks = splitList(cfg.Events.Webhooks)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	switch strings.ToLower(filepath.Ext(cleanPath)) {
	case ".yaml", ".yml", ".json":
	default:
		return errors.New("config file must have a .yaml, .yml or .json extension")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Port:              3000,
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: AdapterRedis,
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(sqlx.DriverPostgres),
		},
		Leaderboard: LeaderboardConfig{
			Key:      "game:leaderboard",
			MaxLimit: 10,
			Retry: RetryConfig{
				MaxAttempts:    20,
				Step:           100 * time.Millisecond,
				MaxDelay:       3 * time.Second,
				AttemptTimeout: 3 * time.Second,
			},
		},
		Events: EventsConfig{
			Async:          true,
			QueueSize:      1024,
			Workers:        2,
			WebhookTimeout: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			Path:          "/metrics",
			Namespace:     "scoreboard",
			CollectSystem: true,
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 120,
				BurstSize:         20,
				CleanupInterval:   5 * time.Minute,
			},
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}
	if err := c.Leaderboard.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("leaderboard config: %v", err))
	}
	if err := c.Events.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("events config: %v", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("metrics config: %v", err))
	}
	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c

	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if u, err := url.Parse(cfg.Storage.Redis.URL); err == nil {
		cfg.Storage.Redis.URL = u.Redacted()
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
