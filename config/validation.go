package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	var errs []string

	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, "port must be between 0 and 65535")
	}
	if s.PathPrefix != "" && !strings.HasPrefix(s.PathPrefix, "/") {
		errs = append(errs, "path_prefix must start with /")
	}
	if s.ReadTimeout <= 0 {
		errs = append(errs, "read_timeout must be positive")
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, "write_timeout must be positive")
	}
	if s.IdleTimeout <= 0 {
		errs = append(errs, "idle_timeout must be positive")
	}
	if s.ReadHeaderTimeout <= 0 {
		errs = append(errs, "read_header_timeout must be positive")
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "shutdown_timeout must be positive")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates storage configuration; only the selected adapter's section is checked.
func (s *StorageConfig) Validate() error {
	validAdapters := []string{AdapterRedis, AdapterSQL, AdapterMemory}
	if !slices.Contains(validAdapters, s.Adapter) {
		return fmt.Errorf("adapter must be one of: %s", strings.Join(validAdapters, ", "))
	}

	switch s.Adapter {
	case AdapterRedis:
		if err := s.Redis.Validate(); err != nil {
			return fmt.Errorf("redis config: %w", err)
		}
	case AdapterSQL:
		if err := s.SQL.Validate(); err != nil {
			return fmt.Errorf("sql config: %w", err)
		}
	}
	return nil
}

// Validate validates the leaderboard section.
func (l *LeaderboardConfig) Validate() error {
	var errs []string

	if strings.TrimSpace(l.Key) == "" {
		errs = append(errs, "key cannot be empty")
	}
	if l.MaxLimit <= 0 {
		errs = append(errs, "max_limit must be positive")
	}
	if l.Retry.MaxAttempts <= 0 {
		errs = append(errs, "retry.max_attempts must be positive")
	}
	if l.Retry.Step <= 0 {
		errs = append(errs, "retry.step must be positive")
	}
	if l.Retry.MaxDelay < l.Retry.Step {
		errs = append(errs, "retry.max_delay must be >= retry.step")
	}
	if l.Retry.AttemptTimeout < 0 {
		errs = append(errs, "retry.attempt_timeout cannot be negative")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates the event bus settings.
func (e *EventsConfig) Validate() error {
	var errs []string
	if e.Async && e.QueueSize <= 0 {
		errs = append(errs, "queue_size must be positive when async")
	}
	if e.Async && e.Workers <= 0 {
		errs = append(errs, "workers must be positive when async")
	}
	for _, hook := range e.Webhooks {
		u, err := url.Parse(hook)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("webhook %q must be an absolute http(s) URL", hook))
		}
	}
	if len(e.Webhooks) > 0 && e.WebhookTimeout <= 0 {
		errs = append(errs, "webhook_timeout must be positive when webhooks are set")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	var errs []string

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, l.Level) {
		errs = append(errs, fmt.Sprintf("level must be one of: %s", strings.Join(validLevels, ", ")))
	}

	validFormats := []string{"json", "text"}
	if !slices.Contains(validFormats, l.Format) {
		errs = append(errs, fmt.Sprintf("format must be one of: %s", strings.Join(validFormats, ", ")))
	}

	validOutputs := []string{"stdout", "stderr"}
	if !slices.Contains(validOutputs, l.Output) {
		errs = append(errs, fmt.Sprintf("output must be one of: %s", strings.Join(validOutputs, ", ")))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates metrics configuration
func (m *MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	var errs []string
	if !strings.HasPrefix(m.Path, "/") {
		errs = append(errs, "path must start with / when metrics are enabled")
	}
	if m.Namespace == "" {
		errs = append(errs, "namespace cannot be empty when metrics are enabled")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates security settings.
func (s *SecurityConfig) Validate() error {
	if !s.EnableRateLimit {
		return nil
	}
	var errs []string
	if s.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, "rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
	}
	if s.RateLimit.BurstSize <= 0 {
		errs = append(errs, "rate_limit.burst_size must be > 0 when rate limiting is enabled")
	}
	if s.RateLimit.CleanupInterval <= 0 {
		errs = append(errs, "rate_limit.cleanup_interval must be positive when rate limiting is enabled")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
