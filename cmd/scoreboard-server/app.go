package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	redisAdapter "scoreboard/adapters/redis"
	sqlxAdapter "scoreboard/adapters/sqlx"
	"scoreboard/api/httpapi"
	"scoreboard/board"
	"scoreboard/config"
	"scoreboard/core"
	"scoreboard/engine"
	"scoreboard/failover"
	"scoreboard/integrations/webhook"
	"scoreboard/metrics"
)

// App aggregates the assembled server components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Manager
	Board   *board.Board
	Handler http.Handler
	Server  *http.Server
}

func provideConfig(ctx context.Context) (*config.Config, error) {
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg, os.Stdout, os.Stderr)
}

func provideMetrics(cfg *config.Config) *metrics.Manager {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.NewManager(
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithRuntimeCollectors(cfg.Metrics.CollectSystem),
		metrics.WithConstLabels(map[string]string{"environment": string(cfg.Environment)}),
	)
}

// providePrimary opens the configured persistent store. The returned cleanup closes it.
func providePrimary(ctx context.Context, cfg *config.Config) (failover.Primary, func(), error) {
	return setupPrimary(cfg)
}

func provideBoard(cfg *config.Config, logger *slog.Logger, primary failover.Primary, m *metrics.Manager) (*board.Board, func()) {
	mode := engine.DispatchSync
	if cfg.Events.Async {
		mode = engine.DispatchAsync
	}
	retry := cfg.Leaderboard.Retry
	b := board.New(
		board.WithPrimary(primary),
		board.WithDispatchMode(mode),
		board.WithEventQueue(cfg.Events.QueueSize, cfg.Events.Workers),
		board.WithRetryPolicy(failover.RetryPolicy{
			MaxAttempts:    retry.MaxAttempts,
			Step:           retry.Step,
			MaxDelay:       retry.MaxDelay,
			AttemptTimeout: retry.AttemptTimeout,
		}),
		board.WithMaxLimit(cfg.Leaderboard.MaxLimit),
		board.WithMetrics(m),
		board.WithLogger(logger),
	)
	if len(cfg.Events.Webhooks) == 0 {
		return b, b.Close
	}
	// Notify keeps delivery off the goroutine that triggered the failover, even on a sync bus.
	sink := webhook.New(cfg.Events.Webhooks,
		webhook.WithTimeout(cfg.Events.WebhookTimeout),
		webhook.WithLogger(logger),
	)
	b.Bus.Subscribe(core.EventBackendFailover, sink.Notify)
	return b, func() {
		b.Close()
		sink.Wait()
	}
}

func provideHandler(b *board.Board, cfg *config.Config, logger *slog.Logger, m *metrics.Manager) http.Handler {
	return httpapi.NewMux(b.Service, httpapi.Options{
		PathPrefix:        cfg.Server.PathPrefix,
		AllowCORSOrigin:   cfg.Server.CORSOrigin,
		StaticDir:         cfg.Server.StaticDir,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		RateLimitEnabled:  cfg.Security.EnableRateLimit,
		RateLimitRPM:      cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:    cfg.Security.RateLimit.BurstSize,
		RateLimitCleanup:  cfg.Security.RateLimit.CleanupInterval,
		Metrics:           m,
		MetricsPath:       cfg.Metrics.Path,
		Logger:            logger,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config, stdout, stderr io.Writer) *slog.Logger {
	var handler slog.Handler

	out := stdout
	if cfg.Logging.Output == "stderr" {
		out = stderr
	}

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupPrimary creates the persistent store selected by storage.adapter. The memory adapter
// has no primary: the fallback serves from the start.
func setupPrimary(cfg *config.Config) (failover.Primary, func(), error) {
	switch cfg.Storage.Adapter {
	case config.AdapterMemory:
		return nil, func() {}, nil
	case config.AdapterRedis:
		store, err := redisAdapter.New(cfg.Storage.Redis, cfg.Leaderboard.Key)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.AdapterSQL:
		store, err := sqlxAdapter.New(cfg.Storage.SQL, cfg.Leaderboard.Key)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
