// Package board assembles a ready-to-use leaderboard: event bus, in-memory fallback,
// failover controller and service, with an optional persistent primary.
package board

import (
	"context"
	"log/slog"

	mem "scoreboard/adapters/memory"
	"scoreboard/core"
	"scoreboard/engine"
	"scoreboard/failover"
	"scoreboard/metrics"
)

// Option configures the Board builder.
type Option func(*config)

type config struct {
	primary  failover.Primary
	mode     engine.DispatchMode
	busOpts  []engine.BusOption
	ctrlOpts []failover.Option
	svcOpts  []engine.ServiceOption
	metrics  *metrics.Manager
	logger   *slog.Logger
}

// WithPrimary sets the persistent store. Without one the board runs on the fallback only.
func WithPrimary(p failover.Primary) Option { return func(c *config) { c.primary = p } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithEventQueue sizes the async event queue and its worker pool.
func WithEventQueue(size, workers int) Option {
	return func(c *config) {
		c.busOpts = append(c.busOpts, engine.WithQueueSize(size), engine.WithWorkers(workers))
	}
}

// WithRetryPolicy sets the primary connection retry policy.
func WithRetryPolicy(p failover.RetryPolicy) Option {
	return func(c *config) { c.ctrlOpts = append(c.ctrlOpts, failover.WithRetryPolicy(p)) }
}

// WithMaxLimit caps leaderboard reads.
func WithMaxLimit(n int) Option {
	return func(c *config) { c.svcOpts = append(c.svcOpts, engine.WithMaxLimit(n)) }
}

// WithMetrics records events, backend calls and dropped events on m.
func WithMetrics(m *metrics.Manager) Option { return func(c *config) { c.metrics = m } }

// WithLogger sets the logger used by the controller and event logging.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// Board holds the assembled components.
type Board struct {
	Service    *engine.LeaderboardService
	Controller *failover.Controller
	Bus        *engine.EventBus
}

// New builds a Board. Defaults:
//   - primary: none, the in-memory fallback serves from the start
//   - dispatch: async
func New(opts ...Option) *Board {
	cfg := &config{mode: engine.DispatchAsync, logger: slog.Default()}
	for _, o := range opts {
		o(cfg)
	}

	busOpts := cfg.busOpts
	if cfg.metrics != nil {
		busOpts = append(busOpts, engine.WithDropHandler(cfg.metrics.RecordEventDropped))
	}
	bus := engine.NewEventBus(cfg.mode, busOpts...)

	ctrlOpts := append([]failover.Option{
		failover.WithLogger(cfg.logger),
		failover.WithOnFailover(func(from, reason string) {
			bus.Publish(context.Background(), core.NewBackendFailover(from, reason))
		}),
	}, cfg.ctrlOpts...)
	ctrl := failover.New(cfg.primary, mem.New(), ctrlOpts...)

	svcOpts := cfg.svcOpts
	if cfg.metrics != nil {
		svcOpts = append(svcOpts, engine.WithObserver(cfg.metrics))
		bus.Subscribe(core.EventScoreSubmitted, cfg.metrics.HandleEvent)
		bus.Subscribe(core.EventBackendFailover, cfg.metrics.HandleEvent)
		cfg.metrics.SetFallbackActive(ctrl.Health() == failover.FallbackActive)
	}
	svc := engine.NewLeaderboardService(ctrl, bus, svcOpts...)

	log := cfg.logger
	bus.Subscribe(core.EventScoreSubmitted, func(ctx context.Context, e core.Event) {
		log.DebugContext(ctx, "score submitted", "player", e.Player, "score", e.Score, "updated", e.Updated, "backend", e.Backend)
	})

	return &Board{Service: svc, Controller: ctrl, Bus: bus}
}

// Start begins connecting to the primary in the background.
func (b *Board) Start(ctx context.Context) { b.Controller.Start(ctx) }

// Close stops the connection loop and drains the event bus.
func (b *Board) Close() {
	b.Controller.Stop()
	b.Service.Close()
}
