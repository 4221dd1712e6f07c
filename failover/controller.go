// Package failover decides which leaderboard backend serves each call.
//
// The controller starts optimistic, with the primary store considered available, and
// probes it in the background with a bounded retry. It switches to the in-memory fallback
// when the retries run out or when a live call reports a connectivity failure. The switch
// is one-way: once on the fallback the process stays there, even if the primary comes back.
package failover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"scoreboard/core"
	"scoreboard/leaderboard"
)

// Health is the process-wide backend state.
type Health string

const (
	PrimaryAvailable Health = "primary-available"
	FallbackActive   Health = "fallback-active"
)

// Primary is a persistent backend that can be probed for reachability.
type Primary interface {
	leaderboard.OrderedScoreSet
	Ping(ctx context.Context) error
}

// RetryPolicy bounds the startup connection attempts. The delay before attempt n+1 is
// min(n*Step, MaxDelay).
type RetryPolicy struct {
	MaxAttempts    int
	Step           time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy waits 100ms, 200ms, ... capped at 3s, for 20 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    20,
		Step:           100 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		AttemptTimeout: 3 * time.Second,
	}
}

// FailoverFunc observes the switch to the fallback. from is the primary's name.
type FailoverFunc func(from, reason string)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger (defaults to slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRetryPolicy overrides the startup retry policy.
func WithRetryPolicy(p RetryPolicy) Option { return func(c *Controller) { c.policy = p } }

// WithOnFailover registers a hook run once, synchronously, when the fallback takes over.
func WithOnFailover(fn FailoverFunc) Option {
	return func(c *Controller) {
		if fn != nil {
			c.hooks = append(c.hooks, fn)
		}
	}
}

// Controller owns the primary/fallback pair and the health state machine.
type Controller struct {
	primary  Primary
	fallback leaderboard.OrderedScoreSet
	guarded  *guardedSet
	policy   RetryPolicy
	log      *slog.Logger
	hooks    []FailoverFunc

	state    atomic.Value // Health
	attempts atomic.Int64

	mu     sync.Mutex
	reason string
	start  sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a controller. A nil primary means there is nothing to connect to and the
// fallback serves from the start.
func New(primary Primary, fallback leaderboard.OrderedScoreSet, opts ...Option) *Controller {
	if fallback == nil {
		panic("failover.New requires a non-nil fallback")
	}
	c := &Controller{
		primary:  primary,
		fallback: fallback,
		policy:   DefaultRetryPolicy(),
		log:      slog.Default(),
		cancel:   func() {},
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.state.Store(PrimaryAvailable)
	if primary == nil {
		c.state.Store(FallbackActive)
		c.reason = "no primary configured"
		close(c.done)
		c.start.Do(func() {})
		return c
	}
	c.guarded = &guardedSet{c: c}
	return c
}

// Start launches the background connection loop. It returns immediately; calls made
// while the loop runs go to the primary.
func (c *Controller) Start(ctx context.Context) {
	c.start.Do(func() {
		loopCtx, cancel := context.WithCancel(ctx)
		c.mu.Lock()
		c.cancel = cancel
		c.mu.Unlock()
		go func() {
			defer close(c.done)
			defer cancel()
			_ = c.connect(loopCtx)
		}()
	})
}

// Connect runs the connection loop in the caller's goroutine. It returns nil once the
// primary answers, or the last error after the fallback took over.
func (c *Controller) Connect(ctx context.Context) error {
	if c.primary == nil {
		return nil
	}
	var err error = errors.New("connect already started")
	c.start.Do(func() {
		defer close(c.done)
		err = c.connect(ctx)
	})
	return err
}

// Wait blocks until the connection loop has finished or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop aborts a running connection loop without changing the health state.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	cancel()
}

func (c *Controller) connect(ctx context.Context) error {
	name := leaderboard.NameOf(c.primary)
	c.log.Info("connecting to primary leaderboard store", "backend", name, "max_attempts", c.policy.MaxAttempts)

	errAbandoned := errors.New("fallback already active")
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if c.Health() == FallbackActive {
			return struct{}{}, backoff.Permanent(errAbandoned)
		}
		c.attempts.Add(1)
		return struct{}{}, c.ping(ctx)
	},
		backoff.WithBackOff(newLinearBackOff(c.policy.Step, c.policy.MaxDelay)),
		backoff.WithMaxTries(uint(max(c.policy.MaxAttempts, 1))),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("primary leaderboard store unavailable, retrying",
				"backend", name, "attempt", c.attempts.Load(), "retry_in", next, "error", err)
		}),
	)
	switch {
	case err == nil:
		c.log.Info("connected to primary leaderboard store", "backend", name, "attempts", c.attempts.Load())
		return nil
	case errors.Is(err, errAbandoned):
		return err
	case ctx.Err() != nil:
		c.log.Info("primary connection loop stopped", "backend", name, "error", ctx.Err())
		return ctx.Err()
	}
	c.Failover(fmt.Sprintf("could not connect after %d attempts: %v", c.attempts.Load(), err))
	return err
}

func (c *Controller) ping(ctx context.Context) error {
	if c.policy.AttemptTimeout <= 0 {
		return c.primary.Ping(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, c.policy.AttemptTimeout)
	defer cancel()
	return c.primary.Ping(attemptCtx)
}

// Failover moves the process onto the fallback. Only the first call has any effect; it
// reports whether this call performed the switch.
func (c *Controller) Failover(reason string) bool {
	if !c.state.CompareAndSwap(PrimaryAvailable, FallbackActive) {
		return false
	}
	c.mu.Lock()
	c.reason = reason
	cancel := c.cancel
	c.mu.Unlock()
	cancel()

	from := leaderboard.NameOf(c.primary)
	c.log.Warn("falling back to in-memory leaderboard; scores will not persist",
		"from", from, "to", leaderboard.NameOf(c.fallback), "reason", reason)
	for _, h := range c.hooks {
		h(from, reason)
	}
	return true
}

// Health returns the current state.
func (c *Controller) Health() Health {
	return c.state.Load().(Health)
}

// Reason explains why the fallback is active; empty while the primary serves.
func (c *Controller) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Attempts reports how many connection probes have been made.
func (c *Controller) Attempts() int { return int(c.attempts.Load()) }

// ActiveBackend resolves the backend for a single call. Callers must not keep the result
// across calls, so a failover takes effect on the very next one.
func (c *Controller) ActiveBackend() leaderboard.OrderedScoreSet {
	if c.Health() == FallbackActive {
		return c.fallback
	}
	return c.guarded
}

// guardedSet forwards to the primary. A connectivity failure flips the controller and the
// same call is replayed once on the fallback; other failures are returned as they are.
type guardedSet struct{ c *Controller }

func (g *guardedSet) Name() string { return leaderboard.NameOf(g.c.primary) }

func (g *guardedSet) UpsertIfGreater(ctx context.Context, player core.PlayerID, score float64) (core.UpdateOutcome, error) {
	out, err := g.c.primary.UpsertIfGreater(ctx, player, score)
	if err != nil && errors.Is(err, core.ErrBackendConnectivity) {
		g.c.Failover(err.Error())
		return g.c.fallback.UpsertIfGreater(ctx, player, score)
	}
	return out, err
}

func (g *guardedSet) TopK(ctx context.Context, k int) ([]core.ScoreEntry, error) {
	entries, err := g.c.primary.TopK(ctx, k)
	if err != nil && errors.Is(err, core.ErrBackendConnectivity) {
		g.c.Failover(err.Error())
		return g.c.fallback.TopK(ctx, k)
	}
	return entries, err
}
