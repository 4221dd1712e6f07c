package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"scoreboard/core"
	"scoreboard/failover"
	"scoreboard/leaderboard"
)

// LeaderboardService is the façade the HTTP layer talks to. It validates input, resolves
// the active backend on every call and announces accepted submissions on the event bus.
type LeaderboardService struct {
	backends Backends
	bus      *EventBus
	maxLimit int
	observer Observer
	reads    singleflight.Group

	// writes counts accepted updates; it keys read flights so a read never joins one
	// that started before a write it has already observed.
	writes atomic.Uint64
}

// sharedReadTimeout bounds a coalesced backend read, which runs detached from any one
// caller's context.
const sharedReadTimeout = 10 * time.Second

// Observer is told about every backend call the service makes.
type Observer interface {
	ObserveBackend(operation, backend string, d time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) ObserveBackend(string, string, time.Duration, error) {}

// ServiceOption configures a LeaderboardService.
type ServiceOption func(*LeaderboardService)

// WithObserver reports backend latency and errors to o.
func WithObserver(o Observer) ServiceOption {
	return func(s *LeaderboardService) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithMaxLimit caps the number of entries a single read may return.
func WithMaxLimit(n int) ServiceOption {
	return func(s *LeaderboardService) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

func NewLeaderboardService(backends Backends, bus *EventBus, opts ...ServiceOption) *LeaderboardService {
	if backends == nil || bus == nil {
		panic("NewLeaderboardService requires non-nil backends and bus")
	}
	s := &LeaderboardService{backends: backends, bus: bus, maxLimit: leaderboard.DefaultLimit, observer: noopObserver{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe convenience method.
func (s *LeaderboardService) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

// SubmitScore records score for player if it beats the player's stored best.
func (s *LeaderboardService) SubmitScore(ctx context.Context, player core.PlayerID, score float64) (core.UpdateOutcome, error) {
	normalized, err := core.ValidateEntry(player, score)
	if err != nil {
		return core.UpdateOutcome{}, err
	}
	start := time.Now()
	out, err := s.backends.ActiveBackend().UpsertIfGreater(ctx, normalized, score)
	// Resolved again so a failover during the call is attributed to the fallback.
	backend := leaderboard.NameOf(s.backends.ActiveBackend())
	s.observer.ObserveBackend("upsert", backend, time.Since(start), err)
	if err != nil {
		return core.UpdateOutcome{}, err
	}
	if out.Updated {
		s.writes.Add(1)
	}
	s.bus.Publish(ctx, core.NewScoreSubmitted(normalized, score, out.Updated, backend))
	return out, nil
}

// Limit applies the read defaults: non-positive means leaderboard.DefaultLimit, and
// anything above the configured maximum is clamped.
func (s *LeaderboardService) Limit(limit int) int {
	if limit <= 0 {
		limit = leaderboard.DefaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	return limit
}

// TopScores returns up to limit entries, best first. Identical concurrent reads share one
// backend round trip, but only with reads that began after the same last accepted write.
// Each caller stops waiting when its own ctx ends; the shared call keeps going for the others.
func (s *LeaderboardService) TopScores(ctx context.Context, limit int) ([]core.ScoreEntry, error) {
	k := s.Limit(limit)
	key := fmt.Sprintf("%d/%d", s.writes.Load(), k)
	ch := s.reads.DoChan(key, func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedReadTimeout)
		defer cancel()
		start := time.Now()
		entries, err := s.backends.ActiveBackend().TopK(readCtx, k)
		s.observer.ObserveBackend("top_k", leaderboard.NameOf(s.backends.ActiveBackend()), time.Since(start), err)
		return entries, err
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		shared := res.Val.([]core.ScoreEntry)
		out := make([]core.ScoreEntry, len(shared))
		copy(out, shared)
		return out, nil
	}
}

// HealthReport describes which backend is serving.
type HealthReport struct {
	Backend string          `json:"backend"`
	Mode    failover.Health `json:"mode"`
}

func (s *LeaderboardService) Health(_ context.Context) HealthReport {
	return HealthReport{
		Backend: leaderboard.NameOf(s.backends.ActiveBackend()),
		Mode:    s.backends.Health(),
	}
}

func (s *LeaderboardService) Close() { s.bus.Close() }
