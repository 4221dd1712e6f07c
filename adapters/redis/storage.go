package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"scoreboard/core"
	"scoreboard/leaderboard"

	"github.com/redis/go-redis/v9"
)

// Strategy selects how UpsertIfGreater talks to Redis.
type Strategy string

const (
	// StrategyNative uses ZADD GT CH, a single atomic keep-max write (Redis >= 6.2).
	StrategyNative Strategy = "native"
	// StrategyCompare reads ZSCORE and then writes with ZADD. Two round trips, not atomic.
	StrategyCompare Strategy = "compare"
)

// Config holds Redis connection configuration
type Config struct {
	URL          string        `json:"url" koanf:"url"`
	Strategy     Strategy      `json:"strategy" koanf:"strategy"`
	PoolSize     int           `json:"pool_size" koanf:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns" koanf:"min_idle_conns"`
	MaxRetries   int           `json:"max_retries" koanf:"max_retries"`
	DialTimeout  time.Duration `json:"dial_timeout" koanf:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" koanf:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" koanf:"write_timeout"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		Strategy:     StrategyNative,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Validate checks the URL and strategy.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("url cannot be empty")
	}
	if _, err := redis.ParseURL(c.URL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	switch c.Strategy {
	case StrategyNative, StrategyCompare:
		return nil
	default:
		return fmt.Errorf("strategy must be one of: %s, %s", StrategyNative, StrategyCompare)
	}
}

// Store keeps the leaderboard in one sorted set:
// - {key} -> ZSET member=player id, score=best score
//
// With StrategyCompare two concurrent submissions for the same player can both pass the
// comparison against a stale read, and the later write may store the smaller value.
// That window is accepted for a casual leaderboard; use StrategyNative where available.
type Store struct {
	client   *redis.Client
	key      string
	strategy Strategy
}

// New creates a Redis-backed leaderboard. The client connects lazily; use Ping to check
// reachability.
func New(config Config, key string) (*Store, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.MinIdleConns > 0 {
		opts.MinIdleConns = config.MinIdleConns
	}
	if config.MaxRetries != 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.DialTimeout > 0 {
		opts.DialTimeout = config.DialTimeout
	}
	if config.ReadTimeout > 0 {
		opts.ReadTimeout = config.ReadTimeout
	}
	if config.WriteTimeout > 0 {
		opts.WriteTimeout = config.WriteTimeout
	}
	return NewWithClient(redis.NewClient(opts), key, config.Strategy), nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client, key string, strategy Strategy) *Store {
	if strategy == "" {
		strategy = StrategyNative
	}
	return &Store{client: client, key: key, strategy: strategy}
}

func (s *Store) Name() string { return "redis" }

// Ping checks that the server answers.
func (s *Store) Ping(ctx context.Context) error {
	return classify("ping", s.client.Ping(ctx).Err())
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// UpsertIfGreater stores score for player unless the stored score is already >= score.
func (s *Store) UpsertIfGreater(ctx context.Context, player core.PlayerID, score float64) (core.UpdateOutcome, error) {
	p, err := core.ValidateEntry(player, score)
	if err != nil {
		return core.UpdateOutcome{}, err
	}
	if s.strategy == StrategyCompare {
		return s.compareAndSet(ctx, p, score)
	}

	changed, err := s.client.ZAddArgs(ctx, s.key, redis.ZAddArgs{
		GT:      true,
		Ch:      true,
		Members: []redis.Z{{Score: score, Member: string(p)}},
	}).Result()
	if err != nil {
		return core.UpdateOutcome{}, classify("zadd", err)
	}
	return core.UpdateOutcome{Updated: changed > 0}, nil
}

func (s *Store) compareAndSet(ctx context.Context, p core.PlayerID, score float64) (core.UpdateOutcome, error) {
	current, err := s.client.ZScore(ctx, s.key, string(p)).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return core.UpdateOutcome{}, classify("zscore", err)
	case score <= current:
		return core.UpdateOutcome{Updated: false}, nil
	}

	if err := s.client.ZAdd(ctx, s.key, redis.Z{Score: score, Member: string(p)}).Err(); err != nil {
		return core.UpdateOutcome{}, classify("zadd", err)
	}
	return core.UpdateOutcome{Updated: true}, nil
}

// TopK issues a single ZREVRANGE ... WITHSCORES over the leaderboard key.
func (s *Store) TopK(ctx context.Context, k int) ([]core.ScoreEntry, error) {
	if k <= 0 {
		return []core.ScoreEntry{}, nil
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, s.key, 0, int64(k-1)).Result()
	if err != nil {
		return nil, classify("zrevrange", err)
	}
	return decodeEntries(zs), nil
}

func decodeEntries(zs []redis.Z) []core.ScoreEntry {
	out := make([]core.ScoreEntry, 0, len(zs))
	for _, z := range zs {
		var member string
		switch m := z.Member.(type) {
		case string:
			member = m
		default:
			member = fmt.Sprint(m)
		}
		out = append(out, core.ScoreEntry{Player: core.PlayerID(member), Score: z.Score})
	}
	return out
}

// classify tags err with the shared error kind so the failover layer can tell a dead
// connection from a failed command.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConnectivityError(err) {
		return fmt.Errorf("redis %s: %w: %w", op, core.ErrBackendConnectivity, err)
	}
	return fmt.Errorf("redis %s: %w: %w", op, core.ErrBackendOperation, err)
}

func isConnectivityError(err error) bool {
	switch {
	case errors.Is(err, redis.ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

var _ leaderboard.OrderedScoreSet = (*Store)(nil)
