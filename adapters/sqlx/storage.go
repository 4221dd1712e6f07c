package sqlx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"scoreboard/core"
	"scoreboard/leaderboard"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Driver names the database/sql driver.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
	DriverSQLite   Driver = "sqlite"
)

// Config holds SQL connection configuration
type Config struct {
	Driver          Driver        `json:"driver" koanf:"driver"`
	DSN             string        `json:"dsn" koanf:"dsn"`
	MaxOpenConns    int           `json:"max_open_conns" koanf:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" koanf:"conn_max_lifetime"`
	AutoMigrate     bool          `json:"auto_migrate" koanf:"auto_migrate"`
}

// DefaultConfig returns defaults for the given driver.
func DefaultConfig(d Driver) Config {
	cfg := Config{
		Driver:          d,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		AutoMigrate:     true,
	}
	switch d {
	case DriverPostgres:
		cfg.DSN = "postgres://localhost:5432/scoreboard?sslmode=disable"
	case DriverMySQL:
		cfg.DSN = "root@tcp(localhost:3306)/scoreboard"
	case DriverSQLite:
		cfg.DSN = "file:scoreboard.db"
		// a single connection keeps :memory: databases coherent and avoids SQLITE_BUSY
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
	}
	return cfg
}

// Validate checks driver and DSN.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("driver must be one of: %s, %s, %s", DriverPostgres, DriverMySQL, DriverSQLite)
	}
	if c.DSN == "" {
		return errors.New("dsn cannot be empty")
	}
	return nil
}

// Store keeps the leaderboard in one table; board holds the fixed leaderboard name so the
// layout mirrors a single sorted set.
//
//	leaderboard_scores(board, player, score, updated_at) PRIMARY KEY (board, player)
//
// The keep-max upsert is a single statement, so concurrent submissions cannot lose updates.
type Store struct {
	db          *sqlx.DB
	driver      Driver
	board       string
	autoMigrate bool
	now         func() time.Time

	mu       sync.Mutex
	migrated bool
}

// New opens a connection pool. Nothing is dialed until Ping.
func New(config Config, board string) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	db, err := sqlx.Open(string(config.Driver), config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", config.Driver, err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	s := NewWithDB(db, config.Driver, board)
	s.autoMigrate = config.AutoMigrate
	return s, nil
}

// NewWithDB wraps an existing handle (useful for testing). Schema creation is left to the caller.
func NewWithDB(db *sqlx.DB, d Driver, board string) *Store {
	return &Store{db: db, driver: d, board: board, now: time.Now}
}

func (s *Store) Name() string { return "sql" }

// Close closes the pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database answers and, when auto-migration is on, creates the table once.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify("ping", err)
	}
	if !s.autoMigrate {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.migrated {
		return nil
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	s.migrated = true
	return nil
}

// EnsureSchema creates the scores table and its ranking index if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaFor(s.driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return classify("migrate", err)
		}
	}
	return nil
}

func schemaFor(d Driver) []string {
	if d == DriverMySQL {
		return []string{`CREATE TABLE IF NOT EXISTS leaderboard_scores (
	board VARCHAR(191) NOT NULL,
	player VARCHAR(191) NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (board, player),
	INDEX leaderboard_scores_rank (board, score)
)`}
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS leaderboard_scores (
	board TEXT NOT NULL,
	player TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (board, player)
)`,
		`CREATE INDEX IF NOT EXISTS leaderboard_scores_rank ON leaderboard_scores (board, score DESC)`,
	}
}

const upsertConflictQuery = `INSERT INTO leaderboard_scores (board, player, score, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (board, player) DO UPDATE SET score = excluded.score, updated_at = excluded.updated_at
WHERE leaderboard_scores.score < excluded.score`

const upsertDuplicateKeyQuery = `INSERT INTO leaderboard_scores (board, player, score, updated_at) VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE updated_at = IF(VALUES(score) > score, VALUES(updated_at), updated_at), score = GREATEST(score, VALUES(score))`

const topKQuery = `SELECT player, score FROM leaderboard_scores WHERE board = ? ORDER BY score DESC, updated_at ASC, player ASC LIMIT ?`

// UpsertIfGreater writes score for player when it beats the stored value. Rows affected
// tells whether anything changed: mysql reports 0 for an untouched duplicate row.
func (s *Store) UpsertIfGreater(ctx context.Context, player core.PlayerID, score float64) (core.UpdateOutcome, error) {
	p, err := core.ValidateEntry(player, score)
	if err != nil {
		return core.UpdateOutcome{}, err
	}
	q := upsertConflictQuery
	if s.driver == DriverMySQL {
		q = upsertDuplicateKeyQuery
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), s.board, string(p), score, s.now().UnixNano())
	if err != nil {
		return core.UpdateOutcome{}, classify("upsert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.UpdateOutcome{}, classify("upsert", err)
	}
	return core.UpdateOutcome{Updated: n > 0}, nil
}

type scoreRow struct {
	Player string  `db:"player"`
	Score  float64 `db:"score"`
}

// TopK returns the best k rows; ties resolve to whoever reached the score first.
func (s *Store) TopK(ctx context.Context, k int) ([]core.ScoreEntry, error) {
	if k <= 0 {
		return []core.ScoreEntry{}, nil
	}
	var rows []scoreRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(topKQuery), s.board, k); err != nil {
		return nil, classify("top", err)
	}
	out := make([]core.ScoreEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.ScoreEntry{Player: core.PlayerID(r.Player), Score: r.Score})
	}
	return out, nil
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConnectivityError(err) {
		return fmt.Errorf("sql %s: %w: %w", op, core.ErrBackendConnectivity, err)
	}
	return fmt.Errorf("sql %s: %w: %w", op, core.ErrBackendOperation, err)
}

func isConnectivityError(err error) bool {
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET):
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

var _ leaderboard.OrderedScoreSet = (*Store)(nil)
