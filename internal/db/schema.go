package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know about.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// sqlite-only statements, run before the shared schema.
var sqlitePragmas = []string{
	`PRAGMA journal_mode=WAL;`,
	`PRAGMA foreign_keys=ON;`,
}

// Timestamps are unix milliseconds, which is what Lichess hands out and keeps
// the schema portable between sqlite and postgres.
var schemaStmts = []string{
	`CREATE TABLE IF NOT EXISTS users (
		lichess_id TEXT PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		created_at_ms BIGINT NOT NULL DEFAULT 0,
		bullet_rating INTEGER NOT NULL DEFAULT 0,
		bullet_games INTEGER NOT NULL DEFAULT 0,
		blitz_rating INTEGER NOT NULL DEFAULT 0,
		blitz_games INTEGER NOT NULL DEFAULT 0,
		rapid_rating INTEGER NOT NULL DEFAULT 0,
		rapid_games INTEGER NOT NULL DEFAULT 0,
		classical_rating INTEGER NOT NULL DEFAULT 0,
		classical_games INTEGER NOT NULL DEFAULT 0,
		updated_at_ms BIGINT NOT NULL DEFAULT 0,
		games_synced_at_ms BIGINT NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS games (
		game_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(lichess_id) ON UPDATE CASCADE ON DELETE CASCADE,
		user_side TEXT NOT NULL,
		opponent_id TEXT NOT NULL DEFAULT '',
		time_control TEXT NOT NULL DEFAULT '',
		created_at_ms BIGINT NOT NULL DEFAULT 0,
		opening TEXT NOT NULL DEFAULT '',
		eco TEXT NOT NULL DEFAULT '',
		result TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		moves TEXT NOT NULL DEFAULT '',
		moves_uci TEXT NOT NULL DEFAULT '',
		analysis BOOLEAN NOT NULL DEFAULT FALSE,
		evals TEXT NOT NULL DEFAULT '[]',
		mates TEXT NOT NULL DEFAULT '[]',
		judgment_name TEXT NOT NULL DEFAULT '[]',
		judgment_comment TEXT NOT NULL DEFAULT '[]',
		CHECK (user_side IN ('white', 'black')),
		CHECK (result IN ('', 'win', 'loss', 'draw'))
	);`,
	// staging rows are keyed by batch so that two syncs never see each other's rows.
	`CREATE TABLE IF NOT EXISTS games_staging (
		batch_id TEXT NOT NULL,
		game_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		user_side TEXT NOT NULL,
		opponent_id TEXT NOT NULL DEFAULT '',
		time_control TEXT NOT NULL DEFAULT '',
		created_at_ms BIGINT NOT NULL DEFAULT 0,
		opening TEXT NOT NULL DEFAULT '',
		eco TEXT NOT NULL DEFAULT '',
		result TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		moves TEXT NOT NULL DEFAULT '',
		moves_uci TEXT NOT NULL DEFAULT '',
		analysis BOOLEAN NOT NULL DEFAULT FALSE,
		evals TEXT NOT NULL DEFAULT '[]',
		mates TEXT NOT NULL DEFAULT '[]',
		judgment_name TEXT NOT NULL DEFAULT '[]',
		judgment_comment TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (batch_id, game_id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_games_user_created ON games(user_id, created_at_ms);`,
	`CREATE INDEX IF NOT EXISTS idx_games_user_side ON games(user_id, user_side);`,
}

type Store struct {
	db *sqlx.DB
}

// Open connects to the database named by driver ("sqlite" or "postgres") and
// makes sure the schema exists.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case "", DriverSQLite:
		driver = DriverSQLite
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// keep it predictable; this is a single-instance service.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	stmts := schemaStmts
	if driver == DriverSQLite {
		stmts = append(append([]string{}, sqlitePragmas...), schemaStmts...)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping is used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
