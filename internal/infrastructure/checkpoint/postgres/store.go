package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/haithamq/visaflow/internal/core/domain"
)

// Store persists checkpoint blobs per request key. Values are opaque to the
// store; independent keys never contend beyond row-level locking.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS checkpoints (
	request_key TEXT PRIMARY KEY,
	state BYTEA NOT NULL,
	expires_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_expires_at ON checkpoints(expires_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	const query = `
SELECT state FROM checkpoints
WHERE request_key = $1 AND (expires_at IS NULL OR expires_at > now())
`
	var blob []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrCheckpointNotFound, "get checkpoint", err)
	}
	if err != nil {
		return nil, fmt.Errorf("query checkpoint: %w", err)
	}
	return blob, nil
}

func (s *Store) Set(ctx context.Context, key string, blob []byte, ttl time.Duration) error {
	const query = `
INSERT INTO checkpoints (request_key, state, expires_at, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (request_key)
DO UPDATE SET state = EXCLUDED.state, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at
`
	now := time.Now().UTC()
	var expiresAt any
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}
	if _, err := s.db.ExecContext(ctx, query, key, blob, expiresAt, now); err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

// DeleteExpired removes lapsed checkpoints; retention policy belongs to the
// operator, this is just the sweep.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired checkpoints: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}
