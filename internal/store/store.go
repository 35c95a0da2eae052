package store

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/repoinsight/repoinsight/internal/config"
	apperr "github.com/repoinsight/repoinsight/internal/errors"
)

// Store wraps the Postgres connection pool.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, cfg config.PostgresConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, apperr.New(apperr.ErrCodeInternal, "connect to postgres", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	return &Store{db: db, logger: logger}, nil
}

// NewWithDB wraps an existing connection. Used in tests.
func NewWithDB(db *sqlx.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

const schema = `
CREATE TABLE IF NOT EXISTS analysis_sessions (
    session_id            UUID PRIMARY KEY,
    repository_url        TEXT NOT NULL,
    repository_identifier TEXT NOT NULL,
    status                TEXT NOT NULL DEFAULT 'PENDING',
    task_id               TEXT,
    embedding_config      JSONB,
    total_files           INTEGER NOT NULL DEFAULT 0,
    processed_files       INTEGER NOT NULL DEFAULT 0,
    total_chunks          INTEGER NOT NULL DEFAULT 0,
    indexed_chunks        INTEGER NOT NULL DEFAULT 0,
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
    started_at            TIMESTAMPTZ,
    completed_at          TIMESTAMPTZ,
    error_message         TEXT
);

CREATE INDEX IF NOT EXISTS idx_sessions_repo_identifier
    ON analysis_sessions (repository_identifier, status);

CREATE TABLE IF NOT EXISTS file_metadata (
    id             BIGSERIAL PRIMARY KEY,
    session_id     UUID NOT NULL REFERENCES analysis_sessions (session_id) ON DELETE CASCADE,
    file_path      TEXT NOT NULL,
    file_type      TEXT NOT NULL,
    file_extension TEXT NOT NULL DEFAULT '',
    file_size      BIGINT NOT NULL DEFAULT 0,
    line_count     INTEGER NOT NULL DEFAULT 0,
    chunk_count    INTEGER NOT NULL DEFAULT 0,
    is_processed   TEXT NOT NULL DEFAULT 'pending',
    error_message  TEXT
);

CREATE INDEX IF NOT EXISTS idx_file_metadata_session
    ON file_metadata (session_id);

CREATE TABLE IF NOT EXISTS query_logs (
    id                     BIGSERIAL PRIMARY KEY,
    session_id             UUID NOT NULL,
    question               TEXT NOT NULL,
    answer                 TEXT,
    generation_mode        TEXT NOT NULL,
    retrieved_chunks_count INTEGER NOT NULL DEFAULT 0,
    retrieval_time         DOUBLE PRECISION NOT NULL DEFAULT 0,
    generation_time        DOUBLE PRECISION,
    total_time             DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return apperr.New(apperr.ErrCodeInternal, "create schema", err)
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
