package store

import (
	"context"
	"database/sql"
	"errors"

	apperr "github.com/repoinsight/repoinsight/internal/errors"
)

// CreateSession inserts a new PENDING session.
func (s *Store) CreateSession(ctx context.Context, session *Session) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO analysis_sessions
			(session_id, repository_url, repository_identifier, status, task_id, embedding_config)
		VALUES
			(:session_id, :repository_url, :repository_identifier, :status, :task_id, :embedding_config)`,
		session)
	if err != nil {
		return apperr.New(apperr.ErrCodeInternal, "insert session", err)
	}
	return nil
}

// GetSession fetches one session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var session Session
	err := s.db.GetContext(ctx, &session,
		`SELECT * FROM analysis_sessions WHERE session_id = $1`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.SessionNotFound(sessionID)
	}
	if err != nil {
		return nil, apperr.New(apperr.ErrCodeInternal, "get session", err)
	}
	return &session, nil
}

// FindSuccessByIdentifier returns the most recent SUCCESS session for
// a repository identifier, or SessionNotFound.
func (s *Store) FindSuccessByIdentifier(ctx context.Context, repoID string) (*Session, error) {
	var session Session
	err := s.db.GetContext(ctx, &session, `
		SELECT * FROM analysis_sessions
		WHERE repository_identifier = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1`, repoID, StatusSuccess)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.SessionNotFound(repoID)
	}
	if err != nil {
		return nil, apperr.New(apperr.ErrCodeInternal, "find session by identifier", err)
	}
	return &session, nil
}

// MarkProcessing transitions the session to PROCESSING and stamps
// started_at.
func (s *Store) MarkProcessing(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE analysis_sessions
		SET status = $2, started_at = now()
		WHERE session_id = $1`, sessionID, StatusProcessing)
	if err != nil {
		return apperr.New(apperr.ErrCodeInternal, "mark session processing", err)
	}
	return nil
}

// MarkTerminal sets a final status with completed_at and an optional
// error message.
func (s *Store) MarkTerminal(ctx context.Context, sessionID, status, errorMessage string) error {
	if !IsTerminal(status) {
		return apperr.Newf(apperr.ErrCodeInvalidInput, "status %s is not terminal", status)
	}
	var msg sql.NullString
	if errorMessage != "" {
		msg = sql.NullString{String: errorMessage, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE analysis_sessions
		SET status = $2, error_message = $3, completed_at = now()
		WHERE session_id = $1`, sessionID, status, msg)
	if err != nil {
		return apperr.New(apperr.ErrCodeInternal, "mark session terminal", err)
	}
	return nil
}

// SetTaskID records the queue task id backing the session.
func (s *Store) SetTaskID(ctx context.Context, sessionID, taskID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE analysis_sessions SET task_id = $2 WHERE session_id = $1`,
		sessionID, taskID)
	if err != nil {
		return apperr.New(apperr.ErrCodeInternal, "set session task id", err)
	}
	return nil
}

// SetFileTotals records the scan result counters.
func (s *Store) SetFileTotals(ctx context.Context, sessionID string, totalFiles, totalChunks int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE analysis_sessions
		SET total_files = $2, total_chunks = $3
		WHERE session_id = $1`, sessionID, totalFiles, totalChunks)
	if err != nil {
		return apperr.New(apperr.ErrCodeInternal, "set session totals", err)
	}
	return nil
}

// AddProgress increments the processed-file and indexed-chunk
// counters inside one transaction, using a row lock so concurrent
// updates cannot lose increments.
func (s *Store) AddProgress(ctx context.Context, sessionID string, files, chunks int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.New(apperr.ErrCodeInternal, "begin progress update", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current struct {
		ProcessedFiles int `db:"processed_files"`
		IndexedChunks  int `db:"indexed_chunks"`
	}
	err = tx.GetContext(ctx, &current, `
		SELECT processed_files, indexed_chunks
		FROM analysis_sessions
		WHERE session_id = $1
		FOR UPDATE`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.SessionNotFound(sessionID)
	}
	if err != nil {
		return apperr.New(apperr.ErrCodeInternal, "lock session row", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE analysis_sessions
		SET processed_files = $2, indexed_chunks = $3
		WHERE session_id = $1`,
		sessionID, current.ProcessedFiles+files, current.IndexedChunks+chunks)
	if err != nil {
		return apperr.New(apperr.ErrCodeInternal, "update session counters", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.New(apperr.ErrCodeInternal, "commit progress update", err)
	}
	return nil
}
