// Package store persists analysis sessions, per-file metadata, and
// query logs in Postgres.
package store

import (
	"database/sql"
	"time"
)

// Session statuses.
const (
	StatusPending        = "PENDING"
	StatusProcessing     = "PROCESSING"
	StatusSuccess        = "SUCCESS"
	StatusPartialSuccess = "PARTIAL_SUCCESS"
	StatusFailed         = "FAILED"
	StatusCancelled      = "CANCELLED"
)

// TerminalStatuses are the statuses a session can end in.
var TerminalStatuses = []string{StatusSuccess, StatusPartialSuccess, StatusFailed, StatusCancelled}

// IsTerminal reports whether a status is final.
func IsTerminal(status string) bool {
	for _, s := range TerminalStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// File processing outcomes.
const (
	FileStatePending = "pending"
	FileStateSuccess = "success"
	FileStateSkipped = "skipped"
	FileStateFailed  = "failed"
)

// Session is one analysis request and its durable progress.
type Session struct {
	SessionID            string         `db:"session_id"`
	RepositoryURL        string         `db:"repository_url"`
	RepositoryIdentifier string         `db:"repository_identifier"`
	Status               string         `db:"status"`
	TaskID               sql.NullString `db:"task_id"`
	EmbeddingConfig      []byte         `db:"embedding_config"`
	TotalFiles           int            `db:"total_files"`
	ProcessedFiles       int            `db:"processed_files"`
	TotalChunks          int            `db:"total_chunks"`
	IndexedChunks        int            `db:"indexed_chunks"`
	CreatedAt            time.Time      `db:"created_at"`
	StartedAt            sql.NullTime   `db:"started_at"`
	CompletedAt          sql.NullTime   `db:"completed_at"`
	ErrorMessage         sql.NullString `db:"error_message"`
}

// IsTerminal reports whether the session reached a final state.
func (s *Session) IsTerminal() bool {
	return IsTerminal(s.Status) && s.CompletedAt.Valid
}

// FileMetadata is one row per file encountered during ingestion.
type FileMetadata struct {
	ID            int64          `db:"id"`
	SessionID     string         `db:"session_id"`
	FilePath      string         `db:"file_path"`
	FileType      string         `db:"file_type"`
	FileExtension string         `db:"file_extension"`
	FileSize      int64          `db:"file_size"`
	LineCount     int            `db:"line_count"`
	ChunkCount    int            `db:"chunk_count"`
	IsProcessed   string         `db:"is_processed"`
	ErrorMessage  sql.NullString `db:"error_message"`
}

// QueryLog records one answered (or retrieval-only) question.
type QueryLog struct {
	ID                   int64           `db:"id"`
	SessionID            string          `db:"session_id"`
	Question             string          `db:"question"`
	Answer               sql.NullString  `db:"answer"`
	GenerationMode       string          `db:"generation_mode"`
	RetrievedChunksCount int             `db:"retrieved_chunks_count"`
	RetrievalTime        float64         `db:"retrieval_time"`
	GenerationTime       sql.NullFloat64 `db:"generation_time"`
	TotalTime            float64         `db:"total_time"`
	CreatedAt            time.Time       `db:"created_at"`
}
