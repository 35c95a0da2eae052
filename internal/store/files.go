package store

import (
	"context"

	apperr "github.com/repoinsight/repoinsight/internal/errors"
)

// metadataBatchSize is how many file rows go into one INSERT.
const metadataBatchSize = 50

const insertFileMetadata = `
	INSERT INTO file_metadata
		(session_id, file_path, file_type, file_extension, file_size,
		 line_count, chunk_count, is_processed, error_message)
	VALUES
		(:session_id, :file_path, :file_type, :file_extension, :file_size,
		 :line_count, :chunk_count, :is_processed, :error_message)`

// InsertFileMetadata persists file rows in batches. A failed batch
// falls back to one-at-a-time inserts so a single bad row cannot drop
// the other forty-nine. Returns the number of rows that could not be
// saved.
func (s *Store) InsertFileMetadata(ctx context.Context, rows []FileMetadata) (int, error) {
	failed := 0
	for start := 0; start < len(rows); start += metadataBatchSize {
		end := start + metadataBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		if _, err := s.db.NamedExecContext(ctx, insertFileMetadata, batch); err == nil {
			continue
		} else {
			s.logger.Warn("file metadata batch insert failed, salvaging row by row",
				"batch_start", start, "batch_size", len(batch), "error", err)
		}

		for i := range batch {
			if _, err := s.db.NamedExecContext(ctx, insertFileMetadata, &batch[i]); err != nil {
				failed++
				s.logger.Error("file metadata row insert failed",
					"file_path", batch[i].FilePath, "error", err)
			}
		}
	}

	if failed == len(rows) && len(rows) > 0 {
		return failed, apperr.Newf(apperr.ErrCodeInternal,
			"all %d file metadata rows failed to insert", failed)
	}
	return failed, nil
}

// FilesForSession returns all file rows recorded for a session.
func (s *Store) FilesForSession(ctx context.Context, sessionID string) ([]FileMetadata, error) {
	var rows []FileMetadata
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM file_metadata
		WHERE session_id = $1
		ORDER BY file_path`, sessionID)
	if err != nil {
		return nil, apperr.New(apperr.ErrCodeInternal, "list file metadata", err)
	}
	return rows, nil
}
