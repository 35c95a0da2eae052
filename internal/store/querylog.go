package store

import (
	"context"

	apperr "github.com/repoinsight/repoinsight/internal/errors"
)

// InsertQueryLog appends one query-log row.
func (s *Store) InsertQueryLog(ctx context.Context, row *QueryLog) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO query_logs
			(session_id, question, answer, generation_mode,
			 retrieved_chunks_count, retrieval_time, generation_time, total_time)
		VALUES
			(:session_id, :question, :answer, :generation_mode,
			 :retrieved_chunks_count, :retrieval_time, :generation_time, :total_time)`,
		row)
	if err != nil {
		return apperr.New(apperr.ErrCodeInternal, "insert query log", err)
	}
	return nil
}
