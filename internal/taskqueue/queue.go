package taskqueue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	apperr "github.com/repoinsight/repoinsight/internal/errors"
)

// Redis key layout.
const (
	queueKey      = "repoinsight:tasks"
	taskKeyPrefix = "repoinsight:task:"
	dedupPrefix   = "repoinsight:session:"
	cancelPrefix  = "repoinsight:cancel:"
)

// dedupTTL bounds how long an enqueued-but-never-finished session id
// blocks re-enqueueing.
const dedupTTL = 24 * time.Hour

// Queue is the Redis-backed task queue.
type Queue struct {
	rdb       *redis.Client
	resultTTL time.Duration
	logger    *slog.Logger
}

// New creates a queue on an existing Redis client.
func New(rdb *redis.Client, resultTTL time.Duration, logger *slog.Logger) *Queue {
	if resultTTL <= 0 {
		resultTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{rdb: rdb, resultTTL: resultTTL, logger: logger}
}

func taskKey(taskID string) string     { return taskKeyPrefix + taskID }
func dedupKey(sessionID string) string { return dedupPrefix + sessionID }
func cancelKey(taskID string) string   { return cancelPrefix + taskID }

// Enqueue submits a task. Enqueueing is idempotent on session id: a
// second submit while the first task is still live returns the
// existing task id with created=false.
func (q *Queue) Enqueue(ctx context.Context, kind, sessionID string, payload any) (string, bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", false, apperr.New(apperr.ErrCodeInvalidInput, "marshal task payload", err)
	}

	taskID := uuid.NewString()
	ok, err := q.rdb.SetNX(ctx, dedupKey(sessionID), taskID, dedupTTL).Result()
	if err != nil {
		return "", false, apperr.New(apperr.ErrCodeInternal, "reserve session id", err)
	}
	if !ok {
		existing, err := q.rdb.Get(ctx, dedupKey(sessionID)).Result()
		if err != nil {
			return "", false, apperr.New(apperr.ErrCodeInternal, "read existing task id", err)
		}
		return existing, false, nil
	}

	task := Task{ID: taskID, Kind: kind, SessionID: sessionID, Payload: raw}
	encoded, err := json.Marshal(task)
	if err != nil {
		return "", false, apperr.New(apperr.ErrCodeInternal, "marshal task", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, taskKey(taskID), "status", StatusPending, "session_id", sessionID, "kind", kind)
	pipe.LPush(ctx, queueKey, encoded)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", false, apperr.New(apperr.ErrCodeInternal, "enqueue task", err)
	}

	q.logger.Info("task enqueued", "task_id", taskID, "kind", kind, "session_id", sessionID)
	return taskID, true, nil
}

// Dequeue blocks until a task is available or the timeout elapses.
// Returns nil when the timeout expires with an empty queue.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	values, err := q.rdb.BRPop(ctx, timeout, queueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.New(apperr.ErrCodeInternal, "dequeue task", err)
	}

	var task Task
	if err := json.Unmarshal([]byte(values[1]), &task); err != nil {
		return nil, apperr.New(apperr.ErrCodeInternal, "decode task", err)
	}
	return &task, nil
}

// Status returns the task's current state.
func (q *Queue) Status(ctx context.Context, taskID string) (*Status, error) {
	fields, err := q.rdb.HGetAll(ctx, taskKey(taskID)).Result()
	if err != nil {
		return nil, apperr.New(apperr.ErrCodeInternal, "read task status", err)
	}
	if len(fields) == 0 {
		return &Status{TaskID: taskID, State: StatusPending}, nil
	}

	status := &Status{TaskID: taskID, State: fields["status"]}
	if raw, ok := fields["progress"]; ok && status.State == StatusProgress {
		var p Progress
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			status.Progress = &p
		}
	}
	return status, nil
}

// MarkStarted transitions a task to STARTED.
func (q *Queue) MarkStarted(ctx context.Context, taskID string) error {
	err := q.rdb.HSet(ctx, taskKey(taskID), "status", StatusStarted).Err()
	if err != nil {
		return apperr.New(apperr.ErrCodeInternal, "mark task started", err)
	}
	return nil
}

// PublishProgress updates the PROGRESS metadata.
func (q *Queue) PublishProgress(ctx context.Context, taskID string, p Progress) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return apperr.New(apperr.ErrCodeInternal, "marshal progress", err)
	}
	err = q.rdb.HSet(ctx, taskKey(taskID), "status", StatusProgress, "progress", raw).Err()
	if err != nil {
		return apperr.New(apperr.ErrCodeInternal, "publish progress", err)
	}
	return nil
}

// Complete stores a success result and releases the session dedup
// reservation. The result expires after the configured retention.
func (q *Queue) Complete(ctx context.Context, task *Task, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return apperr.New(apperr.ErrCodeInternal, "marshal task result", err)
	}
	return q.finish(ctx, task, StatusSuccess, Result{
		Success:   true,
		Data:      raw,
		SessionID: task.SessionID,
	})
}

// Fail stores a failure result and releases the session reservation.
func (q *Queue) Fail(ctx context.Context, task *Task, taskErr error) error {
	msg := "unknown error"
	if taskErr != nil {
		msg = taskErr.Error()
	}
	return q.finish(ctx, task, StatusFailure, Result{
		Success:   false,
		Error:     msg,
		SessionID: task.SessionID,
	})
}

// MarkRevoked records a cancelled task's terminal state.
func (q *Queue) MarkRevoked(ctx context.Context, task *Task) error {
	return q.finish(ctx, task, StatusRevoked, Result{
		Success:   false,
		Error:     "task revoked",
		SessionID: task.SessionID,
	})
}

func (q *Queue) finish(ctx context.Context, task *Task, status string, result Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return apperr.New(apperr.ErrCodeInternal, "marshal result envelope", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, taskKey(task.ID), "status", status, "result", raw)
	pipe.Expire(ctx, taskKey(task.ID), q.resultTTL)
	pipe.Del(ctx, dedupKey(task.SessionID))
	pipe.Del(ctx, cancelKey(task.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.New(apperr.ErrCodeInternal, "finish task", err)
	}

	q.logger.Info("task finished", "task_id", task.ID, "status", status)
	return nil
}

// Result returns the stored terminal envelope, or nil if the task is
// still running or the result expired.
func (q *Queue) Result(ctx context.Context, taskID string) (*Result, error) {
	raw, err := q.rdb.HGet(ctx, taskKey(taskID), "result").Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.New(apperr.ErrCodeInternal, "read task result", err)
	}

	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, apperr.New(apperr.ErrCodeInternal, "decode task result", err)
	}
	return &result, nil
}

// Revoke requests cancellation of a task. The worker observes the
// flag at its checkpoints and exits cooperatively.
func (q *Queue) Revoke(ctx context.Context, taskID string) error {
	err := q.rdb.Set(ctx, cancelKey(taskID), "1", dedupTTL).Err()
	if err != nil {
		return apperr.New(apperr.ErrCodeInternal, "set cancel flag", err)
	}
	q.logger.Info("task revoked", "task_id", taskID)
	return nil
}

// IsCancelled reports whether cancellation was requested.
func (q *Queue) IsCancelled(ctx context.Context, taskID string) bool {
	n, err := q.rdb.Exists(ctx, cancelKey(taskID)).Result()
	if err != nil {
		q.logger.Warn("cancel flag check failed", "task_id", taskID, "error", err)
		return false
	}
	return n > 0
}
