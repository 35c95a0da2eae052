package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/repoinsight/repoinsight/internal/errors"
	"github.com/repoinsight/repoinsight/internal/logging"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, time.Hour, logging.Discard()), mr
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t)

	// Given: an enqueued ingest task
	taskID, created, err := q.Enqueue(t.Context(), KindIngest, "session-1",
		map[string]string{"repo_url": "https://github.com/acme/app"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, taskID)

	// When: dequeuing
	task, err := q.Dequeue(t.Context(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)

	// Then: the task round-trips intact
	assert.Equal(t, taskID, task.ID)
	assert.Equal(t, KindIngest, task.Kind)
	assert.Equal(t, "session-1", task.SessionID)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(task.Payload, &payload))
	assert.Equal(t, "https://github.com/acme/app", payload["repo_url"])
}

func TestEnqueueIdempotentOnSessionID(t *testing.T) {
	q, _ := newTestQueue(t)

	first, created, err := q.Enqueue(t.Context(), KindIngest, "session-1", nil)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := q.Enqueue(t.Context(), KindIngest, "session-1", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)

	// Only one task sits in the queue.
	task, err := q.Dequeue(t.Context(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	task, err = q.Dequeue(t.Context(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestCompleteReleasesSessionAndStoresResult(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := t.Context()

	taskID, _, err := q.Enqueue(ctx, KindIngest, "session-1", nil)
	require.NoError(t, err)
	task, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)

	require.NoError(t, q.Complete(ctx, task, map[string]any{"chunks": 42}))

	status, err := q.Status(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status.State)

	result, err := q.Result(ctx, taskID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, "session-1", result.SessionID)
	assert.JSONEq(t, `{"chunks":42}`, string(result.Data))

	// The session id is free again.
	_, created, err := q.Enqueue(ctx, KindIngest, "session-1", nil)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestFailStoresErrorEnvelope(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := t.Context()

	_, _, err := q.Enqueue(ctx, KindQuery, "session-2", nil)
	require.NoError(t, err)
	task, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, task, errors.New("boom")))

	result, err := q.Result(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, "boom", result.Error)
	assert.Equal(t, "session-2", result.SessionID)
}

func TestProgressPublication(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := t.Context()

	taskID, _, err := q.Enqueue(ctx, KindIngest, "session-3", nil)
	require.NoError(t, err)

	require.NoError(t, q.PublishProgress(ctx, taskID, Progress{Current: 35, Total: 100, StatusMsg: "chunking files"}))

	status, err := q.Status(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusProgress, status.State)
	require.NotNil(t, status.Progress)
	assert.Equal(t, 35, status.Progress.Current)
	assert.Equal(t, "chunking files", status.Progress.StatusMsg)
}

func TestRevokeBeforeStart(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := t.Context()

	taskID, _, err := q.Enqueue(ctx, KindIngest, "session-4", nil)
	require.NoError(t, err)
	require.NoError(t, q.Revoke(ctx, taskID))
	assert.True(t, q.IsCancelled(ctx, taskID))

	w := NewWorker(q, logging.Discard())
	w.Register(KindIngest, func(context.Context, *Task, *Reporter) (any, error) {
		t.Fatal("handler must not run for a revoked task")
		return nil, nil
	})

	task, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	w.Process(ctx, task)

	status, err := q.Status(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, status.State)
}

func TestWorkerProcessesTask(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := t.Context()

	taskID, _, err := q.Enqueue(ctx, KindQuery, "session-5", map[string]string{"question": "what is this"})
	require.NoError(t, err)

	w := NewWorker(q, logging.Discard())
	w.Register(KindQuery, func(_ context.Context, task *Task, r *Reporter) (any, error) {
		r.Progress(ctx, 1, 2, "retrieving")
		return map[string]string{"answer": "a service"}, nil
	})

	task, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	w.Process(ctx, task)

	result, err := q.Result(ctx, taskID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.JSONEq(t, `{"answer":"a service"}`, string(result.Data))
}

func TestWorkerMarksCancelledTaskRevoked(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := t.Context()

	taskID, _, err := q.Enqueue(ctx, KindIngest, "session-6", nil)
	require.NoError(t, err)

	w := NewWorker(q, logging.Discard())
	w.Register(KindIngest, func(hctx context.Context, task *Task, r *Reporter) (any, error) {
		// Revocation arrives mid-task; the handler observes it at a
		// checkpoint and returns a cancellation error.
		require.NoError(t, q.Revoke(hctx, task.ID))
		if r.Cancelled(hctx) {
			return nil, apperr.Cancelled(task.ID)
		}
		return nil, nil
	})

	task, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	w.Process(ctx, task)

	status, err := q.Status(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, status.State)
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := t.Context()

	taskID, _, err := q.Enqueue(ctx, KindIngest, "session-7", nil)
	require.NoError(t, err)

	w := NewWorker(q, logging.Discard())
	w.Register(KindIngest, func(context.Context, *Task, *Reporter) (any, error) {
		panic("unexpected")
	})

	task, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	w.Process(ctx, task)

	result, err := q.Result(ctx, taskID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "panicked")
}

func TestResultExpires(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := t.Context()

	taskID, _, err := q.Enqueue(ctx, KindIngest, "session-8", nil)
	require.NoError(t, err)
	task, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, task, nil))

	mr.FastForward(2 * time.Hour)

	result, err := q.Result(ctx, taskID)
	require.NoError(t, err)
	assert.Nil(t, result)
}
