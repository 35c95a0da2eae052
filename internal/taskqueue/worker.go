package taskqueue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	apperr "github.com/repoinsight/repoinsight/internal/errors"
)

// CancelCheck reports whether the running task was revoked.
type CancelCheck func() bool

// Reporter lets a handler publish progress and observe cancellation.
type Reporter struct {
	queue  *Queue
	taskID string
}

// Progress publishes a PROGRESS update.
func (r *Reporter) Progress(ctx context.Context, current, total int, msg string) {
	if err := r.queue.PublishProgress(ctx, r.taskID, Progress{Current: current, Total: total, StatusMsg: msg}); err != nil {
		r.queue.logger.Warn("progress publish failed", "task_id", r.taskID, "error", err)
	}
}

// Cancelled reports whether the task was revoked.
func (r *Reporter) Cancelled(ctx context.Context) bool {
	return r.queue.IsCancelled(ctx, r.taskID)
}

// Handler executes one task kind and returns the result payload.
type Handler func(ctx context.Context, task *Task, reporter *Reporter) (any, error)

// Worker consumes tasks and dispatches them to registered handlers.
type Worker struct {
	queue    *Queue
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewWorker creates a worker over the queue.
func NewWorker(queue *Queue, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{queue: queue, handlers: make(map[string]Handler), logger: logger}
}

// Register installs the handler for a task kind.
func (w *Worker) Register(kind string, handler Handler) {
	w.handlers[kind] = handler
}

// Run consumes tasks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started")
	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("worker stopping")
			return nil
		}

		task, err := w.queue.Dequeue(ctx, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("dequeue failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue
		}
		w.Process(ctx, task)
	}
}

// Process executes one task end to end: handles revocation, panics,
// and terminal bookkeeping.
func (w *Worker) Process(ctx context.Context, task *Task) {
	logger := w.logger.With("task_id", task.ID, "kind", task.Kind, "session_id", task.SessionID)

	if w.queue.IsCancelled(ctx, task.ID) {
		logger.Info("task revoked before start")
		_ = w.queue.MarkRevoked(ctx, task)
		return
	}

	handler, ok := w.handlers[task.Kind]
	if !ok {
		logger.Error("no handler registered")
		_ = w.queue.Fail(ctx, task, fmt.Errorf("unknown task kind: %s", task.Kind))
		return
	}

	if err := w.queue.MarkStarted(ctx, task.ID); err != nil {
		logger.Warn("mark started failed", "error", err)
	}

	data, err := w.runSafely(ctx, handler, task)
	switch {
	case err == nil:
		if cerr := w.queue.Complete(ctx, task, data); cerr != nil {
			logger.Error("store result failed", "error", cerr)
		}
	case apperr.GetCode(err) == apperr.ErrCodeTaskCancelled:
		logger.Info("task cancelled at checkpoint")
		_ = w.queue.MarkRevoked(ctx, task)
	default:
		logger.Error("task failed", "error", err)
		_ = w.queue.Fail(ctx, task, err)
	}
}

func (w *Worker) runSafely(ctx context.Context, handler Handler, task *Task) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("task panicked",
				"task_id", task.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return handler(ctx, task, &Reporter{queue: w.queue, taskID: task.ID})
}
