package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	apperr "github.com/repoinsight/repoinsight/internal/errors"
	"github.com/repoinsight/repoinsight/internal/ingest"
	"github.com/repoinsight/repoinsight/internal/lexical"
	"github.com/repoinsight/repoinsight/internal/query"
	"github.com/repoinsight/repoinsight/internal/store"
	"github.com/repoinsight/repoinsight/internal/taskqueue"
	"github.com/repoinsight/repoinsight/internal/vectorstore"
)

// newWorkerCmd creates the task consumer command.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the task queue worker",
		Long:  `Consume ingest and query tasks from Redis and execute them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(ctx context.Context) error {
	cfg, logger, cleanup, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions, err := store.New(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer sessions.Close()
	if err := sessions.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	queue := taskqueue.New(rdb, cfg.Queue.ResultExpires(), logger)

	vectors, err := vectorstore.NewQdrantStore(ctx, cfg.Qdrant, logger)
	if err != nil {
		return fmt.Errorf("connect qdrant: %w", err)
	}
	defer vectors.Close()

	cache, err := lexical.NewCache(vectors, 0, logger)
	if err != nil {
		return err
	}

	orchestrator := ingest.New(cfg, sessions, vectors, logger)
	queries := query.New(cfg, sessions, vectors, cache, logger)

	worker := taskqueue.NewWorker(queue, logger)
	worker.Register(taskqueue.KindIngest, func(ctx context.Context, task *taskqueue.Task, reporter *taskqueue.Reporter) (any, error) {
		var req ingest.Request
		if err := json.Unmarshal(task.Payload, &req); err != nil {
			return nil, apperr.New(apperr.ErrCodeInvalidInput, "decode ingest payload", err)
		}
		summary, err := orchestrator.Run(ctx, req, reporter)
		if err != nil {
			return nil, err
		}
		// A completed ingest invalidates any cached lexical index for
		// the repository.
		cache.Invalidate(summary.RepositoryIdentifier)
		return summary, nil
	})
	worker.Register(taskqueue.KindQuery, func(ctx context.Context, task *taskqueue.Task, _ *taskqueue.Reporter) (any, error) {
		var req query.Request
		if err := json.Unmarshal(task.Payload, &req); err != nil {
			return nil, apperr.New(apperr.ErrCodeInvalidInput, "decode query payload", err)
		}
		return queries.Query(ctx, req)
	})

	return worker.Run(ctx)
}
