package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/repoinsight/repoinsight/internal/api"
	"github.com/repoinsight/repoinsight/internal/lexical"
	"github.com/repoinsight/repoinsight/internal/store"
	"github.com/repoinsight/repoinsight/internal/taskqueue"
	"github.com/repoinsight/repoinsight/internal/vectorstore"
)

// newServeCmd creates the HTTP API server command.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long:  `Start the HTTP facade: request validation, task submission, and status/result endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
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
	if names, err := vectors.ListCollections(ctx); err == nil {
		logger.Info("qdrant ready", "collections", len(names))
	}

	cache, err := lexical.NewCache(vectors, 0, logger)
	if err != nil {
		return err
	}

	handler := api.NewHandler(queue, sessions, cache, logger,
		api.Ping{Name: "postgres", Check: sessions.Ping},
		api.Ping{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		api.Ping{Name: "qdrant", Check: vectors.HealthCheck},
	)
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
