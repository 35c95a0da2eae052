// Package api is the HTTP facade: a thin gin layer that validates
// requests, enqueues tasks, and surfaces task and session state.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperr "github.com/repoinsight/repoinsight/internal/errors"
	"github.com/repoinsight/repoinsight/internal/gitrepo"
	"github.com/repoinsight/repoinsight/internal/ingest"
	"github.com/repoinsight/repoinsight/internal/lexical"
	"github.com/repoinsight/repoinsight/internal/query"
	"github.com/repoinsight/repoinsight/internal/store"
	"github.com/repoinsight/repoinsight/internal/taskqueue"
)

// TaskQueue is the queue surface the handlers use.
type TaskQueue interface {
	Enqueue(ctx context.Context, kind, sessionID string, payload any) (string, bool, error)
	Status(ctx context.Context, taskID string) (*taskqueue.Status, error)
	Result(ctx context.Context, taskID string) (*taskqueue.Result, error)
	Revoke(ctx context.Context, taskID string) error
}

// Sessions is the session-store surface the handlers use.
type Sessions interface {
	CreateSession(ctx context.Context, session *store.Session) error
	GetSession(ctx context.Context, sessionID string) (*store.Session, error)
	SetTaskID(ctx context.Context, sessionID, taskID string) error
}

// Ping checks one backing dependency for the health endpoint.
type Ping struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler holds the facade's dependencies.
type Handler struct {
	queue    TaskQueue
	sessions Sessions
	cache    *lexical.Cache
	pings    []Ping
	logger   *slog.Logger
}

// NewHandler wires the HTTP handlers.
func NewHandler(queue TaskQueue, sessions Sessions, cache *lexical.Cache, logger *slog.Logger, pings ...Ping) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{queue: queue, sessions: sessions, cache: cache, pings: pings, logger: logger}
}

// Router builds the gin engine with all routes registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.Health)
	r.POST("/repos/analyze", h.Analyze)
	r.GET("/repos/status/:session_id", h.SessionStatus)
	r.DELETE("/repos/analyze/:session_id", h.CancelAnalyze)
	r.POST("/repos/query", h.Query)
	r.GET("/repos/query/status/:id", h.QueryStatus)
	r.GET("/repos/query/result/:id", h.QueryResult)
	r.DELETE("/cache", h.ClearCache)
	return r
}

// Health reports liveness, pinging each backing dependency. Any
// failing dependency turns the response into a 503.
func (h *Handler) Health(c *gin.Context) {
	status := http.StatusOK
	deps := make(gin.H, len(h.pings))
	for _, ping := range h.pings {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		err := ping.Check(ctx)
		cancel()
		if err != nil {
			h.logger.Warn("health check failed", "dependency", ping.Name, "error", err)
			deps[ping.Name] = "unavailable"
			status = http.StatusServiceUnavailable
		} else {
			deps[ping.Name] = "ok"
		}
	}

	resp := gin.H{"status": "ok"}
	if status != http.StatusOK {
		resp["status"] = "degraded"
	}
	if len(deps) > 0 {
		resp["dependencies"] = deps
	}
	c.JSON(status, resp)
}

type analyzeRequest struct {
	RepoURL         string          `json:"repo_url" binding:"required"`
	EmbeddingConfig json.RawMessage `json:"embedding_config"`
	ForceUpdate     bool            `json:"force_update"`
}

// Analyze starts an ingest task for a repository.
func (h *Handler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	repoID, err := gitrepo.Identifier(req.RepoURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionID := uuid.NewString()
	session := &store.Session{
		SessionID:            sessionID,
		RepositoryURL:        req.RepoURL,
		RepositoryIdentifier: repoID,
		Status:               store.StatusPending,
		EmbeddingConfig:      req.EmbeddingConfig,
	}
	if err := h.sessions.CreateSession(c.Request.Context(), session); err != nil {
		h.logger.Error("create session failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	taskID, created, err := h.queue.Enqueue(c.Request.Context(), taskqueue.KindIngest, sessionID, ingest.Request{
		RepoURL:         req.RepoURL,
		SessionID:       sessionID,
		EmbeddingConfig: req.EmbeddingConfig,
		ForceUpdate:     req.ForceUpdate,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue task"})
		return
	}
	if created {
		if err := h.sessions.SetTaskID(c.Request.Context(), sessionID, taskID); err != nil {
			h.logger.Warn("persist task id failed", "session_id", sessionID, "error", err)
		}
	}

	c.JSON(http.StatusAccepted, gin.H{
		"session_id": sessionID,
		"task_id":    taskID,
		"status":     "queued",
	})
}

// SessionStatus returns the durable session row projection.
func (h *Handler) SessionStatus(c *gin.Context) {
	sessionID := c.Param("session_id")
	session, err := h.sessions.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		if apperr.GetCode(err) == apperr.ErrCodeSessionNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}

	resp := gin.H{
		"session_id":            session.SessionID,
		"repository_url":        session.RepositoryURL,
		"repository_identifier": session.RepositoryIdentifier,
		"status":                session.Status,
		"total_files":           session.TotalFiles,
		"processed_files":       session.ProcessedFiles,
		"total_chunks":          session.TotalChunks,
		"indexed_chunks":        session.IndexedChunks,
		"created_at":            session.CreatedAt,
	}
	if session.StartedAt.Valid {
		resp["started_at"] = session.StartedAt.Time
	}
	if session.CompletedAt.Valid {
		resp["completed_at"] = session.CompletedAt.Time
	}
	if session.ErrorMessage.Valid {
		resp["error_message"] = session.ErrorMessage.String
	}
	c.JSON(http.StatusOK, resp)
}

// CancelAnalyze revokes a running ingest. A session already in a
// terminal state reports that state instead.
func (h *Handler) CancelAnalyze(c *gin.Context) {
	sessionID := c.Param("session_id")
	session, err := h.sessions.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		if apperr.GetCode(err) == apperr.ErrCodeSessionNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}

	if store.IsTerminal(session.Status) {
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": session.Status})
		return
	}
	if !session.TaskID.Valid {
		c.JSON(http.StatusConflict, gin.H{"error": "session has no task to cancel"})
		return
	}
	if err := h.queue.Revoke(c.Request.Context(), session.TaskID.String); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke task"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": "cancelled"})
}

type queryRequest struct {
	SessionID      string          `json:"session_id" binding:"required"`
	Question       string          `json:"question" binding:"required"`
	GenerationMode string          `json:"generation_mode" binding:"required"`
	LLMConfig      json.RawMessage `json:"llm_config"`
}

// Query enqueues a question as an async task.
func (h *Handler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.GenerationMode != query.ModeService && req.GenerationMode != query.ModePlugin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "generation_mode must be \"service\" or \"plugin\""})
		return
	}

	// Query tasks dedupe on their own task identity, not the session,
	// so repeated questions against one session are all served.
	dedupID := uuid.NewString()
	taskID, _, err := h.queue.Enqueue(c.Request.Context(), taskqueue.KindQuery, dedupID, query.Request{
		SessionID:      req.SessionID,
		Question:       req.Question,
		GenerationMode: req.GenerationMode,
		LLMConfig:      req.LLMConfig,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue task"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"session_id": req.SessionID,
		"task_id":    taskID,
		"status":     "queued",
	})
}

// QueryStatus returns the task's queue state.
func (h *Handler) QueryStatus(c *gin.Context) {
	status, err := h.queue.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read task status"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// QueryResult returns the final query payload: 404 while the task is
// still running, 400 when it failed.
func (h *Handler) QueryResult(c *gin.Context) {
	result, err := h.queue.Result(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read task result"})
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "result not available"})
		return
	}
	if !result.Success {
		c.JSON(http.StatusBadRequest, gin.H{"error": result.Error, "session_id": result.SessionID})
		return
	}
	c.Data(http.StatusOK, "application/json", result.Data)
}

// ClearCache drops this process's in-memory BM25 indices. Worker
// processes hold their own caches and invalidate them per repository
// when an ingest completes.
func (h *Handler) ClearCache(c *gin.Context) {
	if h.cache != nil {
		h.cache.Clear()
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
