// Package query answers natural-language questions about an indexed
// repository, combining hybrid retrieval with optional server-side
// answer generation.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/repoinsight/repoinsight/internal/config"
	"github.com/repoinsight/repoinsight/internal/embed"
	apperr "github.com/repoinsight/repoinsight/internal/errors"
	"github.com/repoinsight/repoinsight/internal/gitrepo"
	"github.com/repoinsight/repoinsight/internal/lexical"
	"github.com/repoinsight/repoinsight/internal/llm"
	"github.com/repoinsight/repoinsight/internal/search"
	"github.com/repoinsight/repoinsight/internal/store"
	"github.com/repoinsight/repoinsight/internal/vectorstore"
)

// Generation modes.
const (
	ModeService = "service"
	ModePlugin  = "plugin"
)

// Request is one question against an analyzed repository.
type Request struct {
	SessionID      string          `json:"session_id"`
	Question       string          `json:"question"`
	GenerationMode string          `json:"generation_mode"`
	LLMConfig      json.RawMessage `json:"llm_config,omitempty"`
}

// Response carries the answer and the retrieval context. Times are
// in milliseconds.
type Response struct {
	Answer           string                  `json:"answer,omitempty"`
	RetrievedContext []search.RetrievedChunk `json:"retrieved_context"`
	GenerationMode   string                  `json:"generation_mode"`
	RetrievalTime    int64                   `json:"retrieval_time"`
	GenerationTime   int64                   `json:"generation_time,omitempty"`
	TotalTime        int64                   `json:"total_time"`
}

// llmOverride is the per-request slice of the LLM configuration.
type llmOverride struct {
	Provider  string `json:"provider"`
	ModelName string `json:"model_name"`
	APIKey    string `json:"api_key,omitempty"`
	APIBase   string `json:"api_base,omitempty"`
}

// Sessions is the slice of the session store the query path reads.
type Sessions interface {
	GetSession(ctx context.Context, sessionID string) (*store.Session, error)
	FindSuccessByIdentifier(ctx context.Context, repoID string) (*store.Session, error)
	InsertQueryLog(ctx context.Context, row *store.QueryLog) error
}

// Retriever returns ranked chunks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query, repoID string) ([]search.RetrievedChunk, error)
}

// Service resolves sessions, retrieves context, and optionally
// generates answers.
type Service struct {
	cfg      *config.Config
	sessions Sessions
	vectors  vectorstore.Store
	cache    *lexical.Cache
	logger   *slog.Logger

	newEmbedder  func(cfg config.EmbedConfig) (embed.Embedder, error)
	newRetriever func(embedder embed.Embedder) Retriever
	newChatter   func(opts llm.Options) (llm.Chatter, error)
}

// New wires a query service.
func New(cfg *config.Config, sessions Sessions, vectors vectorstore.Store, cache *lexical.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		sessions: sessions,
		vectors:  vectors,
		cache:    cache,
		logger:   logger,
		newEmbedder: func(ec config.EmbedConfig) (embed.Embedder, error) {
			return embed.FromConfig(ec, logger)
		},
		newRetriever: func(embedder embed.Embedder) Retriever {
			return search.NewHybridRetriever(embedder, vectors, cache, search.Options{
				VectorTopK: cfg.Search.VectorTopK,
				BM25TopK:   cfg.Search.BM25TopK,
				FinalTopK:  cfg.Search.FinalTopK,
			}, logger)
		},
		newChatter: func(opts llm.Options) (llm.Chatter, error) {
			return llm.New(opts, logger)
		},
	}
}

// Query runs one question end to end: resolve the session, retrieve,
// optionally generate, and log.
func (s *Service) Query(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	session, err := s.resolveSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	embedder, err := s.buildEmbedder(session.EmbeddingConfig)
	if err != nil {
		return nil, err
	}

	retrievalStart := time.Now()
	chunks, err := s.newRetriever(embedder).Retrieve(ctx, req.Question, session.RepositoryIdentifier)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		RetrievedContext: chunks,
		GenerationMode:   req.GenerationMode,
		RetrievalTime:    time.Since(retrievalStart).Milliseconds(),
	}

	if req.GenerationMode == ModeService && len(req.LLMConfig) > 0 {
		generationStart := time.Now()
		answer, err := s.generateAnswer(ctx, req, chunks)
		if err != nil {
			return nil, err
		}
		resp.Answer = answer
		resp.GenerationTime = time.Since(generationStart).Milliseconds()
	}
	resp.TotalTime = time.Since(start).Milliseconds()

	s.logQuery(ctx, session.SessionID, req, resp)
	return resp, nil
}

// resolveSession maps the caller-supplied id to a completed session.
// A GitHub URL is accepted in place of a session id and resolves to
// any successful session for the same repository.
func (s *Service) resolveSession(ctx context.Context, sessionID string) (*store.Session, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err == nil {
		if session.Status == store.StatusSuccess && session.IsTerminal() {
			return session, nil
		}
		if !gitrepo.LooksLikeRepoURL(sessionID) {
			return nil, apperr.SessionNotReady(sessionID, session.Status)
		}
	}

	if gitrepo.LooksLikeRepoURL(sessionID) {
		repoID, idErr := gitrepo.Identifier(sessionID)
		if idErr != nil {
			return nil, apperr.SessionNotFound(sessionID)
		}
		session, err = s.sessions.FindSuccessByIdentifier(ctx, repoID)
		if err == nil {
			return session, nil
		}
	}
	return nil, apperr.SessionNotFound(sessionID)
}

func (s *Service) buildEmbedder(stored []byte) (embed.Embedder, error) {
	cfg := s.cfg.Embed
	if len(stored) > 0 {
		var ov struct {
			Provider string `json:"provider"`
			Model    string `json:"model"`
		}
		if err := json.Unmarshal(stored, &ov); err == nil {
			if ov.Provider != "" {
				cfg.Provider = ov.Provider
			}
			if ov.Model != "" {
				cfg.Model = ov.Model
			}
		}
	}
	return s.newEmbedder(cfg)
}

func (s *Service) generateAnswer(ctx context.Context, req Request, chunks []search.RetrievedChunk) (string, error) {
	var ov llmOverride
	if err := json.Unmarshal(req.LLMConfig, &ov); err != nil {
		return "", apperr.New(apperr.ErrCodeConfigInvalid, "parse llm config", err)
	}

	provider := s.cfg.LLM.Provider
	if ov.Provider != "" {
		provider = ov.Provider
	}
	model := s.cfg.LLM.Model
	if ov.ModelName != "" {
		model = ov.ModelName
	}
	apiKey := ov.APIKey
	if apiKey == "" {
		apiKey = s.cfg.Embed.APIKeyFor(provider)
	}

	chatter, err := s.newChatter(llm.Options{
		Provider: provider,
		Model:    model,
		APIKey:   apiKey,
		BaseURL:  ov.APIBase,
		Timeout:  s.cfg.LLM.Timeout(),
	})
	if err != nil {
		return "", err
	}
	return chatter.Chat(ctx, BuildPrompt(req.Question, chunks))
}

// BuildPrompt renders the question and retrieved chunks into the
// answer-generation prompt.
func BuildPrompt(question string, chunks []search.RetrievedChunk) string {
	var b strings.Builder
	b.WriteString("You are a code analysis assistant. Answer the user's question using the repository content provided below.\n\n")
	b.WriteString("Context:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[doc %d] file: %s", i+1, c.FilePath)
		if c.StartLine > 0 {
			fmt.Fprintf(&b, " (line %d)", c.StartLine)
		}
		b.WriteString("\n")
		b.WriteString(c.Content)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Question: %s\n", question)
	b.WriteString("Answer the question from the context above. If the context does not contain the answer, say so explicitly. Cite file names and line numbers, and explain how the referenced code works.\n")
	b.WriteString("Answer:")
	return b.String()
}

func (s *Service) logQuery(ctx context.Context, sessionID string, req Request, resp *Response) {
	row := &store.QueryLog{
		SessionID:            sessionID,
		Question:             req.Question,
		GenerationMode:       req.GenerationMode,
		RetrievedChunksCount: len(resp.RetrievedContext),
		RetrievalTime:        float64(resp.RetrievalTime),
		TotalTime:            float64(resp.TotalTime),
	}
	if resp.Answer != "" {
		row.Answer.String, row.Answer.Valid = resp.Answer, true
	}
	if resp.GenerationTime > 0 {
		row.GenerationTime.Float64, row.GenerationTime.Valid = float64(resp.GenerationTime), true
	}
	if err := s.sessions.InsertQueryLog(ctx, row); err != nil {
		s.logger.Warn("query log insert failed", "session_id", sessionID, "error", err)
	}
}
