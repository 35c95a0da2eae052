package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoinsight/repoinsight/internal/config"
	"github.com/repoinsight/repoinsight/internal/embed"
	apperr "github.com/repoinsight/repoinsight/internal/errors"
	"github.com/repoinsight/repoinsight/internal/gitrepo"
	"github.com/repoinsight/repoinsight/internal/llm"
	"github.com/repoinsight/repoinsight/internal/logging"
	"github.com/repoinsight/repoinsight/internal/search"
	"github.com/repoinsight/repoinsight/internal/store"
)

type fakeSessions struct {
	byID     map[string]*store.Session
	byRepoID map[string]*store.Session
	logged   []*store.QueryLog
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byID: map[string]*store.Session{}, byRepoID: map[string]*store.Session{}}
}

func (f *fakeSessions) GetSession(_ context.Context, id string) (*store.Session, error) {
	if s, ok := f.byID[id]; ok {
		return s, nil
	}
	return nil, apperr.SessionNotFound(id)
}

func (f *fakeSessions) FindSuccessByIdentifier(_ context.Context, repoID string) (*store.Session, error) {
	if s, ok := f.byRepoID[repoID]; ok {
		return s, nil
	}
	return nil, apperr.SessionNotFound(repoID)
}

func (f *fakeSessions) InsertQueryLog(_ context.Context, row *store.QueryLog) error {
	f.logged = append(f.logged, row)
	return nil
}

type fakeRetriever struct {
	chunks []search.RetrievedChunk
	repoID string
}

func (f *fakeRetriever) Retrieve(_ context.Context, _, repoID string) ([]search.RetrievedChunk, error) {
	f.repoID = repoID
	return f.chunks, nil
}

type fakeChatter struct {
	prompt string
	answer string
}

func (f *fakeChatter) Chat(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.answer, nil
}

func (f *fakeChatter) ModelName() string { return "fake" }

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, 4)
	}
	return out, nil
}

func (fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, 4), nil
}

func (fakeEmbedder) ModelName() string { return "fake" }
func (fakeEmbedder) Dimensions() int   { return 4 }

func successSession(id, repoURL, repoID string) *store.Session {
	return &store.Session{
		SessionID:            id,
		RepositoryURL:        repoURL,
		RepositoryIdentifier: repoID,
		Status:               store.StatusSuccess,
		CompletedAt:          sql.NullTime{Time: time.Now(), Valid: true},
	}
}

func newTestService(sessions *fakeSessions, retriever *fakeRetriever, chatter *fakeChatter) *Service {
	s := New(config.Default(), sessions, nil, nil, logging.Discard())
	s.newEmbedder = func(config.EmbedConfig) (embed.Embedder, error) { return fakeEmbedder{}, nil }
	s.newRetriever = func(embed.Embedder) Retriever { return retriever }
	s.newChatter = func(llm.Options) (llm.Chatter, error) { return chatter, nil }
	return s
}

func TestQueryPluginModeSkipsGeneration(t *testing.T) {
	sessions := newFakeSessions()
	sessions.byID["sess-1"] = successSession("sess-1", "https://github.com/acme/router", "acme_router_deadbeef")
	retriever := &fakeRetriever{chunks: []search.RetrievedChunk{
		{ID: "chunk_1", Content: "def route(): ...", FilePath: "router.py", StartLine: 10, Score: 0.9},
	}}
	chatter := &fakeChatter{answer: "should not be called"}
	s := newTestService(sessions, retriever, chatter)

	resp, err := s.Query(t.Context(), Request{
		SessionID:      "sess-1",
		Question:       "how does routing work",
		GenerationMode: ModePlugin,
	})

	require.NoError(t, err)
	assert.Empty(t, resp.Answer)
	assert.Len(t, resp.RetrievedContext, 1)
	assert.Equal(t, "acme_router_deadbeef", retriever.repoID)
	assert.Empty(t, chatter.prompt)

	require.Len(t, sessions.logged, 1)
	assert.Equal(t, "how does routing work", sessions.logged[0].Question)
	assert.False(t, sessions.logged[0].Answer.Valid)
	assert.Equal(t, 1, sessions.logged[0].RetrievedChunksCount)
	assert.GreaterOrEqual(t, sessions.logged[0].TotalTime, sessions.logged[0].RetrievalTime)
}

func TestQueryServiceModeGeneratesAnswer(t *testing.T) {
	sessions := newFakeSessions()
	sessions.byID["sess-1"] = successSession("sess-1", "https://github.com/acme/router", "acme_router_deadbeef")
	retriever := &fakeRetriever{chunks: []search.RetrievedChunk{
		{ID: "chunk_1", Content: "def route(): ...", FilePath: "router.py", StartLine: 10, Score: 0.9},
		{ID: "chunk_2", Content: "class Router: ...", FilePath: "core.py", Score: 0.7},
	}}
	chatter := &fakeChatter{answer: "routing dispatches by path"}
	s := newTestService(sessions, retriever, chatter)

	resp, err := s.Query(t.Context(), Request{
		SessionID:      "sess-1",
		Question:       "how does routing work",
		GenerationMode: ModeService,
		LLMConfig:      json.RawMessage(`{"provider":"openai","model_name":"gpt-4o-mini","api_key":"k"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, "routing dispatches by path", resp.Answer)
	assert.Contains(t, chatter.prompt, "[doc 1] file: router.py (line 10)")
	assert.Contains(t, chatter.prompt, "[doc 2] file: core.py\n")
	assert.Contains(t, chatter.prompt, "Question: how does routing work")
	assert.Contains(t, chatter.prompt, "Answer:")

	require.Len(t, sessions.logged, 1)
	assert.Equal(t, "routing dispatches by path", sessions.logged[0].Answer.String)
}

func TestQueryServiceModeWithoutLLMConfig(t *testing.T) {
	// service mode without llm_config degrades to retrieval only
	sessions := newFakeSessions()
	sessions.byID["sess-1"] = successSession("sess-1", "https://github.com/acme/router", "acme_router_deadbeef")
	chatter := &fakeChatter{answer: "unused"}
	s := newTestService(sessions, &fakeRetriever{}, chatter)

	resp, err := s.Query(t.Context(), Request{
		SessionID:      "sess-1",
		Question:       "q",
		GenerationMode: ModeService,
	})

	require.NoError(t, err)
	assert.Empty(t, resp.Answer)
	assert.Empty(t, chatter.prompt)
}

func TestQueryResolvesGitHubURL(t *testing.T) {
	// Given a SUCCESS session reachable only via repository identifier
	sessions := newFakeSessions()
	url := "https://github.com/acme/router"
	repoID, err := gitrepo.Identifier(url)
	require.NoError(t, err)
	sess := successSession("orig", url, repoID)
	sessions.byRepoID[sess.RepositoryIdentifier] = sess
	retriever := &fakeRetriever{}
	s := newTestService(sessions, retriever, &fakeChatter{})

	// When the URL itself is supplied as the session id
	_, err = s.Query(t.Context(), Request{
		SessionID:      url,
		Question:       "q",
		GenerationMode: ModePlugin,
	})

	// Then the query runs against that session's collection
	require.NoError(t, err)
	assert.Equal(t, sess.RepositoryIdentifier, retriever.repoID)
}

func TestQueryUnknownSession(t *testing.T) {
	s := newTestService(newFakeSessions(), &fakeRetriever{}, &fakeChatter{})

	_, err := s.Query(t.Context(), Request{SessionID: "nope", Question: "q", GenerationMode: ModePlugin})

	require.Error(t, err)
	assert.Equal(t, apperr.ErrCodeSessionNotFound, apperr.GetCode(err))
}

func TestQueryPendingSessionNotReady(t *testing.T) {
	sessions := newFakeSessions()
	sessions.byID["sess-1"] = &store.Session{SessionID: "sess-1", Status: store.StatusProcessing}
	s := newTestService(sessions, &fakeRetriever{}, &fakeChatter{})

	_, err := s.Query(t.Context(), Request{SessionID: "sess-1", Question: "q", GenerationMode: ModePlugin})

	require.Error(t, err)
	assert.Equal(t, apperr.ErrCodeSessionNotReady, apperr.GetCode(err))
}

func TestBuildPromptShape(t *testing.T) {
	prompt := BuildPrompt("what is this", []search.RetrievedChunk{
		{Content: "x = 1", FilePath: "a.py", StartLine: 3},
	})
	assert.Contains(t, prompt, "You are a code analysis assistant.")
	assert.Contains(t, prompt, "Context:\n[doc 1] file: a.py (line 3)\nx = 1")
	assert.Contains(t, prompt, "Question: what is this")
	assert.True(t, len(prompt) > 0 && prompt[len(prompt)-1] == ':')
}
