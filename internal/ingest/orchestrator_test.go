package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoinsight/repoinsight/internal/config"
	"github.com/repoinsight/repoinsight/internal/embed"
	apperr "github.com/repoinsight/repoinsight/internal/errors"
	"github.com/repoinsight/repoinsight/internal/logging"
	"github.com/repoinsight/repoinsight/internal/store"
	"github.com/repoinsight/repoinsight/internal/vectorstore"
)

type fakeSessions struct {
	processing  []string
	terminal    map[string]string
	errMessages map[string]string
	totalFiles  int
	totalChunks int
	files       int
	indexed     int
	metadata    []store.FileMetadata
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{terminal: map[string]string{}, errMessages: map[string]string{}}
}

func (f *fakeSessions) MarkProcessing(_ context.Context, id string) error {
	f.processing = append(f.processing, id)
	return nil
}

func (f *fakeSessions) MarkTerminal(_ context.Context, id, status, errorMessage string) error {
	f.terminal[id] = status
	f.errMessages[id] = errorMessage
	return nil
}

func (f *fakeSessions) SetFileTotals(_ context.Context, _ string, files, chunks int) error {
	f.totalFiles, f.totalChunks = files, chunks
	return nil
}

func (f *fakeSessions) AddProgress(_ context.Context, _ string, files, chunks int) error {
	f.files += files
	f.indexed += chunks
	return nil
}

func (f *fakeSessions) InsertFileMetadata(_ context.Context, rows []store.FileMetadata) (int, error) {
	f.metadata = append(f.metadata, rows...)
	return 0, nil
}

type fakeVectors struct {
	collections map[string][]vectorstore.Document
	preexisting map[string]int
	ensured     []string
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{collections: map[string][]vectorstore.Document{}, preexisting: map[string]int{}}
}

func (f *fakeVectors) EnsureCollection(_ context.Context, name string, _ int) error {
	f.ensured = append(f.ensured, name)
	if _, ok := f.collections[name]; !ok {
		f.collections[name] = nil
	}
	return nil
}

func (f *fakeVectors) CollectionExists(_ context.Context, name string) (bool, error) {
	if _, ok := f.preexisting[name]; ok {
		return true, nil
	}
	_, ok := f.collections[name]
	return ok, nil
}

func (f *fakeVectors) Count(_ context.Context, name string) (int, error) {
	if n, ok := f.preexisting[name]; ok {
		return n, nil
	}
	return len(f.collections[name]), nil
}

func (f *fakeVectors) AddDocuments(_ context.Context, name string, docs []vectorstore.Document) error {
	f.collections[name] = append(f.collections[name], docs...)
	return nil
}

func (f *fakeVectors) Search(_ context.Context, _ string, _ []float32, _ int) ([]vectorstore.ScoredDocument, error) {
	return nil, nil
}

func (f *fakeVectors) AllDocuments(_ context.Context, name string) ([]vectorstore.Document, error) {
	return f.collections[name], nil
}

func (f *fakeVectors) DeleteCollection(_ context.Context, name string) error {
	delete(f.collections, name)
	delete(f.preexisting, name)
	return nil
}

func (f *fakeVectors) Close() error { return nil }

type fakeCloner struct {
	dir    string
	err    error
	called bool
}

func (f *fakeCloner) Clone(_ context.Context, _ string, _ bool) (string, error) {
	f.called = true
	return f.dir, f.err
}

type fakeEmbedder struct{ dims int }

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dims)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, f.dims), nil
}

func (f *fakeEmbedder) ModelName() string { return "fake" }
func (f *fakeEmbedder) Dimensions() int   { return f.dims }

type fakeSink struct {
	marks       []int
	cancelAfter int
	calls       int
}

func (f *fakeSink) Progress(_ context.Context, current, _ int, _ string) {
	f.marks = append(f.marks, current)
}

func (f *fakeSink) Cancelled(_ context.Context) bool {
	f.calls++
	return f.cancelAfter > 0 && f.calls > f.cancelAfter
}

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func newTestOrchestrator(sessions *fakeSessions, vectors *fakeVectors, cloner *fakeCloner) *Orchestrator {
	cfg := config.Default()
	cfg.Embed.BatchSize = 2
	return &Orchestrator{
		cfg:      cfg,
		sessions: sessions,
		vectors:  vectors,
		cloner:   cloner,
		logger:   logging.Discard(),
		newEmbedder: func(config.EmbedConfig) (embed.Embedder, error) {
			return &fakeEmbedder{dims: 4}, nil
		},
	}
}

func TestRunIndexesRepository(t *testing.T) {
	// Given a cloned repo with two source files
	dir := writeRepo(t, map[string]string{
		"main.py":  "def handler(request):\n    return route(request)\n",
		"utils.py": "def route(request):\n    return request.path\n",
	})
	sessions := newFakeSessions()
	vectors := newFakeVectors()
	cloner := &fakeCloner{dir: dir}
	o := newTestOrchestrator(sessions, vectors, cloner)

	// When the ingest runs to completion
	summary, err := o.Run(t.Context(), Request{
		RepoURL:   "https://github.com/acme/router",
		SessionID: "sess-1",
	}, &fakeSink{})

	// Then the session is SUCCESS and every chunk is indexed
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuccess, summary.Status)
	assert.Equal(t, store.StatusSuccess, sessions.terminal["sess-1"])
	assert.False(t, summary.Reused)
	assert.Equal(t, 2, summary.TotalFiles)
	assert.Equal(t, 2, summary.ProcessedFiles)
	assert.Equal(t, 2, sessions.files)
	assert.Positive(t, summary.IndexedChunks)
	assert.Equal(t, summary.IndexedChunks, sessions.indexed)
	assert.Len(t, sessions.metadata, 2)

	docs := vectors.collections[summary.RepositoryIdentifier]
	require.Len(t, docs, summary.IndexedChunks)
	for i, doc := range docs {
		assert.Equal(t, fmt.Sprintf("chunk_%s_%d", summary.RepositoryIdentifier, i), doc.ID)
		assert.NotEmpty(t, doc.Content)
		assert.Len(t, doc.Vector, 4)
	}
}

func TestRunReusesExistingCollection(t *testing.T) {
	// Given a collection that already holds chunks for this repo
	sessions := newFakeSessions()
	vectors := newFakeVectors()
	cloner := &fakeCloner{dir: t.TempDir()}
	o := newTestOrchestrator(sessions, vectors, cloner)

	first, err := o.Run(t.Context(), Request{
		RepoURL:   "https://github.com/acme/router",
		SessionID: "warm",
	}, &fakeSink{})
	require.NoError(t, err)
	vectors.preexisting[first.RepositoryIdentifier] = 7
	cloner.called = false

	// When a second ingest targets the same repository
	sink := &fakeSink{}
	summary, err := o.Run(t.Context(), Request{
		RepoURL:   "https://github.com/acme/router",
		SessionID: "sess-2",
	}, sink)

	// Then it short-circuits without cloning
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuccess, summary.Status)
	assert.True(t, summary.Reused)
	assert.Equal(t, 7, summary.IndexedChunks)
	assert.False(t, cloner.called)
	assert.Equal(t, 100, sink.marks[len(sink.marks)-1])
}

func TestRunMarksCancelled(t *testing.T) {
	dir := writeRepo(t, map[string]string{
		"a.py": "def a():\n    return 1\n",
		"b.py": "def b():\n    return 2\n",
		"c.py": "def c():\n    return 3\n",
	})
	sessions := newFakeSessions()
	o := newTestOrchestrator(sessions, newFakeVectors(), &fakeCloner{dir: dir})

	// Cancel at the second per-file checkpoint
	summary, err := o.Run(t.Context(), Request{
		RepoURL:   "https://github.com/acme/router",
		SessionID: "sess-3",
	}, &fakeSink{cancelAfter: 1})

	require.Error(t, err)
	assert.Equal(t, apperr.ErrCodeTaskCancelled, apperr.GetCode(err))
	assert.Equal(t, store.StatusCancelled, summary.Status)
	assert.Equal(t, store.StatusCancelled, sessions.terminal["sess-3"])
}

func TestRunCancelBetweenBatchesKeepsIndexedBatches(t *testing.T) {
	// Given three one-chunk files and a batch size of two
	dir := writeRepo(t, map[string]string{
		"a.py": "def a():\n    return 1\n",
		"b.py": "def b():\n    return 2\n",
		"c.py": "def c():\n    return 3\n",
	})
	sessions := newFakeSessions()
	vectors := newFakeVectors()
	o := newTestOrchestrator(sessions, vectors, &fakeCloner{dir: dir})

	// The scan loop checks the flag once per file, so the fourth check
	// is the checkpoint after the first embedding batch
	summary, err := o.Run(t.Context(), Request{
		RepoURL:   "https://github.com/acme/router",
		SessionID: "sess-8",
	}, &fakeSink{cancelAfter: 3})

	// Then the batch written before the cancel stays in the collection
	require.Error(t, err)
	assert.Equal(t, apperr.ErrCodeTaskCancelled, apperr.GetCode(err))
	assert.Equal(t, store.StatusCancelled, summary.Status)
	assert.Equal(t, store.StatusCancelled, sessions.terminal["sess-8"])
	require.Len(t, vectors.collections[summary.RepositoryIdentifier], 2)
	assert.Equal(t, 2, summary.IndexedChunks)
	assert.Equal(t, 2, sessions.indexed)
}

func TestRunCloneFailureIsFatal(t *testing.T) {
	sessions := newFakeSessions()
	o := newTestOrchestrator(sessions, newFakeVectors(), &fakeCloner{
		err: apperr.Newf(apperr.ErrCodeCloneFailed, "remote unreachable"),
	})

	summary, err := o.Run(t.Context(), Request{
		RepoURL:   "https://github.com/acme/router",
		SessionID: "sess-4",
	}, &fakeSink{})

	require.Error(t, err)
	assert.Equal(t, store.StatusFailed, summary.Status)
	assert.Equal(t, store.StatusFailed, sessions.terminal["sess-4"])
	assert.Contains(t, sessions.errMessages["sess-4"], "remote unreachable")
}

func TestRunInvalidRepoURLIsFatal(t *testing.T) {
	sessions := newFakeSessions()
	o := newTestOrchestrator(sessions, newFakeVectors(), &fakeCloner{dir: t.TempDir()})

	_, err := o.Run(t.Context(), Request{
		RepoURL:   "not a url",
		SessionID: "sess-5",
	}, &fakeSink{})

	require.Error(t, err)
	assert.Equal(t, store.StatusFailed, sessions.terminal["sess-5"])
}

func TestRunEmbeddingOverride(t *testing.T) {
	var seen config.EmbedConfig
	sessions := newFakeSessions()
	o := newTestOrchestrator(sessions, newFakeVectors(), &fakeCloner{dir: t.TempDir()})
	o.newEmbedder = func(cfg config.EmbedConfig) (embed.Embedder, error) {
		seen = cfg
		return &fakeEmbedder{dims: 4}, nil
	}

	_, err := o.Run(t.Context(), Request{
		RepoURL:         "https://github.com/acme/router",
		SessionID:       "sess-6",
		EmbeddingConfig: json.RawMessage(`{"provider":"qwen","model":"text-embedding-v3"}`),
	}, &fakeSink{})

	require.NoError(t, err)
	assert.Equal(t, "qwen", seen.Provider)
	assert.Equal(t, "text-embedding-v3", seen.Model)
}

func TestRunBadEmbeddingOverride(t *testing.T) {
	sessions := newFakeSessions()
	o := newTestOrchestrator(sessions, newFakeVectors(), &fakeCloner{dir: t.TempDir()})

	_, err := o.Run(t.Context(), Request{
		RepoURL:         "https://github.com/acme/router",
		SessionID:       "sess-7",
		EmbeddingConfig: json.RawMessage(`{not json`),
	}, &fakeSink{})

	require.Error(t, err)
	assert.Equal(t, apperr.ErrCodeConfigInvalid, apperr.GetCode(err))
	assert.Equal(t, store.StatusFailed, sessions.terminal["sess-7"])
}
