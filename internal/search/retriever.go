package search

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/repoinsight/repoinsight/internal/embed"
	"github.com/repoinsight/repoinsight/internal/lexical"
	"github.com/repoinsight/repoinsight/internal/vectorstore"
)

// RetrievedChunk is one piece of evidence returned to the caller.
type RetrievedChunk struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	FilePath  string         `json:"file_path"`
	StartLine int            `json:"start_line,omitempty"`
	Score     float64        `json:"score"`
	Metadata  map[string]any `json:"metadata"`
}

// Options control retrieval depths.
type Options struct {
	VectorTopK int
	BM25TopK   int
	FinalTopK  int
}

// HybridRetriever runs the two retrieval legs in parallel and fuses
// their rankings.
type HybridRetriever struct {
	embedder Embedder
	store    vectorstore.Store
	cache    *lexical.Cache
	fusion   *RRFFusion
	opts     Options
	logger   *slog.Logger
}

// Embedder is the query-embedding surface the retriever needs.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

var _ Embedder = (embed.Embedder)(nil)

// NewHybridRetriever wires the retriever.
func NewHybridRetriever(embedder Embedder, store vectorstore.Store, cache *lexical.Cache, opts Options, logger *slog.Logger) *HybridRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{
		embedder: embedder,
		store:    store,
		cache:    cache,
		fusion:   NewRRFFusion(),
		opts:     opts,
		logger:   logger,
	}
}

// Retrieve returns the fused top results for a query against one
// repository's collection.
func (r *HybridRetriever) Retrieve(ctx context.Context, query, repoID string) ([]RetrievedChunk, error) {
	var (
		vecResults []vectorstore.ScoredDocument
		lexResults []lexical.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vector, err := r.embedder.EmbedQuery(gctx, query)
		if err != nil {
			return err
		}
		results, err := r.store.Search(gctx, repoID, vector, r.opts.VectorTopK)
		if err != nil {
			return err
		}
		vecResults = results
		return nil
	})
	g.Go(func() error {
		index, err := r.cache.Get(gctx, repoID)
		if err != nil {
			return err
		}
		lexResults = index.Search(query, r.opts.BM25TopK)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	docs := make(map[string]vectorstore.Document, len(vecResults)+len(lexResults))
	vecRanked := make([]RankedDoc, len(vecResults))
	for i, res := range vecResults {
		vecRanked[i] = RankedDoc{ID: res.ID, Score: res.Score}
		docs[res.ID] = res.Document
	}
	bm25Ranked := make([]RankedDoc, len(lexResults))
	for i, res := range lexResults {
		bm25Ranked[i] = RankedDoc{ID: res.Doc.ID, Score: res.Score}
		if _, ok := docs[res.Doc.ID]; !ok {
			docs[res.Doc.ID] = res.Doc
		}
	}

	fused := r.fusion.Fuse(vecRanked, bm25Ranked)
	if len(fused) > r.opts.FinalTopK && r.opts.FinalTopK > 0 {
		fused = fused[:r.opts.FinalTopK]
	}

	out := make([]RetrievedChunk, 0, len(fused))
	for _, res := range fused {
		doc := docs[res.ChunkID]
		chunk := RetrievedChunk{
			ID:       res.ChunkID,
			Content:  doc.Content,
			Score:    res.RRFScore,
			Metadata: doc.Metadata,
		}
		if fp, ok := doc.Metadata["file_path"].(string); ok {
			chunk.FilePath = fp
		}
		switch v := doc.Metadata["start_line"].(type) {
		case int:
			chunk.StartLine = v
		case int64:
			chunk.StartLine = int(v)
		case float64:
			chunk.StartLine = int(v)
		}
		out = append(out, chunk)
	}

	r.logger.Debug("hybrid retrieval complete",
		"repository", repoID,
		"vector_hits", len(vecResults),
		"bm25_hits", len(lexResults),
		"returned", len(out))
	return out, nil
}
