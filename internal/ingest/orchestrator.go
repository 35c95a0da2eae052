// Package ingest drives the end-to-end ingestion pipeline: clone,
// scan, chunk, embed, and index one repository, with durable progress
// in the session store.
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/repoinsight/repoinsight/internal/chunk"
	"github.com/repoinsight/repoinsight/internal/config"
	"github.com/repoinsight/repoinsight/internal/embed"
	apperr "github.com/repoinsight/repoinsight/internal/errors"
	"github.com/repoinsight/repoinsight/internal/gitrepo"
	"github.com/repoinsight/repoinsight/internal/scanner"
	"github.com/repoinsight/repoinsight/internal/store"
	"github.com/repoinsight/repoinsight/internal/vectorstore"
)

// Advisory progress marks for the ingest phases.
const (
	progressStarted    = 5
	progressEmbedder   = 15
	progressCollection = 20
	progressCloned     = 30
	progressScanStart  = 35
	progressScanEnd    = 70
	progressIndexEnd   = 95
	progressDone       = 100
)

// Request is one ingest job.
type Request struct {
	RepoURL         string          `json:"repo_url"`
	SessionID       string          `json:"session_id"`
	EmbeddingConfig json.RawMessage `json:"embedding_config,omitempty"`
	ForceUpdate     bool            `json:"force_update,omitempty"`
}

// Summary is the ingest task's result payload.
type Summary struct {
	SessionID            string   `json:"session_id"`
	RepositoryIdentifier string   `json:"repository_identifier"`
	Status               string   `json:"status"`
	Reused               bool     `json:"reused,omitempty"`
	TotalFiles           int      `json:"total_files"`
	ProcessedFiles       int      `json:"processed_files"`
	TotalChunks          int      `json:"total_chunks"`
	IndexedChunks        int      `json:"indexed_chunks"`
	Errors               []string `json:"errors,omitempty"`
}

// Sink receives progress updates and exposes the cancel flag. The
// task queue's reporter satisfies it.
type Sink interface {
	Progress(ctx context.Context, current, total int, msg string)
	Cancelled(ctx context.Context) bool
}

// embedOverride is the per-request slice of the embedding config.
type embedOverride struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Sessions is the slice of the session store the ingest pipeline
// writes to.
type Sessions interface {
	MarkProcessing(ctx context.Context, sessionID string) error
	MarkTerminal(ctx context.Context, sessionID, status, errorMessage string) error
	SetFileTotals(ctx context.Context, sessionID string, totalFiles, totalChunks int) error
	AddProgress(ctx context.Context, sessionID string, files, chunks int) error
	InsertFileMetadata(ctx context.Context, rows []store.FileMetadata) (int, error)
}

type repoCloner interface {
	Clone(ctx context.Context, repoURL string, forceUpdate bool) (string, error)
}

// Orchestrator runs ingest jobs.
type Orchestrator struct {
	cfg      *config.Config
	sessions Sessions
	vectors  vectorstore.Store
	cloner   repoCloner
	logger   *slog.Logger

	newEmbedder func(cfg config.EmbedConfig) (embed.Embedder, error)
}

// New wires an orchestrator.
func New(cfg *config.Config, sessions Sessions, vectors vectorstore.Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:      cfg,
		sessions: sessions,
		vectors:  vectors,
		cloner:   gitrepo.NewCloner(cfg.Git.CloneDir, cfg.Git.CloneTimeout(), logger),
		logger:   logger,
		newEmbedder: func(ec config.EmbedConfig) (embed.Embedder, error) {
			return embed.FromConfig(ec, logger)
		},
	}
}

// Run executes one ingest end to end. Failures before scanning are
// fatal; per-file and per-batch failures degrade the final status to
// PARTIAL_SUCCESS. Cancellation is honored between files and between
// embedding batches.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink Sink) (*Summary, error) {
	logger := o.logger.With("session_id", req.SessionID, "repo_url", req.RepoURL)
	summary := &Summary{SessionID: req.SessionID}

	fail := func(err error) (*Summary, error) {
		_ = o.sessions.MarkTerminal(ctx, req.SessionID, store.StatusFailed, err.Error())
		summary.Status = store.StatusFailed
		return summary, err
	}

	// Phase 1: session bookkeeping.
	if err := o.sessions.MarkProcessing(ctx, req.SessionID); err != nil {
		return fail(err)
	}
	sink.Progress(ctx, progressStarted, progressDone, "starting analysis")

	// Phase 2: embedder.
	embedder, err := o.buildEmbedder(req.EmbeddingConfig)
	if err != nil {
		return fail(err)
	}
	sink.Progress(ctx, progressEmbedder, progressDone, "embedding model ready")

	// Phase 3: collection, with the reuse short-circuit.
	repoID, err := gitrepo.Identifier(req.RepoURL)
	if err != nil {
		return fail(err)
	}
	summary.RepositoryIdentifier = repoID

	exists, err := o.vectors.CollectionExists(ctx, repoID)
	if err != nil {
		return fail(err)
	}
	if exists {
		count, err := o.vectors.Count(ctx, repoID)
		if err != nil {
			return fail(err)
		}
		if count > 0 {
			logger.Info("repository already analyzed, reusing collection",
				"repository", repoID, "chunks", count)
			if err := o.sessions.MarkTerminal(ctx, req.SessionID, store.StatusSuccess, ""); err != nil {
				return fail(err)
			}
			sink.Progress(ctx, progressDone, progressDone, "repository already analyzed")
			summary.Status = store.StatusSuccess
			summary.Reused = true
			summary.IndexedChunks = count
			return summary, nil
		}
	}
	if err := o.vectors.EnsureCollection(ctx, repoID, embedder.Dimensions()); err != nil {
		return fail(err)
	}
	sink.Progress(ctx, progressCollection, progressDone, "collection ready")

	// Phase 4: clone.
	repoPath, err := o.cloner.Clone(ctx, req.RepoURL, req.ForceUpdate)
	if err != nil {
		return fail(err)
	}
	sink.Progress(ctx, progressCloned, progressDone, "repository cloned")

	// Phase 5: scan, read, chunk.
	files, chunks, err := o.scanAndChunk(ctx, req, repoPath, sink, summary)
	if err != nil {
		return o.finishEarly(ctx, req.SessionID, summary, err)
	}
	if err := o.sessions.SetFileTotals(ctx, req.SessionID, summary.TotalFiles, summary.TotalChunks); err != nil {
		logger.Warn("persist totals failed", "error", err)
	}
	if failed, err := o.sessions.InsertFileMetadata(ctx, files); err != nil {
		logger.Warn("file metadata persistence degraded", "failed_rows", failed, "error", err)
	}

	// Phase 6: embed and index.
	if err := o.embedAndIndex(ctx, req, repoID, embedder, chunks, sink, summary); err != nil {
		return o.finishEarly(ctx, req.SessionID, summary, err)
	}

	// Phase 7: terminal status.
	status := store.StatusSuccess
	if len(summary.Errors) > 0 {
		status = store.StatusPartialSuccess
	}
	if err := o.sessions.MarkTerminal(ctx, req.SessionID, status, ""); err != nil {
		return fail(err)
	}
	sink.Progress(ctx, progressDone, progressDone, "analysis complete")
	summary.Status = status

	logger.Info("ingest complete",
		"status", status,
		"files", summary.ProcessedFiles,
		"chunks", summary.IndexedChunks,
		"errors", len(summary.Errors))
	return summary, nil
}

// finishEarly records cancellation or a fatal mid-pipeline failure.
func (o *Orchestrator) finishEarly(ctx context.Context, sessionID string, summary *Summary, err error) (*Summary, error) {
	if apperr.GetCode(err) == apperr.ErrCodeTaskCancelled {
		_ = o.sessions.MarkTerminal(ctx, sessionID, store.StatusCancelled, "")
		summary.Status = store.StatusCancelled
		return summary, err
	}
	_ = o.sessions.MarkTerminal(ctx, sessionID, store.StatusFailed, err.Error())
	summary.Status = store.StatusFailed
	return summary, err
}

func (o *Orchestrator) buildEmbedder(override json.RawMessage) (embed.Embedder, error) {
	cfg := o.cfg.Embed
	if len(override) > 0 {
		var ov embedOverride
		if err := json.Unmarshal(override, &ov); err != nil {
			return nil, apperr.New(apperr.ErrCodeConfigInvalid, "parse embedding config", err)
		}
		if ov.Provider != "" {
			cfg.Provider = ov.Provider
		}
		if ov.Model != "" {
			cfg.Model = ov.Model
		}
	}
	return o.newEmbedder(cfg)
}

// fileChunks pairs a file with its chunks until ids are assigned.
type fileChunks struct {
	content  string
	metadata chunk.Metadata
}

func (o *Orchestrator) scanAndChunk(ctx context.Context, req Request, repoPath string, sink Sink, summary *Summary) ([]store.FileMetadata, []fileChunks, error) {
	scan := scanner.New(o.cfg.Scanner.AllowedExtensions, o.cfg.Scanner.ExcludedDirs, o.logger)

	var infos []scanner.FileInfo
	for res := range scan.Scan(ctx, repoPath) {
		if res.Err != nil {
			summary.Errors = append(summary.Errors, res.Err.Error())
			continue
		}
		infos = append(infos, res.Info)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, apperr.New(apperr.ErrCodeTaskCancelled, "scan cancelled", err)
	}
	summary.TotalFiles = len(infos)

	chunker := chunk.NewCodeChunker(chunk.Params{
		ChunkSize:               o.cfg.Chunking.ChunkSize,
		ChunkOverlap:            o.cfg.Chunking.ChunkOverlap,
		MinChunkSize:            o.cfg.Chunking.MinChunkSize,
		MaxChunkSize:            o.cfg.Chunking.MaxChunkSize,
		ClassDecomposeThreshold: o.cfg.Chunking.ClassDecomposeThreshold,
	}, o.logger)
	defer chunker.Close()

	var rows []store.FileMetadata
	var all []fileChunks

	for i, info := range infos {
		if sink.Cancelled(ctx) {
			return nil, nil, apperr.Cancelled(req.SessionID)
		}

		row := store.FileMetadata{
			SessionID:     req.SessionID,
			FilePath:      info.RelPath,
			FileType:      string(info.Type),
			FileExtension: info.Extension,
			FileSize:      info.Size,
			IsProcessed:   store.FileStatePending,
		}

		content, err := scanner.ReadFile(info.AbsPath, o.cfg.Scanner.MaxFileSize)
		switch {
		case errors.Is(err, scanner.ErrFileTooLarge):
			row.IsProcessed = store.FileStateSkipped
		case err != nil:
			row.IsProcessed = store.FileStateFailed
			row.ErrorMessage = nullString(err.Error())
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", info.RelPath, err))
		default:
			row.LineCount = scanner.CountLines(content)
			chunks, cerr := chunker.Chunk(ctx, &chunk.FileInput{
				Path:     info.RelPath,
				Content:  content,
				Language: info.Language,
				IsCode:   info.Type == scanner.FileTypeCode,
			})
			if cerr != nil {
				if apperr.GetCode(cerr) == apperr.ErrCodeTaskCancelled {
					return nil, nil, cerr
				}
				row.IsProcessed = store.FileStateFailed
				row.ErrorMessage = nullString(cerr.Error())
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", info.RelPath, cerr))
			} else {
				row.ChunkCount = len(chunks)
				row.IsProcessed = store.FileStateSuccess
				for _, c := range chunks {
					all = append(all, fileChunks{content: c.Content, metadata: c.Metadata})
				}
				summary.ProcessedFiles++
				if perr := o.sessions.AddProgress(ctx, req.SessionID, 1, 0); perr != nil {
					o.logger.Warn("processed-file counter update failed", "error", perr)
				}
			}
		}
		rows = append(rows, row)

		mark := progressScanStart
		if len(infos) > 0 {
			mark += (progressScanEnd - progressScanStart) * (i + 1) / len(infos)
		}
		sink.Progress(ctx, mark, progressDone,
			fmt.Sprintf("processed %d/%d files", i+1, len(infos)))
	}

	summary.TotalChunks = len(all)
	return rows, all, nil
}

func (o *Orchestrator) embedAndIndex(ctx context.Context, req Request, repoID string, embedder embed.Embedder, chunks []fileChunks, sink Sink, summary *Summary) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.content
	}

	processor := embed.NewBatchProcessor(embedder, o.cfg.Embed.BatchSize, o.logger)
	_, err := processor.Process(ctx, texts, func(batch embed.Batch, done, total int) error {
		if batch.Err != nil {
			summary.Errors = append(summary.Errors,
				fmt.Sprintf("embedding batch at %d: %v", batch.Start, batch.Err))
		} else {
			// Chunk ids continue from the collection's current count, so
			// concurrent historical ingests never collide.
			base, err := o.vectors.Count(ctx, repoID)
			if err != nil {
				return err
			}
			docs := make([]vectorstore.Document, len(batch.Texts))
			for i := range batch.Texts {
				meta := chunks[batch.Start+i].metadata
				docs[i] = vectorstore.Document{
					ID:       fmt.Sprintf("chunk_%s_%d", repoID, base+i),
					Content:  batch.Texts[i],
					Vector:   batch.Vectors[i],
					Metadata: meta.ToMap(),
				}
			}
			if err := o.vectors.AddDocuments(ctx, repoID, docs); err != nil {
				return err
			}
			summary.IndexedChunks += len(docs)
			if err := o.sessions.AddProgress(ctx, req.SessionID, 0, len(docs)); err != nil {
				o.logger.Warn("indexed-chunk counter update failed", "error", err)
			}
		}

		// The cancel check runs after the write, so every batch that
		// finished embedding is already in the collection.
		if sink.Cancelled(ctx) {
			return apperr.Cancelled(req.SessionID)
		}
		mark := progressScanEnd + (progressIndexEnd-progressScanEnd)*done/total
		sink.Progress(ctx, mark, progressDone,
			fmt.Sprintf("indexed batch %d/%d", done, total))
		return nil
	})
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}
