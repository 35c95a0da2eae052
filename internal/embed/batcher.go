package embed

import (
	"context"
	"log/slog"

	apperr "github.com/repoinsight/repoinsight/internal/errors"
)

// Batch is one embedded slice of the input, aligned to the original
// text order. Failed batches carry Err and no vectors.
type Batch struct {
	// Start is the offset of the batch's first text in the input.
	Start   int
	Texts   []string
	Vectors [][]float32
	Err     error
}

// BatchFunc receives each batch as soon as it is embedded, with
// batches done out of total. Returning an error stops processing;
// this is the natural cancellation checkpoint between batches, and
// because it runs per batch, callers can persist each batch before a
// later cancellation discards the rest.
type BatchFunc func(batch Batch, done, total int) error

// BatchProcessor embeds large document sets in fixed-size batches.
// Auth failures abort the whole run; any other batch failure is
// recorded and processing continues with the next batch.
type BatchProcessor struct {
	embedder  Embedder
	batchSize int
	logger    *slog.Logger
}

// NewBatchProcessor creates a processor with the given batch size.
func NewBatchProcessor(embedder Embedder, batchSize int, logger *slog.Logger) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{embedder: embedder, batchSize: batchSize, logger: logger}
}

// Process embeds texts batch by batch, handing each batch to handle
// as it completes. The returned slice has one entry per batch in
// input order; auth errors, cancellation, and handle errors return
// early with the batches finished so far.
func (p *BatchProcessor) Process(ctx context.Context, texts []string, handle BatchFunc) ([]Batch, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	total := (len(texts) + p.batchSize - 1) / p.batchSize
	batches := make([]Batch, 0, total)

	for i := 0; i < len(texts); i += p.batchSize {
		if err := ctx.Err(); err != nil {
			return batches, apperr.New(apperr.ErrCodeTaskCancelled, "embedding cancelled", err)
		}

		end := i + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := Batch{Start: i, Texts: texts[i:end]}

		vectors, err := p.embedder.EmbedDocuments(ctx, batch.Texts)
		if err != nil {
			if apperr.GetCode(err) == apperr.ErrCodeEmbeddingAuth ||
				apperr.GetCode(err) == apperr.ErrCodeTaskCancelled {
				return batches, err
			}
			p.logger.Error("embedding batch failed",
				"batch", len(batches), "start", i, "size", end-i, "error", err)
			batch.Err = err
		} else {
			batch.Vectors = vectors
		}

		batches = append(batches, batch)
		if handle != nil {
			if err := handle(batch, len(batches), total); err != nil {
				return batches, err
			}
		}
	}
	return batches, nil
}
