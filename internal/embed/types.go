// Package embed generates vector embeddings through OpenAI-compatible
// embedding APIs, with retry, failure classification, and batching.
package embed

import (
	"context"
	"time"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// EmbedDocuments embeds a batch of document texts, returning one
	// vector per input in order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// ModelName returns the model identifier.
	ModelName() string

	// Dimensions returns the embedding dimension.
	Dimensions() int
}

// Options configure an embedding provider.
type Options struct {
	// Provider selects the preset: "openai" or "qwen".
	Provider string
	// APIKey authenticates against the provider.
	APIKey string
	// Model overrides the provider's default model.
	Model string
	// BaseURL overrides the provider's default endpoint.
	BaseURL string
	// MaxRetries is the retry count per request.
	MaxRetries int
	// RetryDelay is the base delay, doubled on each attempt.
	RetryDelay time.Duration
	// Timeout bounds a single HTTP request.
	Timeout time.Duration
}
