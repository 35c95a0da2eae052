// Package vectorstore persists chunk embeddings in Qdrant, one
// collection per indexed repository.
package vectorstore

import "context"

// Document is one stored chunk: a stable chunk id, the chunk text,
// its embedding, and flattened metadata.
type Document struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]any
}

// ScoredDocument is a search hit. Score is 1/(1+distance) so higher
// is better and the value stays in (0, 1].
type ScoredDocument struct {
	Document
	Distance float64
	Score    float64
}

// Store is the vector database surface the ingestion and query
// pipelines depend on.
type Store interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, name string, dimensions int) error

	// CollectionExists reports whether the collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context, name string) (int, error)

	// AddDocuments upserts documents into the collection.
	AddDocuments(ctx context.Context, name string, docs []Document) error

	// Search returns the topK nearest documents for the query vector.
	Search(ctx context.Context, name string, vector []float32, topK int) ([]ScoredDocument, error)

	// AllDocuments returns every document in the collection, without
	// vectors. Used to build the lexical index.
	AllDocuments(ctx context.Context, name string) ([]Document, error)

	// DeleteCollection removes the collection and its documents.
	DeleteCollection(ctx context.Context, name string) error

	// Close releases the client connection.
	Close() error
}
