package lexical

import (
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/repoinsight/repoinsight/internal/vectorstore"
)

const defaultCacheSize = 32

// Cache holds BM25 indices per repository identifier. Entries are
// built lazily from the vector store's document dump and evicted LRU;
// concurrent builds for the same repository are coalesced.
type Cache struct {
	store   vectorstore.Store
	indices *lru.Cache[string, *Index]
	group   singleflight.Group
	logger  *slog.Logger
}

// NewCache creates a cache over the given vector store.
func NewCache(store vectorstore.Store, size int, logger *slog.Logger) (*Cache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	indices, err := lru.New[string, *Index](size)
	if err != nil {
		return nil, err
	}
	return &Cache{store: store, indices: indices, logger: logger}, nil
}

// Get returns the index for a repository, building it on first use.
func (c *Cache) Get(ctx context.Context, repoID string) (*Index, error) {
	if idx, ok := c.indices.Get(repoID); ok {
		return idx, nil
	}

	v, err, _ := c.group.Do(repoID, func() (any, error) {
		if idx, ok := c.indices.Get(repoID); ok {
			return idx, nil
		}
		docs, err := c.store.AllDocuments(ctx, repoID)
		if err != nil {
			return nil, err
		}
		idx := BuildIndex(docs)
		c.indices.Add(repoID, idx)
		c.logger.Info("built lexical index", "repository", repoID, "documents", idx.Len())
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Index), nil
}

// Invalidate drops one repository's index.
func (c *Cache) Invalidate(repoID string) {
	c.indices.Remove(repoID)
}

// Clear drops every cached index.
func (c *Cache) Clear() {
	c.indices.Purge()
}
