package embed

import (
	"log/slog"

	"github.com/repoinsight/repoinsight/internal/config"
)

// FromConfig builds the configured embedding provider.
func FromConfig(cfg config.EmbedConfig, logger *slog.Logger) (Embedder, error) {
	return NewOpenAIEmbedder(Options{
		Provider:   cfg.Provider,
		APIKey:     cfg.APIKeyFor(cfg.Provider),
		Model:      cfg.Model,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay(),
	}, logger)
}
