package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperr "github.com/repoinsight/repoinsight/internal/errors"
)

// Provider presets. Both speak the OpenAI embeddings protocol.
var providerDefaults = map[string]struct {
	baseURL    string
	model      string
	dimensions int
}{
	"openai": {"https://api.openai.com/v1", "text-embedding-3-small", 1536},
	"qwen":   {"https://dashscope.aliyuncs.com/compatible-mode/v1", "text-embedding-v3", 1024},
}

// OpenAIEmbedder talks to an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
	logger     *slog.Logger
}

// NewOpenAIEmbedder builds an embedder from options. Unknown providers
// are rejected; a missing API key is a configuration error.
func NewOpenAIEmbedder(opts Options, logger *slog.Logger) (*OpenAIEmbedder, error) {
	preset, ok := providerDefaults[strings.ToLower(opts.Provider)]
	if !ok {
		return nil, apperr.Newf(apperr.ErrCodeConfigInvalid, "unknown embedding provider: %s", opts.Provider)
	}
	if opts.APIKey == "" {
		return nil, apperr.Newf(apperr.ErrCodeMissingAPIKey, "no API key configured for embedding provider %s", opts.Provider)
	}

	baseURL := preset.baseURL
	if opts.BaseURL != "" {
		baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	model := preset.model
	if opts.Model != "" {
		model = opts.Model
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIEmbedder{
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		model:      model,
		dimensions: preset.dimensions,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string { return e.model }

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// EmbedDocuments embeds a batch of texts, one vector per input.
func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var vectors [][]float32
	err := withRetry(ctx, e.maxRetries, e.retryDelay, e.logger, func() error {
		v, err := e.request(ctx, texts)
		if err != nil {
			return err
		}
		vectors = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(vectors) != len(texts) {
		return nil, apperr.Newf(apperr.ErrCodeEmbeddingFailed,
			"embedding API returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (e *OpenAIEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{
		Model:          e.model,
		Input:          texts,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, err
	}

	var parsed embeddingResponse
	if resp.StatusCode != http.StatusOK {
		// Surface the response body so failure classification can see
		// the provider's error wording.
		_ = json.Unmarshal(payload, &parsed)
		if parsed.Error != nil {
			return nil, fmt.Errorf("embedding API %d %s: %s", resp.StatusCode, parsed.Error.Code, parsed.Error.Message)
		}
		return nil, fmt.Errorf("embedding API %d: %s", resp.StatusCode, truncate(string(payload), 500))
	}

	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}

	vectors := make([][]float32, len(parsed.Data))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding response index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("embedding response missing vector for input %d", i)
		}
	}
	return vectors, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
