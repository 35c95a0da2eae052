// Package llm calls OpenAI-compatible chat-completion APIs to
// synthesize answers from retrieved context.
package llm

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

// Chatter generates a completion for a prompt.
type Chatter interface {
	Chat(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

// Options configure a chat client.
type Options struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

var chatDefaults = map[string]struct {
	baseURL string
	model   string
}{
	"openai": {"https://api.openai.com/v1", "gpt-4o-mini"},
	"qwen":   {"https://dashscope.aliyuncs.com/compatible-mode/v1", "qwen-plus"},
}

// Client is an OpenAI-compatible chat-completions client.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// New builds a chat client from options.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	preset, ok := chatDefaults[strings.ToLower(opts.Provider)]
	if !ok {
		return nil, apperr.Newf(apperr.ErrCodeConfigInvalid, "unknown LLM provider: %s", opts.Provider)
	}
	if opts.APIKey == "" {
		return nil, apperr.Newf(apperr.ErrCodeMissingAPIKey, "no API key configured for LLM provider %s", opts.Provider)
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
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  opts.APIKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// ModelName returns the model identifier.
func (c *Client) ModelName() string { return c.model }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends the prompt as a single user message and returns the
// first choice's content.
func (c *Client) Chat(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", apperr.New(apperr.ErrCodeLLMFailed, "marshal chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", apperr.New(apperr.ErrCodeLLMFailed, "build chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperr.New(apperr.ErrCodeLLMFailed, "call chat API", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", apperr.New(apperr.ErrCodeLLMFailed, "read chat response", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", apperr.New(apperr.ErrCodeLLMFailed, "decode chat response", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("chat API returned %d", resp.StatusCode)
		if parsed.Error != nil {
			msg = fmt.Sprintf("chat API %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", apperr.Newf(apperr.ErrCodeLLMFailed, "%s", msg)
	}
	if len(parsed.Choices) == 0 {
		return "", apperr.Newf(apperr.ErrCodeLLMFailed, "chat API returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
