// Package config loads RepoInsight configuration from three layers with
// increasing precedence: built-in defaults, an optional YAML file, and
// environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// StringList decodes either a comma-separated string or a JSON array.
type StringList []string

// Decode implements envconfig.Decoder.
func (s *StringList) Decode(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		*s = nil
		return nil
	}
	if strings.HasPrefix(value, "[") {
		var items []string
		if err := json.Unmarshal([]byte(value), &items); err != nil {
			return fmt.Errorf("parse JSON list: %w", err)
		}
		*s = items
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*s = out
	return nil
}

// Config is the complete RepoInsight configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	Git      GitConfig      `yaml:"git"`
	Chunking ChunkingConfig `yaml:"chunking"`
	Embed    EmbedConfig    `yaml:"embedding"`
	LLM      LLMConfig      `yaml:"llm"`
	Search   SearchConfig   `yaml:"search"`
	Scanner  ScannerConfig  `yaml:"scanner"`
	Queue    QueueConfig    `yaml:"queue"`
	Log      LogConfig      `yaml:"log"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Host string `yaml:"host" envconfig:"API_HOST"`
	Port int    `yaml:"port" envconfig:"API_PORT"`
}

// PostgresConfig configures the session store. If URL is set it wins
// over the discrete fields.
type PostgresConfig struct {
	URL      string `yaml:"url" envconfig:"DATABASE_URL"`
	Host     string `yaml:"host" envconfig:"POSTGRES_HOST"`
	Port     int    `yaml:"port" envconfig:"POSTGRES_PORT"`
	User     string `yaml:"user" envconfig:"POSTGRES_USER"`
	Password string `yaml:"password" envconfig:"POSTGRES_PASSWORD"`
	Database string `yaml:"database" envconfig:"POSTGRES_DB"`
	SSLMode  string `yaml:"sslmode" envconfig:"POSTGRES_SSLMODE"`
}

// DSN returns the connection string for lib/pq.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// RedisConfig configures the task queue broker.
type RedisConfig struct {
	Host     string `yaml:"host" envconfig:"REDIS_HOST"`
	Port     int    `yaml:"port" envconfig:"REDIS_PORT"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// QdrantConfig configures the vector store adapter.
type QdrantConfig struct {
	Host              string `yaml:"host" envconfig:"QDRANT_HOST"`
	Port              int    `yaml:"port" envconfig:"QDRANT_PORT"`
	MaxRetries        int    `yaml:"max_retries" envconfig:"QDRANT_MAX_RETRIES"`
	RetryDelaySeconds int    `yaml:"retry_delay" envconfig:"QDRANT_RETRY_DELAY"`
}

// RetryDelay returns the fixed delay between connection attempts.
func (q QdrantConfig) RetryDelay() time.Duration {
	return time.Duration(q.RetryDelaySeconds) * time.Second
}

// GitConfig configures repository acquisition.
type GitConfig struct {
	CloneDir            string `yaml:"clone_dir" envconfig:"GIT_CLONE_DIR"`
	CloneTimeoutSeconds int    `yaml:"clone_timeout" envconfig:"CLONE_TIMEOUT"`
}

// CloneTimeout returns the clone timeout as a duration.
func (g GitConfig) CloneTimeout() time.Duration {
	return time.Duration(g.CloneTimeoutSeconds) * time.Second
}

// ChunkingConfig holds the chunker size parameters. Sizes are
// non-whitespace character counts.
type ChunkingConfig struct {
	ChunkSize               int `yaml:"chunk_size" envconfig:"CHUNK_SIZE"`
	ChunkOverlap            int `yaml:"chunk_overlap" envconfig:"CHUNK_OVERLAP"`
	MinChunkSize            int `yaml:"min_chunk_size" envconfig:"MIN_CHUNK_SIZE"`
	MaxChunkSize            int `yaml:"max_chunk_size" envconfig:"MAX_CHUNK_SIZE"`
	ClassDecomposeThreshold int `yaml:"class_decompose_threshold" envconfig:"CLASS_DECOMPOSE_THRESHOLD"`
}

// EmbedConfig configures the embedding provider and batch processor.
type EmbedConfig struct {
	Provider          string `yaml:"provider" envconfig:"EMBEDDING_PROVIDER"`
	Model             string `yaml:"model" envconfig:"EMBEDDING_MODEL"`
	BatchSize         int    `yaml:"batch_size" envconfig:"EMBEDDING_BATCH_SIZE"`
	MaxRetries        int    `yaml:"max_retries" envconfig:"EMBEDDING_MAX_RETRIES"`
	RetryDelaySeconds int    `yaml:"retry_delay" envconfig:"EMBEDDING_RETRY_DELAY"`
	OpenAIAPIKey      string `yaml:"openai_api_key" envconfig:"OPENAI_API_KEY"`
	QwenAPIKey        string `yaml:"qwen_api_key" envconfig:"QWEN_API_KEY"`
}

// RetryDelay returns the base delay before exponential backoff.
func (e EmbedConfig) RetryDelay() time.Duration {
	return time.Duration(e.RetryDelaySeconds) * time.Second
}

// APIKeyFor returns the configured key for a provider name, falling
// back to the OpenAI key for OpenAI-compatible providers.
func (e EmbedConfig) APIKeyFor(provider string) string {
	switch strings.ToLower(provider) {
	case "qwen", "dashscope":
		return e.QwenAPIKey
	default:
		return e.OpenAIAPIKey
	}
}

// LLMConfig configures the answer-generation model.
type LLMConfig struct {
	Provider       string `yaml:"provider" envconfig:"LLM_PROVIDER"`
	Model          string `yaml:"model" envconfig:"LLM_MODEL"`
	TimeoutSeconds int    `yaml:"timeout" envconfig:"LLM_TIMEOUT"`
}

// Timeout returns the per-request LLM timeout.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// SearchConfig configures hybrid retrieval depths.
type SearchConfig struct {
	VectorTopK int `yaml:"vector_top_k" envconfig:"VECTOR_SEARCH_TOP_K"`
	BM25TopK   int `yaml:"bm25_top_k" envconfig:"BM25_SEARCH_TOP_K"`
	FinalTopK  int `yaml:"final_top_k" envconfig:"FINAL_CONTEXT_TOP_K"`
}

// ScannerConfig configures file selection.
type ScannerConfig struct {
	AllowedExtensions StringList `yaml:"allowed_extensions" envconfig:"ALLOWED_FILE_EXTENSIONS"`
	ExcludedDirs      StringList `yaml:"excluded_directories" envconfig:"EXCLUDED_DIRECTORIES"`
	MaxFileSize       int64      `yaml:"max_file_size" envconfig:"MAX_FILE_SIZE"`
}

// QueueConfig configures task result retention.
type QueueConfig struct {
	ResultExpiresSeconds int `yaml:"result_expires" envconfig:"RESULT_EXPIRES"`
}

// ResultExpires returns the task result retention duration.
func (q QueueConfig) ResultExpires() time.Duration {
	return time.Duration(q.ResultExpiresSeconds) * time.Second
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" envconfig:"LOG_LEVEL"`
	File  string `yaml:"file" envconfig:"LOG_FILE"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		API:      APIConfig{Host: "0.0.0.0", Port: 8000},
		Postgres: PostgresConfig{Host: "localhost", Port: 5432, User: "postgres", Database: "repoinsight", SSLMode: "disable"},
		Redis:    RedisConfig{Host: "localhost", Port: 6379},
		Qdrant:   QdrantConfig{Host: "localhost", Port: 6334, MaxRetries: 3, RetryDelaySeconds: 1},
		Git:      GitConfig{CloneDir: "/tmp/repoinsight/repos", CloneTimeoutSeconds: 300},
		Chunking: ChunkingConfig{
			ChunkSize:               1000,
			ChunkOverlap:            200,
			MinChunkSize:            100,
			MaxChunkSize:            2000,
			ClassDecomposeThreshold: 2,
		},
		Embed:  EmbedConfig{Provider: "openai", BatchSize: 32, MaxRetries: 3, RetryDelaySeconds: 1},
		LLM:    LLMConfig{Provider: "openai", Model: "gpt-4o-mini", TimeoutSeconds: 120},
		Search: SearchConfig{VectorTopK: 10, BM25TopK: 10, FinalTopK: 10},
		Scanner: ScannerConfig{
			AllowedExtensions: StringList{
				".py", ".js", ".ts", ".jsx", ".tsx", ".java", ".c", ".cpp", ".h", ".hpp",
				".go", ".rs", ".cs", ".rb", ".php", ".swift", ".kt", ".scala", ".sh",
				".md", ".rst", ".txt", ".json", ".yaml", ".yml", ".toml", ".ini", ".cfg",
				".xml", ".html", ".css", ".sql", "dockerfile", "makefile", "readme",
				"license", "changelog",
			},
			ExcludedDirs: StringList{".git", "node_modules", "dist", "build", "venv", ".venv", "target"},
			MaxFileSize:  1 << 20,
		},
		Queue: QueueConfig{ResultExpiresSeconds: 3600},
		Log:   LogConfig{Level: "info"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty or missing), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the rest of the system relies on.
func (c *Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api port out of range: %d", c.API.Port)
	}
	ch := c.Chunking
	if ch.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", ch.ChunkSize)
	}
	if ch.ChunkOverlap < 0 || ch.ChunkOverlap >= ch.ChunkSize {
		return fmt.Errorf("chunk_overlap %d must be in [0, chunk_size)", ch.ChunkOverlap)
	}
	if ch.MinChunkSize <= 0 || ch.MinChunkSize > ch.ChunkSize {
		return fmt.Errorf("min_chunk_size %d must be in (0, chunk_size]", ch.MinChunkSize)
	}
	if ch.MaxChunkSize < ch.ChunkSize {
		return fmt.Errorf("max_chunk_size %d must be >= chunk_size", ch.MaxChunkSize)
	}
	if ch.ClassDecomposeThreshold <= 0 {
		return fmt.Errorf("class_decompose_threshold must be positive")
	}
	if c.Embed.BatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive")
	}
	for _, k := range []struct {
		name string
		v    int
	}{
		{"vector_top_k", c.Search.VectorTopK},
		{"bm25_top_k", c.Search.BM25TopK},
		{"final_top_k", c.Search.FinalTopK},
	} {
		if k.v <= 0 {
			return fmt.Errorf("%s must be positive", k.name)
		}
	}
	if c.Scanner.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be positive")
	}
	return nil
}
