// Package config provides configuration loading for askd.
//
// Configuration is loaded from a YAML file with environment variable
// overrides. Every section has sensible defaults so askd starts with an
// embedded vector index and local stores when no configuration exists.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig indicates configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete askd configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	LLM         LLMConfig         `koanf:"llm"`
	VectorIndex VectorIndexConfig `koanf:"vectorindex"`
	Chromem     ChromemConfig     `koanf:"chromem"`
	Qdrant      QdrantConfig      `koanf:"qdrant"`
	Notes       NotesConfig       `koanf:"notes"`
	Blob        BlobConfig        `koanf:"blob"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Answer      AnswerConfig      `koanf:"answer"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// UploadAuthKey is the shared secret required by the stored-file
	// endpoint (X-Upload-Auth-Key header). Empty disables the check.
	UploadAuthKey Secret `koanf:"upload_auth_key"`
}

// LoggingConfig holds logger construction settings.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// EmbeddingConfig holds the embedding backend configuration.
//
// The backend must expose an OpenAI-compatible embeddings endpoint.
// Works with TEI (Text Embeddings Inference) and OpenAI itself.
type EmbeddingConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
}

// LLMConfig holds the language model backend configuration.
type LLMConfig struct {
	// Provider selects the chat backend: "anthropic" or "openai".
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	APIKey   Secret `koanf:"api_key"`

	// BaseURL overrides the API endpoint for OpenAI-compatible
	// servers. Ignored by the anthropic provider.
	BaseURL string `koanf:"base_url"`
}

// VectorIndexConfig selects the vector index backend.
type VectorIndexConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant" (external).
	Provider string `koanf:"provider"`
}

// ChromemConfig holds configuration for the embedded chromem-go index.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
}

// QdrantConfig holds configuration for the Qdrant gRPC index.
type QdrantConfig struct {
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port"`
	Collection   string        `koanf:"collection"`
	VectorSize   int           `koanf:"vector_size"`
	UseTLS       bool          `koanf:"use_tls"`
	MaxRetries   int           `koanf:"max_retries"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
}

// NotesConfig holds the Q&A note store configuration.
type NotesConfig struct {
	// Path is the SQLite database file.
	Path string `koanf:"path"`
}

// BlobConfig holds the raw document blob store configuration.
type BlobConfig struct {
	// Path is the directory for stored files and metadata sidecars.
	Path string `koanf:"path"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	// ChunkSize is the chunk length in characters.
	ChunkSize int `koanf:"chunk_size"`

	// ChunkOverlap is the overlap between consecutive chunks.
	// Must satisfy 0 <= overlap < size.
	ChunkOverlap int `koanf:"chunk_overlap"`

	// MaxFileSize is the upload size limit in bytes.
	MaxFileSize int64 `koanf:"max_file_size"`

	// AllowedTypes lists accepted upload content types.
	AllowedTypes []string `koanf:"allowed_types"`
}

// AnswerConfig holds retrieval and grounding settings.
type AnswerConfig struct {
	// TopK is the number of index matches retrieved per question.
	TopK int `koanf:"top_k"`

	// ConfidenceThreshold gates answering: when the best match scores
	// below it, askd returns a fixed low-confidence message and never
	// calls the model. A score exactly at the threshold passes.
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`

	// MaxTokens bounds model output per answer.
	MaxTokens int `koanf:"max_tokens"`

	// NoteLimit is the number of reference notes included as context.
	NoteLimit int `koanf:"note_limit"`

	// LineBreak replaces newlines in streamed answer text. Empty keeps
	// plain "\n"; set "<br>" for HTML consumers.
	LineBreak string `koanf:"line_break"`
}

// applyDefaults fills unset fields with default values.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8084
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:8080/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "BAAI/bge-base-en-v1.5"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "claude-3-5-sonnet-latest"
	}
	if cfg.VectorIndex.Provider == "" {
		cfg.VectorIndex.Provider = "chromem"
	}
	if cfg.Chromem.Path == "" {
		cfg.Chromem.Path = "~/.local/share/askd/index"
	}
	if cfg.Chromem.Collection == "" {
		cfg.Chromem.Collection = "askd_default"
	}
	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = "askd_default"
	}
	if cfg.Qdrant.VectorSize == 0 {
		cfg.Qdrant.VectorSize = 768
	}
	if cfg.Qdrant.MaxRetries == 0 {
		cfg.Qdrant.MaxRetries = 3
	}
	if cfg.Qdrant.RetryBackoff == 0 {
		cfg.Qdrant.RetryBackoff = time.Second
	}
	if cfg.Notes.Path == "" {
		cfg.Notes.Path = "~/.local/share/askd/notes.db"
	}
	if cfg.Blob.Path == "" {
		cfg.Blob.Path = "~/.local/share/askd/blobs"
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 200
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 50
	}
	if cfg.Ingest.MaxFileSize == 0 {
		cfg.Ingest.MaxFileSize = 10 * 1024 * 1024
	}
	if len(cfg.Ingest.AllowedTypes) == 0 {
		cfg.Ingest.AllowedTypes = []string{
			"text/plain",
			"text/csv",
			"text/markdown",
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/vnd.ms-excel",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		}
	}
	if cfg.Answer.TopK == 0 {
		cfg.Answer.TopK = 3
	}
	if cfg.Answer.ConfidenceThreshold == 0 {
		cfg.Answer.ConfidenceThreshold = 0.75
	}
	if cfg.Answer.MaxTokens == 0 {
		cfg.Answer.MaxTokens = 4096
	}
	if cfg.Answer.NoteLimit == 0 {
		cfg.Answer.NoteLimit = 3
	}
}

// Validate checks the configuration for invalid values.
//
// Chunk geometry is a load-time precondition: the chunker does not
// validate per call, so a bad size/overlap pair must be rejected here.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port: %d", ErrInvalidConfig, c.Server.Port)
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("%w: chunk overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d",
			ErrInvalidConfig, c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	if c.Ingest.MaxFileSize <= 0 {
		return fmt.Errorf("%w: max file size must be positive", ErrInvalidConfig)
	}
	if c.Answer.ConfidenceThreshold < 0 || c.Answer.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence threshold must be in [0, 1], got %g",
			ErrInvalidConfig, c.Answer.ConfidenceThreshold)
	}
	if c.Answer.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive", ErrInvalidConfig)
	}
	if c.Answer.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive", ErrInvalidConfig)
	}
	switch c.VectorIndex.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("%w: unsupported vectorindex provider: %s (supported: chromem, qdrant)",
			ErrInvalidConfig, c.VectorIndex.Provider)
	}
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("%w: unsupported llm provider: %s (supported: anthropic, openai)",
			ErrInvalidConfig, c.LLM.Provider)
	}
	return nil
}
