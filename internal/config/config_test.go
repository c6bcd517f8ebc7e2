package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithFile_Defaults(t *testing.T) {
	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8084, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "chromem", cfg.VectorIndex.Provider)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 200, cfg.Ingest.ChunkSize)
	assert.Equal(t, 50, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, int64(10*1024*1024), cfg.Ingest.MaxFileSize)
	assert.Equal(t, 3, cfg.Answer.TopK)
	assert.Equal(t, 0.75, cfg.Answer.ConfidenceThreshold)
	assert.Equal(t, 4096, cfg.Answer.MaxTokens)
	assert.Contains(t, cfg.Ingest.AllowedTypes, "application/pdf")
}

func TestLoadWithFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 9090
vectorindex:
  provider: qdrant
qdrant:
  host: qdrant.internal
  vector_size: 1024
answer:
  confidence_threshold: 0.8
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "qdrant", cfg.VectorIndex.Provider)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, 1024, cfg.Qdrant.VectorSize)
	assert.Equal(t, 0.8, cfg.Answer.ConfidenceThreshold)
	// Untouched sections keep defaults.
	assert.Equal(t, "localhost", cfg.Server.Host)
}

func TestLoadWithFile_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600))

	t.Setenv("ASKD_SERVER_PORT", "7070")
	t.Setenv("ASKD_SERVER_SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("ASKD_LLM_API_KEY", "sk-test")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey.Value())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(*Config) {}, false},
		{"zero port", func(c *Config) { c.Server.Port = -1 }, true},
		{"overlap equals size", func(c *Config) { c.Ingest.ChunkOverlap = c.Ingest.ChunkSize }, true},
		{"negative overlap", func(c *Config) { c.Ingest.ChunkOverlap = -1 }, true},
		{"threshold above one", func(c *Config) { c.Answer.ConfidenceThreshold = 1.5 }, true},
		{"unknown index provider", func(c *Config) { c.VectorIndex.Provider = "pinecone" }, true},
		{"unknown llm provider", func(c *Config) { c.LLM.Provider = "bard" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("hunter2")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "hunter2", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(struct{ Key Secret }{Key: s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")

	var empty Secret
	assert.Equal(t, "", empty.String())
	assert.False(t, empty.IsSet())
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "server.port", envTransform("ASKD_SERVER_PORT"))
	assert.Equal(t, "server.shutdown_timeout", envTransform("ASKD_SERVER_SHUTDOWN_TIMEOUT"))
	assert.Equal(t, "answer.confidence_threshold", envTransform("ASKD_ANSWER_CONFIDENCE_THRESHOLD"))
}
