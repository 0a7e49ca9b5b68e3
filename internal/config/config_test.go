package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finqa/internal/domain"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)
	assert.Equal(t, 200, cfg.Chunker.ChunkOverlap)
	assert.Equal(t, "qdrant", cfg.VectorStore.Type)
	assert.Equal(t, "QDRANT_API_KEY", cfg.VectorStore.Qdrant.APIKeyEnv)
	assert.Equal(t, "GEMINI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, 32, cfg.Embedder.OpenAI.BatchSize)
	assert.Equal(t, 100, cfg.Ingest.UpsertBatchSize)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.3, cfg.Retrieval.Threshold, 1e-9)
	assert.Equal(t, "NVDA", cfg.Chat.DefaultTicker)
}

func TestLoad_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
vector_store:
  type: sqlite
  sqlite:
    path: /tmp/finqa/vectors.db
retrieval:
  top_k: 8
chat:
  default_ticker: AAPL
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.VectorStore.Type)
	assert.Equal(t, "/tmp/finqa/vectors.db", cfg.VectorStore.SQLite.Path)
	assert.Equal(t, "financial-reports", cfg.VectorStore.SQLite.Collection)
	assert.Nil(t, cfg.VectorStore.Qdrant)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.3, cfg.Retrieval.Threshold, 1e-9)
	assert.Equal(t, "AAPL", cfg.Chat.DefaultTicker)
	assert.Equal(t, "gemini-2.5-flash", cfg.Generator.OpenAI.Model)
}

func TestLoad_ExplicitZeros(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chunker:
  chunk_size: 150
  chunk_overlap: 0
retrieval:
  threshold: 0
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 150, cfg.Chunker.ChunkSize)
	assert.Equal(t, 0, cfg.Chunker.ChunkOverlap)
	assert.Zero(t, cfg.Retrieval.Threshold)
}

func TestLoad_OverlapFollowsSmallChunkSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker:\n  chunk_size: 150\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30, cfg.Chunker.ChunkOverlap)
	assert.InDelta(t, 0.3, cfg.Retrieval.Threshold, 1e-9)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker: [unterminated"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Retrieval.Threshold = 0.5
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		want   string
	}{
		{"threshold above one", func(c *AppConfig) { c.Retrieval.Threshold = 1.5 }, "retrieval.threshold"},
		{"overlap not below size", func(c *AppConfig) { c.Chunker.ChunkOverlap = c.Chunker.ChunkSize }, "chunk_overlap"},
		{"negative batch", func(c *AppConfig) { c.Ingest.UpsertBatchSize = -1 }, "upsert_batch_size"},
		{"unknown store", func(c *AppConfig) { c.VectorStore.Type = "pinecone" }, "unknown vector store"},
		{"negative rate", func(c *AppConfig) { c.Ingest.RequestsPerSecond = -2 }, "requests_per_second"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestCredentials(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("QDRANT_API_KEY", "")
	cfg := defaultConfig()

	err := cfg.Credentials(true)
	require.ErrorIs(t, err, domain.ErrMissingCredential)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
	assert.Contains(t, err.Error(), "QDRANT_API_KEY")

	t.Setenv("GEMINI_API_KEY", "g")
	err = cfg.Credentials(true)
	require.ErrorIs(t, err, domain.ErrMissingCredential)
	assert.NotContains(t, err.Error(), "GEMINI_API_KEY")

	cfg.VectorStore.Qdrant.APIKey = "inline"
	assert.NoError(t, cfg.Credentials(true))
	assert.Equal(t, "inline", cfg.VectorStore.Qdrant.Key())

	cfg.VectorStore.Type = "memory"
	cfg.VectorStore.Qdrant.APIKey = ""
	assert.NoError(t, cfg.Credentials(false))
}
