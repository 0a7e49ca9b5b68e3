package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"finqa/internal/domain"
)

const (
	defaultChunkOverlap = 200
	defaultThreshold    = 0.3

	// overlapUnset marks a chunk_overlap absent from the file; zero is a valid overlap.
	overlapUnset = math.MinInt
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
	// Dimensions skips the probe request when the model's output size is known.
	Dimensions int `yaml:"dimensions,omitempty"`
	MaxRetries int `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how corpus contexts are split into chunks.
type ChunkerConfig struct {
	Type         string `yaml:"type"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL string `yaml:"url"`
	// APIKey takes precedence over APIKeyEnv.
	APIKey           string `yaml:"api_key,omitempty"`
	APIKeyEnv        string `yaml:"api_key_env"`
	Collection       string `yaml:"collection"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
	ReadyPollSecs    int    `yaml:"ready_poll_secs"`
	ReadyTimeoutSecs int    `yaml:"ready_timeout_secs"`
}

// SQLiteConfig locates the local vector database.
type SQLiteConfig struct {
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
}

// OpenAIGeneratorConfig holds configuration for the OpenAI-compatible chat model.
type OpenAIGeneratorConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	Temperature float32 `yaml:"temperature"`
}

// GeneratorConfig selects and configures the answer generator.
type GeneratorConfig struct {
	Type   string                 `yaml:"type"`
	OpenAI *OpenAIGeneratorConfig `yaml:"openai,omitempty"`
}

// IngestConfig configures the offline ingestion run.
type IngestConfig struct {
	SourcePath      string `yaml:"source_path"`
	UpsertBatchSize int    `yaml:"upsert_batch_size"`
	// RequestsPerSecond throttles upserts; zero means unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// RetrievalConfig holds the per-ticker search parameters.
type RetrievalConfig struct {
	TopK      int     `yaml:"top_k"`
	Threshold float64 `yaml:"threshold"`
}

type ChatConfig struct {
	DefaultTicker string `yaml:"default_ticker"`
}

type LogConfig struct {
	Debug bool   `yaml:"debug"`
	File  string `yaml:"file,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Chat        ChatConfig        `yaml:"chat"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	// Fields where zero is a valid setting are seeded so that absent keys are told apart
	// from explicit zeros.
	cfg := AppConfig{
		Chunker:   ChunkerConfig{ChunkOverlap: overlapUnset},
		Retrieval: RetrievalConfig{Threshold: defaultThreshold},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/finqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/finqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks value ranges and the selected implementations.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Embedder.Type != "openai" {
		errs = append(errs, fmt.Errorf("unknown embedder: %s", c.Embedder.Type))
	}
	if c.Generator.Type != "openai" {
		errs = append(errs, fmt.Errorf("unknown generator: %s", c.Generator.Type))
	}
	if c.Chunker.Type != "window" {
		errs = append(errs, fmt.Errorf("unknown chunker: %s", c.Chunker.Type))
	}
	switch c.VectorStore.Type {
	case "qdrant", "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown vector store: %s", c.VectorStore.Type))
	}
	if c.Chunker.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunker.chunk_size must be positive, got %d", c.Chunker.ChunkSize))
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		errs = append(errs, fmt.Errorf("chunker.chunk_overlap must be in [0, chunk_size), got %d", c.Chunker.ChunkOverlap))
	}
	if c.Ingest.UpsertBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.upsert_batch_size must be positive, got %d", c.Ingest.UpsertBatchSize))
	}
	if c.Ingest.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("ingest.requests_per_second must not be negative"))
	}
	if e := c.Embedder.OpenAI; e != nil && e.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embedder.openai.batch_size must be positive, got %d", e.BatchSize))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		errs = append(errs, fmt.Errorf("retrieval.threshold must be in [0, 1], got %g", c.Retrieval.Threshold))
	}
	if c.Chat.DefaultTicker == "" {
		errs = append(errs, errors.New("chat.default_ticker must be set"))
	}
	return errors.Join(errs...)
}

// Credentials reports every required credential missing from the environment. The model
// key is needed for embedding and, when withGenerator is set, for generation; the vector
// store key only for a hosted qdrant collection.
func (c *AppConfig) Credentials(withGenerator bool) error {
	var errs []error
	seen := map[string]bool{}
	check := func(env string) {
		if env == "" || seen[env] {
			return
		}
		seen[env] = true
		if os.Getenv(env) == "" {
			errs = append(errs, fmt.Errorf("%w: environment variable %s is not set", domain.ErrMissingCredential, env))
		}
	}
	if e := c.Embedder.OpenAI; e != nil {
		check(e.APIKeyEnv)
	}
	if g := c.Generator.OpenAI; withGenerator && g != nil {
		check(g.APIKeyEnv)
	}
	if q := c.VectorStore.Qdrant; c.VectorStore.Type == "qdrant" && q != nil && q.APIKey == "" {
		check(q.APIKeyEnv)
	}
	return errors.Join(errs...)
}

// Key returns the configured API key, falling back to the environment.
func (q *QdrantConfig) Key() string {
	if q.APIKey != "" {
		return q.APIKey
	}
	return os.Getenv(q.APIKeyEnv)
}

// Seconds converts a config value in seconds to a duration.
func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "finqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "openai"},
		Chunker:     ChunkerConfig{Type: "window", ChunkOverlap: overlapUnset},
		VectorStore: VectorStoreConfig{Type: "qdrant"},
		Generator:   GeneratorConfig{Type: "openai"},
		Ingest:      IngestConfig{SourcePath: "Financial-QA-10k.csv"},
		Retrieval:   RetrievalConfig{Threshold: defaultThreshold},
		Chat:        ChatConfig{DefaultTicker: "NVDA"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		e := cfg.Embedder.OpenAI
		if e.BaseURL == "" {
			e.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
		}
		if e.APIKeyEnv == "" {
			e.APIKeyEnv = "GEMINI_API_KEY"
		}
		if e.Model == "" {
			e.Model = "text-embedding-004"
		}
		if e.TimeoutSecs == 0 {
			e.TimeoutSecs = 30
		}
		if e.BatchSize == 0 {
			e.BatchSize = 32
		}
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "window"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Chunker.ChunkOverlap == overlapUnset {
		cfg.Chunker.ChunkOverlap = min(defaultChunkOverlap, cfg.Chunker.ChunkSize/5)
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "qdrant"
	}
	switch cfg.VectorStore.Type {
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		q := cfg.VectorStore.Qdrant
		if q.URL == "" {
			q.URL = "http://localhost:6333"
		}
		if q.APIKeyEnv == "" {
			q.APIKeyEnv = "QDRANT_API_KEY"
		}
		if q.Collection == "" {
			q.Collection = "financial-reports"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
		if q.ReadyPollSecs == 0 {
			q.ReadyPollSecs = 1
		}
		if q.ReadyTimeoutSecs == 0 {
			q.ReadyTimeoutSecs = 60
		}
	case "sqlite":
		if cfg.VectorStore.SQLite == nil {
			cfg.VectorStore.SQLite = &SQLiteConfig{}
		}
		s := cfg.VectorStore.SQLite
		if s.Path == "" {
			s.Path = defaultDataPath()
		}
		if s.Collection == "" {
			s.Collection = "financial-reports"
		}
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "openai"
	}
	if cfg.Generator.Type == "openai" {
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIGeneratorConfig{}
		}
		g := cfg.Generator.OpenAI
		if g.BaseURL == "" {
			g.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
		}
		if g.APIKeyEnv == "" {
			g.APIKeyEnv = "GEMINI_API_KEY"
		}
		if g.Model == "" {
			g.Model = "gemini-2.5-flash"
		}
		if g.TimeoutSecs == 0 {
			g.TimeoutSecs = 120
		}
	}

	if cfg.Ingest.SourcePath == "" {
		cfg.Ingest.SourcePath = "Financial-QA-10k.csv"
	}
	if cfg.Ingest.UpsertBatchSize == 0 {
		cfg.Ingest.UpsertBatchSize = 100
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Chat.DefaultTicker == "" {
		cfg.Chat.DefaultTicker = "NVDA"
	}
}

func defaultDataPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".finqa", "vectors.db")
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "finqa", "vectors.db")
}
