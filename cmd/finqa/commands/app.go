package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"finqa/internal/chunker"
	"finqa/internal/config"
	"finqa/internal/corpus"
	"finqa/internal/domain"
	"finqa/internal/embedding"
	"finqa/internal/embedding/openai"
	"finqa/internal/ingest"
	"finqa/internal/llm"
	llmopenai "finqa/internal/llm/openai"
	"finqa/internal/logging"
	"finqa/internal/service"
	"finqa/internal/session"
	"finqa/internal/vectorstore"
	"finqa/internal/vectorstore/memory"
	"finqa/internal/vectorstore/qdrant"
	"finqa/internal/vectorstore/sqlite"
)

// app is the set of components assembled from the configuration for one command run.
type app struct {
	cfg      *config.AppConfig
	log      *zap.Logger
	embedder embedding.Embedder
	store    vectorstore.Storage
	tickers  *session.Tickers
}

// loadConfig reads .env and the YAML config, applies flag overrides and validates the result.
func loadConfig(opts *rootOptions) (*config.AppConfig, error) {
	_ = godotenv.Load()

	var (
		cfg *config.AppConfig
		err error
	)
	if opts.configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(opts.configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.debug {
		cfg.Log.Debug = true
	}
	if opts.logFile != "" {
		cfg.Log.File = opts.logFile
	}
	cfg.Chat.DefaultTicker = strings.ToUpper(strings.TrimSpace(cfg.Chat.DefaultTicker))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if !session.KnownTickers().Contains(cfg.Chat.DefaultTicker) {
		return nil, fmt.Errorf("invalid config: unknown default ticker %s", cfg.Chat.DefaultTicker)
	}
	return cfg, nil
}

// newApp verifies credentials and assembles the embedder and vector store. The caller
// owns the returned app and must close it.
func newApp(cfg *config.AppConfig, log *zap.Logger, withGenerator bool) (*app, error) {
	if err := cfg.Credentials(withGenerator); err != nil {
		return nil, err
	}
	emb, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	st, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, embedder: emb, store: st, tickers: session.KnownTickers()}, nil
}

func (a *app) Close() error {
	err := a.store.Close()
	_ = a.log.Sync()
	return err
}

func newLogger(cfg *config.AppConfig, terminalUI bool) (*zap.Logger, error) {
	if terminalUI {
		return logging.ForTerminalUI(cfg.Log.Debug, cfg.Log.File)
	}
	return logging.New(cfg.Log.Debug, cfg.Log.File)
}

func buildEmbedder(cfg *config.AppConfig) (embedding.Embedder, error) {
	switch cfg.Embedder.Type {
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		e := cfg.Embedder.OpenAI
		client, err := openai.NewClient(openai.Config{
			BaseURL:    e.BaseURL,
			APIKeyEnv:  e.APIKeyEnv,
			Model:      e.Model,
			Timeout:    config.Seconds(e.TimeoutSecs),
			BatchSize:  e.BatchSize,
			Dimensions: e.Dimensions,
			MaxRetries: e.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func buildStore(cfg *config.AppConfig) (vectorstore.Storage, error) {
	switch cfg.VectorStore.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		if q == nil {
			return nil, errors.New("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.Key(),
			Collection: q.Collection,
			Timeout:    config.Seconds(q.TimeoutSecs),
		}), nil
	case "sqlite":
		s := cfg.VectorStore.SQLite
		if s == nil {
			return nil, errors.New("sqlite config missing")
		}
		st, err := sqlite.Open(sqlite.Config{Path: s.Path, Collection: s.Collection})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

func buildGenerator(cfg *config.AppConfig) (llm.Generator, error) {
	switch cfg.Generator.Type {
	case "openai":
		g := cfg.Generator.OpenAI
		if g == nil {
			return nil, errors.New("openai generator config missing")
		}
		client, err := llmopenai.NewClient(llmopenai.Config{
			BaseURL:     g.BaseURL,
			APIKeyEnv:   g.APIKeyEnv,
			Model:       g.Model,
			Timeout:     config.Seconds(g.TimeoutSecs),
			Temperature: g.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("openai generator init failed: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Generator.Type)
	}
}

func (a *app) pipeline(batchSize int) *ingest.Pipeline {
	ch := chunker.New(chunker.WithChunkSize(a.cfg.Chunker.ChunkSize), chunker.WithOverlap(a.cfg.Chunker.ChunkOverlap))
	pcfg := ingest.Config{
		BatchSize:         batchSize,
		RequestsPerSecond: a.cfg.Ingest.RequestsPerSecond,
	}
	if q := a.cfg.VectorStore.Qdrant; a.cfg.VectorStore.Type == "qdrant" && q != nil {
		pcfg.PollInterval = config.Seconds(q.ReadyPollSecs)
		pcfg.ReadyTimeout = config.Seconds(q.ReadyTimeoutSecs)
	}
	return ingest.New(ch, a.embedder, a.store, pcfg, a.log)
}

// ingestFile provisions the collection and loads the corpus at path into it.
func (a *app) ingestFile(ctx context.Context, path string, batchSize int) (ingest.Report, error) {
	rd, err := corpus.Open(path)
	if err != nil {
		return ingest.Report{}, err
	}
	p := a.pipeline(batchSize)
	if err := p.EnsureCollection(ctx); err != nil {
		return ingest.Report{}, err
	}
	a.log.Info("ingesting corpus", zap.String("source", rd.Source()), zap.Int("rows", rd.Len()))
	return p.Run(ctx, rd.Records())
}

// prepareQuery makes sure the collection can be queried. The in-memory store starts empty
// in every process, so it is loaded from the configured corpus first.
func (a *app) prepareQuery(ctx context.Context) error {
	if a.cfg.VectorStore.Type == "memory" {
		_, err := a.ingestFile(ctx, a.cfg.Ingest.SourcePath, a.cfg.Ingest.UpsertBatchSize)
		return err
	}
	ok, err := a.store.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: run `finqa ingest` first", domain.ErrCollectionNotFound)
	}
	return nil
}

// shell assembles the retriever, answerer and conversational shell.
func (a *app) shell() (*session.Shell, error) {
	gen, err := buildGenerator(a.cfg)
	if err != nil {
		return nil, err
	}
	r := service.NewRetriever(a.embedder, a.store, a.cfg.Retrieval.TopK, a.cfg.Retrieval.Threshold, a.log)
	ans := service.NewAnswerer(gen, a.log)
	return session.NewShell(a.tickers, r, ans, r.TopK(), r.Threshold(), a.log), nil
}
