// Package ingest provisions the vector collection and loads the corpus into it.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"finqa/internal/domain"
	"finqa/internal/embedding"
	"finqa/internal/vectorstore"
)

const (
	DefaultBatchSize    = 100
	DefaultPollInterval = time.Second
	DefaultReadyTimeout = time.Minute
)

// Chunker splits a record into chunks carrying the record's metadata.
type Chunker interface {
	Chunk(record domain.Record) ([]domain.Chunk, error)
}

type Config struct {
	// BatchSize is the number of chunks embedded and upserted together.
	BatchSize int
	// RequestsPerSecond throttles upserts; zero disables throttling.
	RequestsPerSecond float64
	PollInterval      time.Duration
	ReadyTimeout      time.Duration
}

// Report summarizes one ingestion run.
type Report struct {
	Records int
	Skipped int
	Chunks  int
	Batches int
	// Total is the collection size after the run.
	Total int
}

type Pipeline struct {
	chunker  Chunker
	embedder embedding.Embedder
	store    vectorstore.Storage
	cfg      Config
	limiter  *rate.Limiter
	log      *zap.Logger
}

func New(chunker Chunker, embedder embedding.Embedder, store vectorstore.Storage, cfg Config, log *zap.Logger) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pipeline{chunker: chunker, embedder: embedder, store: store, cfg: cfg, log: log}
	if cfg.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return p
}

// EnsureCollection creates the collection when missing, sized to the embedder's output,
// and waits until the store reports it ready.
func (p *Pipeline) EnsureCollection(ctx context.Context) error {
	exists, err := p.store.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		p.log.Info("collection exists")
		return nil
	}

	dim, err := p.embedder.Dimension(ctx)
	if err != nil {
		return fmt.Errorf("embedding dimension: %w", err)
	}
	p.log.Info("creating collection", zap.Int("dimension", dim), zap.String("metric", "cosine"))
	if err := p.store.Create(ctx, dim); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ReadyTimeout)
	defer cancel()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		ready, err := p.store.Ready(ctx)
		if err != nil {
			return fmt.Errorf("collection status: %w", err)
		}
		if ready {
			p.log.Info("collection ready")
			return nil
		}
		p.log.Debug("waiting for collection")
		select {
		case <-ctx.Done():
			return fmt.Errorf("collection not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Run chunks, embeds and upserts every usable record. Records with an empty ticker or
// context, or with non-text content, are skipped and counted. The first failed batch
// aborts the run; batches already written stay in the store.
func (p *Pipeline) Run(ctx context.Context, records iter.Seq[domain.Record]) (Report, error) {
	var (
		rep     Report
		pending []domain.Chunk
	)
	for rec := range records {
		rep.Records++
		rec.Ticker = strings.ToUpper(strings.TrimSpace(rec.Ticker))
		if rec.Ticker == "" || strings.TrimSpace(rec.Context) == "" {
			rep.Skipped++
			continue
		}
		chunks, err := p.chunker.Chunk(rec)
		if errors.Is(err, domain.ErrInvalidInput) {
			p.log.Warn("skipping non-text record", zap.Int("document_id", rec.DocumentID))
			rep.Skipped++
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("chunk document %d: %w", rec.DocumentID, err)
		}
		pending = append(pending, chunks...)
		rep.Chunks += len(chunks)

		for len(pending) >= p.cfg.BatchSize {
			if err := p.flush(ctx, &rep, pending[:p.cfg.BatchSize]); err != nil {
				return rep, err
			}
			pending = pending[p.cfg.BatchSize:]
		}
	}
	if len(pending) > 0 {
		if err := p.flush(ctx, &rep, pending); err != nil {
			return rep, err
		}
	}

	total, err := p.store.Count(ctx)
	if err != nil {
		return rep, fmt.Errorf("count collection: %w", err)
	}
	rep.Total = total
	p.log.Info("ingestion finished",
		zap.Int("records", rep.Records),
		zap.Int("skipped", rep.Skipped),
		zap.Int("chunks", rep.Chunks),
		zap.Int("batches", rep.Batches),
		zap.Int("total", rep.Total),
	)
	return rep, nil
}

func (p *Pipeline) flush(ctx context.Context, rep *Report, batch []domain.Chunk) error {
	n := rep.Batches + 1
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("batch %d: embed: %w", n, err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("batch %d: embedder returned %d vectors for %d chunks", n, len(vectors), len(batch))
	}

	entries := make([]domain.VectorEntry, len(batch))
	for i, c := range batch {
		entries[i] = domain.VectorEntry{ID: c.ID(), Vector: vectors[i], Metadata: c.Metadata()}
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("batch %d: %w", n, err)
		}
	}
	if err := p.store.Upsert(ctx, entries); err != nil {
		return fmt.Errorf("batch %d: upsert: %w", n, err)
	}
	rep.Batches = n
	p.log.Debug("batch upserted", zap.Int("batch", n), zap.Int("entries", len(entries)))
	return nil
}
