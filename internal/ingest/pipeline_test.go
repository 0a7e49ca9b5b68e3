package ingest

import (
	"context"
	"errors"
	"iter"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finqa/internal/chunker"
	"finqa/internal/domain"
	"finqa/internal/vectorstore/memory"
)

type fakeEmbedder struct {
	dim     int
	batches [][]string
	failAt  int
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Dimension(context.Context) (int, error) { return f.dim, nil }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	if f.failAt > 0 && len(f.batches) == f.failAt {
		return nil, errors.New("quota exceeded")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len([]rune(t))), 1}
	}
	return out, nil
}

// slowStore reports ready only after a number of status checks.
type slowStore struct {
	*memory.Storage
	readyAfter int
	checks     int
}

func (s *slowStore) Ready(ctx context.Context) (bool, error) {
	s.checks++
	if s.checks < s.readyAfter {
		return false, nil
	}
	return s.Storage.Ready(ctx)
}

func records(recs ...domain.Record) iter.Seq[domain.Record] {
	return slices.Values(recs)
}

func TestEnsureCollection_CreatesAndPolls(t *testing.T) {
	store := &slowStore{Storage: memory.NewStorage(), readyAfter: 3}
	p := New(chunker.New(), &fakeEmbedder{dim: 2}, store, Config{PollInterval: time.Millisecond}, nil)

	require.NoError(t, p.EnsureCollection(context.Background()))
	assert.Equal(t, 3, store.checks)
	ok, _ := store.Exists(context.Background())
	assert.True(t, ok)

	// second call sees the existing collection and does not poll again
	require.NoError(t, p.EnsureCollection(context.Background()))
	assert.Equal(t, 3, store.checks)
}

func TestEnsureCollection_Timeout(t *testing.T) {
	store := &slowStore{Storage: memory.NewStorage(), readyAfter: 1 << 30}
	p := New(chunker.New(), &fakeEmbedder{dim: 2}, store, Config{PollInterval: time.Millisecond, ReadyTimeout: 20 * time.Millisecond}, nil)

	err := p.EnsureCollection(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_SkipsAndNormalizes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	require.NoError(t, store.Create(ctx, 2))
	emb := &fakeEmbedder{dim: 2}
	p := New(chunker.New(), emb, store, Config{}, nil)

	rep, err := p.Run(ctx, records(
		domain.Record{DocumentID: 0, Ticker: " nvda ", Context: "Data center revenue grew.", Source: "f.csv"},
		domain.Record{DocumentID: 1, Ticker: "", Context: "orphan"},
		domain.Record{DocumentID: 2, Ticker: "AAPL", Context: "   "},
		domain.Record{DocumentID: 3, Ticker: "KO", Context: string([]byte{0xff, 0xfe})},
		domain.Record{DocumentID: 4, Ticker: "AAPL", Context: "Services revenue hit a record.", Source: "f.csv"},
	))
	require.NoError(t, err)
	assert.Equal(t, Report{Records: 5, Skipped: 3, Chunks: 2, Batches: 1, Total: 2}, rep)

	got, err := store.Query(ctx, []float32{1, 0}, 5, domain.Filter{"ticker": "NVDA"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "doc_0_chunk_0", got[0].ID)
	assert.Equal(t, "doc_0", got[0].Metadata.DocumentID)
	assert.Equal(t, "Data center revenue grew.", got[0].Metadata.Text)
}

func TestRun_BatchesInOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	require.NoError(t, store.Create(ctx, 2))
	emb := &fakeEmbedder{dim: 2}
	p := New(chunker.New(chunker.WithChunkSize(20), chunker.WithOverlap(5)), emb, store, Config{BatchSize: 3}, nil)

	var recs []domain.Record
	for i := range 4 {
		recs = append(recs, domain.Record{DocumentID: i, Ticker: "TSLA", Context: strings.Repeat("Deliveries rose. ", 3)})
	}
	rep, err := p.Run(ctx, records(recs...))
	require.NoError(t, err)

	require.Greater(t, rep.Chunks, 3)
	assert.Equal(t, (rep.Chunks+2)/3, rep.Batches)
	assert.Len(t, emb.batches, rep.Batches)
	for i, b := range emb.batches {
		if i < len(emb.batches)-1 {
			assert.Len(t, b, 3)
		}
	}
	assert.Equal(t, rep.Chunks, rep.Total)
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	require.NoError(t, store.Create(ctx, 2))
	p := New(chunker.New(chunker.WithChunkSize(20), chunker.WithOverlap(5)), &fakeEmbedder{dim: 2}, store, Config{BatchSize: 2}, nil)
	recs := []domain.Record{
		{DocumentID: 0, Ticker: "JPM", Context: "Net interest income increased sharply."},
		{DocumentID: 1, Ticker: "JPM", Context: "Credit costs were stable."},
	}

	first, err := p.Run(ctx, records(recs...))
	require.NoError(t, err)
	second, err := p.Run(ctx, records(recs...))
	require.NoError(t, err)
	assert.Equal(t, first.Total, second.Total)
}

func TestRun_AbortsOnFailedBatch(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	require.NoError(t, store.Create(ctx, 2))
	p := New(chunker.New(), &fakeEmbedder{dim: 2, failAt: 2}, store, Config{BatchSize: 1}, nil)

	rep, err := p.Run(ctx, records(
		domain.Record{DocumentID: 0, Ticker: "GS", Context: "Trading revenue rose."},
		domain.Record{DocumentID: 1, Ticker: "GS", Context: "Asset management fees fell."},
		domain.Record{DocumentID: 2, Ticker: "GS", Context: "Expenses were flat."},
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 2")
	assert.Equal(t, 1, rep.Batches)

	n, _ := store.Count(ctx)
	assert.Equal(t, 1, n)
}

func TestRun_MissingCollection(t *testing.T) {
	p := New(chunker.New(), &fakeEmbedder{dim: 2}, memory.NewStorage(), Config{}, nil)
	_, err := p.Run(context.Background(), records(domain.Record{Ticker: "F", Context: "Truck sales."}))
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
}
