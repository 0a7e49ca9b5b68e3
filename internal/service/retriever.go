// Package service implements the retrieval and answer generation steps of a chat turn.
package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"finqa/internal/domain"
	"finqa/internal/embedding"
	"finqa/internal/vectorstore"
)

const (
	DefaultTopK      = 5
	DefaultThreshold = 0.3
)

// Retriever finds the stored chunks of one company most similar to a question.
type Retriever struct {
	embedder  embedding.Embedder
	store     vectorstore.Storage
	topK      int
	threshold float64
	log       *zap.Logger
}

func NewRetriever(embedder embedding.Embedder, store vectorstore.Storage, topK int, threshold float64, log *zap.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Retriever{embedder: embedder, store: store, topK: topK, threshold: threshold, log: log}
}

// TopK returns the default number of matches requested per ticker.
func (r *Retriever) TopK() int { return r.topK }

// Threshold returns the default minimum similarity.
func (r *Retriever) Threshold() float64 { return r.threshold }

// FindTopContexts embeds the question and returns the matches for ticker scoring at least
// threshold, in store order. topK <= 0 falls back to the retriever default.
func (r *Retriever) FindTopContexts(ctx context.Context, ticker, question string, topK int, threshold float64) ([]domain.Context, error) {
	if topK <= 0 {
		topK = r.topK
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	matches, err := r.store.Query(ctx, vec, topK, domain.Filter{"ticker": ticker})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", ticker, err)
	}

	var out []domain.Context
	for _, m := range matches {
		if m.Score >= threshold {
			out = append(out, domain.Context{Metadata: m.Metadata, Score: m.Score})
		}
	}
	r.log.Debug("retrieved contexts",
		zap.String("ticker", ticker),
		zap.Int("matches", len(matches)),
		zap.Int("kept", len(out)),
	)
	return out, nil
}
