package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"finqa/internal/domain"
	"finqa/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
// Entries are keyed by ID, so re-upserting the same chunk overwrites it.
type Storage struct {
	mu        sync.RWMutex
	created   bool
	dimension int
	entries   map[string]domain.VectorEntry
}

func NewStorage() *Storage { return &Storage{entries: make(map[string]domain.VectorEntry)} }

func (s *Storage) Exists(context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.created, nil
}

func (s *Storage) Create(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", domain.ErrInvalidInput, dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = true
	s.dimension = dimension
	s.entries = make(map[string]domain.VectorEntry)
	return nil
}

func (s *Storage) Ready(ctx context.Context) (bool, error) { return s.Exists(ctx) }

func (s *Storage) Upsert(_ context.Context, entries []domain.VectorEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created {
		return domain.ErrCollectionNotFound
	}
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return fmt.Errorf("%w: entry %s has %d values, collection expects %d", domain.ErrDimensionMismatch, e.ID, len(e.Vector), s.dimension)
		}
	}
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return nil
}

func (s *Storage) Query(_ context.Context, vector []float32, topK int, filter domain.Filter) ([]domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.created {
		return nil, domain.ErrCollectionNotFound
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d values, collection expects %d", domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	if topK <= 0 {
		topK = 5
	}
	matches := make([]domain.Match, 0, len(s.entries))
	for id, e := range s.entries {
		if !filter.Matches(e.Metadata) {
			continue
		}
		matches = append(matches, domain.Match{ID: id, Score: vectorstore.Cosine(e.Vector, vector), Metadata: e.Metadata})
	}
	// ties broken by id so results do not depend on map order
	slices.SortFunc(matches, func(a, b domain.Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Storage) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *Storage) Close() error { return nil }
