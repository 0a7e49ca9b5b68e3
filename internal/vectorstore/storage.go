package vectorstore

import (
	"context"
	"math"

	"finqa/internal/domain"
)

// Storage persists vectors in a named collection and supports filtered similarity search.
type Storage interface {
	// Exists reports whether the collection has been created.
	Exists(ctx context.Context) (bool, error)
	// Create provisions the collection for vectors of the given size using cosine similarity.
	Create(ctx context.Context, dimension int) error
	// Ready reports whether the collection accepts reads and writes.
	Ready(ctx context.Context) (bool, error)
	// Upsert inserts or overwrites entries by ID.
	Upsert(ctx context.Context, entries []domain.VectorEntry) error
	// Query returns at most topK matches satisfying filter, best first.
	Query(ctx context.Context, vector []float32, topK int, filter domain.Filter) ([]domain.Match, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Cosine returns the cosine similarity of a and b, or 0 when either has zero norm.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
