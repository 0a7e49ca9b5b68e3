package embedding

import "context"

// Embedder converts free text into a fixed-dimensionality vector representation.
type Embedder interface {
	Name() string
	// Dimension returns the output size of the model, querying it if not yet known.
	Dimension(ctx context.Context) (int, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
