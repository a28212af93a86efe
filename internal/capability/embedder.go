package capability

import "context"

// EmbeddingResult is the Embedder capability's output (spec §6).
type EmbeddingResult struct {
	Vector     []float32
	Provider   string
	Model      string
	Dimensions int
}

// Embedder turns text into a fixed-dimension vector. Batching and caching
// are provider concerns, not the engine's.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}
