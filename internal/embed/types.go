// Package embed provides the embedding capability interface and its
// implementations: an OpenAI-compatible client and an LRU-cached wrapper.
package embed

import (
	"context"
)

// Embedder converts text into dense vectors. Implementations must be
// deterministic for identical input; calls may be slow and must respect the
// context.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for multiple texts, index-aligned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier, used for cache keying.
	ModelName() string
}
