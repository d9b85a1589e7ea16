// Package vector normalizes access to the external vector similarity store.
//
// The Store interface is the narrow capability the engine consumes; the
// Adapter wraps a Store with timeouts, failure classification, and metadata
// validation. An in-process HNSW implementation backs the CLI and tests.
package vector

import (
	"context"
	"time"

	"github.com/searchfuse/searchfuse/internal/corpus"
)

// Hit is one ranked result from the vector store, in the store's native
// ranking order. Distance is cosine distance: lower is more relevant.
type Hit struct {
	ID       string
	Distance float64
	Text     string
	Metadata map[string]any
}

// Store is the capability interface for the external vector similarity store.
type Store interface {
	// Query returns the topK nearest neighbors in native ranking order.
	Query(ctx context.Context, vec []float32, topK int, filter map[string]any) ([]Hit, error)

	// GetAll returns every stored document, used to hydrate lexical-only
	// hits and to build the lexical corpus snapshot.
	GetAll(ctx context.Context, filter map[string]any) ([]corpus.Document, error)
}

// AdapterConfig configures the adapter boundary.
type AdapterConfig struct {
	// Timeout bounds each upstream call. Zero disables the deadline.
	Timeout time.Duration
}

// DefaultAdapterConfig returns the default adapter settings.
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{Timeout: 5 * time.Second}
}
