package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/searchfuse/searchfuse/internal/corpus"
)

// HNSWConfig configures the in-process vector store.
type HNSWConfig struct {
	// Dimensions is the embedding dimension.
	Dimensions int

	// M is the HNSW max connections per layer.
	M int

	// EfSearch is the HNSW query-time search width.
	EfSearch int
}

// DefaultHNSWConfig returns sensible defaults for the given dimension.
func DefaultHNSWConfig(dimensions int) HNSWConfig {
	return HNSWConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   32,
	}
}

// payload carries the document data stored alongside a vector.
type payload struct {
	text     string
	metadata map[string]any
}

// HNSWStore is an in-process Store backed by coder/hnsw with cosine distance.
// It serves the CLI ingestion path and tests; production deployments wire an
// external store behind the same interface.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config HNSWConfig

	idMap    map[string]uint64
	keyMap   map[uint64]string
	payloads map[string]payload
	nextKey  uint64
}

// NewHNSWStore creates an empty in-process vector store.
func NewHNSWStore(cfg HNSWConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 32
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWStore{
		graph:    graph,
		config:   cfg,
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
		payloads: make(map[string]payload),
	}, nil
}

// Add inserts documents with their vectors. Existing IDs are replaced using
// lazy deletion: the old graph node is orphaned rather than removed.
func (s *HNSWStore) Add(ctx context.Context, docs []corpus.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("docs and vectors length mismatch: %d vs %d", len(docs), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return fmt.Errorf("dimension mismatch: expected %d, got %d", s.config.Dimensions, len(v))
		}
	}

	for i, doc := range docs {
		if existingKey, exists := s.idMap[doc.ID]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, doc.ID)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[doc.ID] = key
		s.keyMap[key] = doc.ID
		s.payloads[doc.ID] = payload{text: doc.Text, metadata: doc.Metadata}
	}

	return nil
}

// Query returns the topK nearest neighbors by cosine distance.
// When a filter is present the graph is oversampled before filtering so
// equality-matched results still fill topK where possible.
func (s *HNSWStore) Query(ctx context.Context, vec []float32, topK int, filter map[string]any) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(vec) != s.config.Dimensions {
		return nil, fmt.Errorf("dimension mismatch: expected %d, got %d", s.config.Dimensions, len(vec))
	}
	if s.graph.Len() == 0 || topK <= 0 {
		return []Hit{}, nil
	}

	query := make([]float32, len(vec))
	copy(query, vec)
	normalizeInPlace(query)

	fetch := topK
	if len(filter) > 0 {
		fetch = topK * 4
	}
	if fetch > s.graph.Len() {
		fetch = s.graph.Len()
	}

	nodes := s.graph.Search(query, fetch)

	hits := make([]Hit, 0, topK)
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue // lazily deleted
		}
		p := s.payloads[id]
		if !matchesFilter(p.metadata, filter) {
			continue
		}
		hits = append(hits, Hit{
			ID:       id,
			Distance: float64(s.graph.Distance(query, node.Value)),
			Text:     p.text,
			Metadata: p.metadata,
		})
		if len(hits) == topK {
			break
		}
	}

	return hits, nil
}

// GetAll returns every stored document, sorted by ID for determinism.
func (s *HNSWStore) GetAll(ctx context.Context, filter map[string]any) ([]corpus.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]corpus.Document, 0, len(s.payloads))
	for id, p := range s.payloads {
		if !matchesFilter(p.metadata, filter) {
			continue
		}
		docs = append(docs, corpus.Document{ID: id, Text: p.text, Metadata: p.metadata})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	return docs, nil
}

// Delete removes documents by ID using lazy deletion.
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.payloads, id)
		}
	}
	return nil
}

// Count returns the number of stored documents.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// matchesFilter reports whether metadata satisfies every equality condition
// in filter. A nil filter matches everything.
func matchesFilter(metadata map[string]any, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// normalizeInPlace scales a vector to unit length for cosine distance.
func normalizeInPlace(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

var _ Store = (*HNSWStore)(nil)
