// Package lexical provides an in-memory inverted index with BM25 scoring.
//
// The index is built lazily from a corpus snapshot on first search, rebuilt
// on explicit invalidation, and swapped atomically so readers always observe
// a fully built, internally consistent snapshot. Concurrent rebuild triggers
// collapse into a single build via singleflight.
package lexical

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/searchfuse/searchfuse/internal/corpus"
	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

// Default BM25 parameters.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// Config configures BM25 scoring.
type Config struct {
	// K1 is the term frequency saturation parameter.
	K1 float64

	// B is the document length normalization parameter.
	B float64
}

// DefaultConfig returns the standard BM25 parameters.
func DefaultConfig() Config {
	return Config{K1: DefaultK1, B: DefaultB}
}

// Hit is a single BM25-scored document.
type Hit struct {
	DocID string
	Score float64
}

// Stats describes the current index snapshot.
type Stats struct {
	Generation    uint64
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// CorpusSource supplies the corpus snapshot used for lazy builds and
// invalidation-triggered rebuilds.
type CorpusSource interface {
	// Snapshot returns the full set of (id, text) documents to index.
	Snapshot(ctx context.Context) ([]corpus.Document, error)
}

// posting records one document's term frequency for a term.
type posting struct {
	docID string
	tf    int
}

// snapshot is one fully built generation of the inverted index. It is
// immutable after construction; statistics are only valid against the corpus
// snapshot it was built from, which the generation counter makes checkable.
type snapshot struct {
	generation uint64
	postings   map[string][]posting
	docLen     map[string]int
	docCount   int
	avgDocLen  float64
}

// Index is the lexical retrieval branch.
type Index struct {
	cfg    Config
	source CorpusSource

	current    atomic.Pointer[snapshot]
	generation atomic.Uint64
	group      singleflight.Group

	// staleEpoch advances on every Invalidate; builtEpoch records the
	// staleness epoch a build was based on. The index is fresh only when
	// the two match, so an Invalidate landing while a rebuild is reading
	// its corpus snapshot leaves the index stale instead of being lost.
	staleEpoch atomic.Uint64
	builtEpoch atomic.Uint64
}

// NewIndex creates an unbuilt index. The source may be nil when callers drive
// Build directly; lazy rebuilds then degrade to an empty lexical branch.
func NewIndex(source CorpusSource, cfg Config) *Index {
	if cfg.K1 <= 0 {
		cfg.K1 = DefaultK1
	}
	if cfg.B < 0 || cfg.B > 1 {
		cfg.B = DefaultB
	}
	return &Index{cfg: cfg, source: source}
}

// Build tokenizes the documents and atomically replaces any previous index.
// An empty input fails with ErrEmptyCorpus and leaves the index unbuilt (or
// on its previous generation).
func (ix *Index) Build(docs []corpus.Document) error {
	return ix.build(docs, ix.staleEpoch.Load())
}

// build indexes docs and, on success, records epoch as the staleness epoch
// the snapshot corresponds to. Callers pass the epoch observed before they
// fetched docs, so invalidations that race the fetch keep the index stale.
func (ix *Index) build(docs []corpus.Document, epoch uint64) error {
	tokenized := make(map[string][]string, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			continue
		}
		terms := Tokenize(d.Text)
		if len(terms) == 0 {
			continue
		}
		tokenized[d.ID] = terms
	}
	if len(tokenized) == 0 {
		return sferrors.ErrEmptyCorpus
	}

	snap := &snapshot{
		generation: ix.generation.Add(1),
		postings:   make(map[string][]posting),
		docLen:     make(map[string]int, len(tokenized)),
		docCount:   len(tokenized),
	}

	var totalLen int
	for docID, terms := range tokenized {
		snap.docLen[docID] = len(terms)
		totalLen += len(terms)

		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		for term, count := range tf {
			snap.postings[term] = append(snap.postings[term], posting{docID: docID, tf: count})
		}
	}
	snap.avgDocLen = float64(totalLen) / float64(snap.docCount)

	ix.current.Store(snap)
	ix.builtEpoch.Store(epoch)

	slog.Debug("lexical_index_built",
		slog.Uint64("generation", snap.generation),
		slog.Int("documents", snap.docCount),
		slog.Int("terms", len(snap.postings)))

	return nil
}

// Invalidate marks the index stale. The next Search triggers a synchronous
// rebuild from the corpus source.
func (ix *Index) Invalidate() {
	ix.staleEpoch.Add(1)
}

// fresh reports whether the current snapshot reflects the latest
// invalidation epoch.
func (ix *Index) fresh() bool {
	return ix.builtEpoch.Load() == ix.staleEpoch.Load()
}

// Generation returns the generation counter of the current snapshot,
// 0 if unbuilt.
func (ix *Index) Generation() uint64 {
	if snap := ix.current.Load(); snap != nil {
		return snap.generation
	}
	return 0
}

// Stats returns statistics for the current snapshot.
func (ix *Index) Stats() Stats {
	snap := ix.current.Load()
	if snap == nil {
		return Stats{}
	}
	return Stats{
		Generation:    snap.generation,
		DocumentCount: snap.docCount,
		TermCount:     len(snap.postings),
		AvgDocLength:  snap.avgDocLen,
	}
}

// Search tokenizes the query with the same scheme as Build and returns BM25
// hits with score > 0, descending, ties broken by doc ID, truncated to topK.
// An unbuilt index (or one whose rebuild found an empty corpus) returns an
// empty result, never an error.
func (ix *Index) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	snap, err := ix.ready(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return []Hit{}, nil
	}

	terms := Tokenize(query)
	if len(terms) == 0 {
		return []Hit{}, nil
	}

	scores := make(map[string]float64)
	for _, term := range terms {
		postings, ok := snap.postings[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + (float64(snap.docCount)-float64(len(postings))+0.5)/(float64(len(postings))+0.5))
		for _, p := range postings {
			norm := 1 - ix.cfg.B + ix.cfg.B*float64(snap.docLen[p.docID])/snap.avgDocLen
			scores[p.docID] += idf * float64(p.tf) * (ix.cfg.K1 + 1) / (float64(p.tf) + ix.cfg.K1*norm)
		}
	}

	hits := make([]Hit, 0, len(scores))
	for docID, score := range scores {
		if score > 0 {
			hits = append(hits, Hit{DocID: docID, Score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}

	return hits, nil
}

// ready returns a usable snapshot, rebuilding first when the index is unbuilt
// or stale. Concurrent rebuild triggers share a single build pass; every
// waiter observes the freshly swapped snapshot. A nil snapshot with nil error
// means the lexical branch is empty (no source, or empty corpus).
func (ix *Index) ready(ctx context.Context) (*snapshot, error) {
	snap := ix.current.Load()
	if snap != nil && ix.fresh() {
		return snap, nil
	}
	if ix.source == nil {
		return snap, nil
	}

	_, err, _ := ix.group.Do("rebuild", func() (any, error) {
		// Re-check under the flight: another caller may have finished the
		// rebuild between our staleness check and joining the group.
		if cur := ix.current.Load(); cur != nil && ix.fresh() {
			return nil, nil
		}

		// Capture the epoch before fetching the corpus so an Invalidate
		// arriving during the fetch keeps the index stale for the next
		// search instead of being silently absorbed by this build.
		epoch := ix.staleEpoch.Load()
		docs, err := ix.source.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		if buildErr := ix.build(docs, epoch); buildErr != nil {
			return nil, buildErr
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, sferrors.ErrEmptyCorpus) {
			// Nothing to index: the branch stays empty, not broken.
			slog.Debug("lexical_rebuild_empty_corpus")
			return nil, nil
		}
		return nil, err
	}

	return ix.current.Load(), nil
}
