// Package retrieval combines the lexical and vector branches into a single
// search entry point with reciprocal rank fusion, optional query rewriting,
// and HyDE expansion.
package retrieval

import (
	"context"

	"github.com/searchfuse/searchfuse/internal/corpus"
	"github.com/searchfuse/searchfuse/internal/lexical"
	"github.com/searchfuse/searchfuse/internal/vector"
)

// Strategy selects which retrieval branches a search exercises.
type Strategy string

const (
	// StrategyVector embeds the query and searches the vector store only.
	StrategyVector Strategy = "vector"

	// StrategyLexical searches the BM25 index only.
	StrategyLexical Strategy = "lexical"

	// StrategyHybrid runs both branches concurrently and fuses their
	// rankings.
	StrategyHybrid Strategy = "hybrid"
)

// DefaultTopK is used when Options.TopK is not positive.
const DefaultTopK = 10

// Options parameterizes a single search call. Feature flags are resolved once
// at entry; nothing downstream re-checks them.
type Options struct {
	// Strategy selects the branch set. Empty defaults to hybrid.
	Strategy Strategy

	// UseRewrite rewrites the query with the generator before searching.
	// Rewrite failure is non-fatal; the original query is used.
	UseRewrite bool

	// UseHyDE expands the query into a hypothetical answer and runs a
	// vector-only search against its embedding. Takes precedence over
	// Strategy.
	UseHyDE bool

	// TopK bounds the result count. Non-positive defaults to DefaultTopK.
	TopK int

	// Filter restricts vector-branch hits by metadata equality.
	Filter map[string]any

	// RewriteContext optionally disambiguates the query during rewrite.
	RewriteContext string
}

// Result is one ranked search hit. Score semantics depend on the strategy:
// RRF score for hybrid, BM25 score for lexical, cosine similarity for vector.
type Result struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Rank     int            `json:"rank"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// VectorSearcher is the vector branch capability consumed by the engine.
type VectorSearcher interface {
	Search(ctx context.Context, vec []float32, topK int, filter map[string]any) ([]vector.Hit, error)
	GetAll(ctx context.Context, filter map[string]any) ([]corpus.Document, error)
}

// LexicalSearcher is the lexical branch capability consumed by the engine.
type LexicalSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]lexical.Hit, error)
}

// QueryTransformer is the rewrite/HyDE capability consumed by the engine.
type QueryTransformer interface {
	Rewrite(ctx context.Context, query, queryContext string) (string, error)
	HyDE(ctx context.Context, query string) (string, error)
}
