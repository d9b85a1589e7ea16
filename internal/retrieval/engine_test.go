package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchfuse/searchfuse/internal/corpus"
	sferrors "github.com/searchfuse/searchfuse/internal/errors"
	"github.com/searchfuse/searchfuse/internal/lexical"
	"github.com/searchfuse/searchfuse/internal/telemetry"
	"github.com/searchfuse/searchfuse/internal/vector"
)

type fakeEmbedder struct {
	err        error
	lastText   string
	waitForCtx bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.waitForCtx {
		<-ctx.Done()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.lastText = text
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int   { return 3 }
func (f *fakeEmbedder) ModelName() string { return "fake" }

type fakeVector struct {
	hits      []vector.Hit
	docs      []corpus.Document
	searchErr error
	getAllErr error
}

func (f *fakeVector) Search(ctx context.Context, vec []float32, topK int, filter map[string]any) ([]vector.Hit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if topK < len(f.hits) {
		return f.hits[:topK], nil
	}
	return f.hits, nil
}

func (f *fakeVector) GetAll(ctx context.Context, filter map[string]any) ([]corpus.Document, error) {
	if f.getAllErr != nil {
		return nil, f.getAllErr
	}
	return f.docs, nil
}

type fakeLexical struct {
	hits []lexical.Hit
	err  error
}

func (f *fakeLexical) Search(ctx context.Context, query string, topK int) ([]lexical.Hit, error) {
	if f.err != nil {
		return nil, f.err
	}
	if topK < len(f.hits) {
		return f.hits[:topK], nil
	}
	return f.hits, nil
}

type fakeTransformer struct {
	rewrite    string
	rewriteErr error
	hyde       string
	hydeErr    error
}

func (f *fakeTransformer) Rewrite(ctx context.Context, query, queryContext string) (string, error) {
	if f.rewriteErr != nil {
		return "", f.rewriteErr
	}
	return f.rewrite, nil
}

func (f *fakeTransformer) HyDE(ctx context.Context, query string) (string, error) {
	if f.hydeErr != nil {
		return "", f.hydeErr
	}
	return f.hyde, nil
}

func newEngine(emb *fakeEmbedder, vec *fakeVector, lex *fakeLexical, tr QueryTransformer) *Engine {
	return NewEngine(DefaultEngineConfig(), emb, vec, lex, tr, nil, nil)
}

func TestSearch_EmptyQueryRejected(t *testing.T) {
	e := newEngine(&fakeEmbedder{}, &fakeVector{}, &fakeLexical{}, nil)
	_, err := e.Search(context.Background(), "", Options{})
	require.Error(t, err)
	assert.Equal(t, sferrors.ErrCodeQueryEmpty, sferrors.GetCode(err))
}

func TestSearch_HybridFusesBothBranches(t *testing.T) {
	vec := &fakeVector{hits: []vector.Hit{
		{ID: "d2", Distance: 0.1, Text: "dogs are loyal companions"},
		{ID: "d1", Distance: 0.2, Text: "the cat sat on the mat"},
		{ID: "d3", Distance: 0.3, Text: "cats and dogs are common pets"},
	}}
	lex := &fakeLexical{hits: []lexical.Hit{
		{DocID: "d1", Score: 2.1},
		{DocID: "d3", Score: 1.4},
	}}
	e := newEngine(&fakeEmbedder{}, vec, lex, nil)

	results, err := e.Search(context.Background(), "cat pets", Options{Strategy: StrategyHybrid, TopK: 10})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "d1", results[0].ID)
	assert.Equal(t, "d3", results[1].ID)
	assert.Equal(t, "d2", results[2].ID)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 3, results[2].Rank)
	assert.Equal(t, "the cat sat on the mat", results[0].Text)
	assert.InDelta(t, 1.0/62+1.0/61, results[0].Score, 1e-12)
}

func TestSearch_HybridVectorFailureDegradesToLexical(t *testing.T) {
	vec := &fakeVector{
		searchErr: sferrors.UpstreamError("vector store", errors.New("down")),
		docs: []corpus.Document{
			{ID: "d1", Text: "one", Metadata: map[string]any{"k": "v"}},
			{ID: "d3", Text: "three"},
		},
	}
	lex := &fakeLexical{hits: []lexical.Hit{
		{DocID: "d1", Score: 2.0},
		{DocID: "d3", Score: 1.0},
	}}
	e := newEngine(&fakeEmbedder{}, vec, lex, nil)

	results, err := e.Search(context.Background(), "query", Options{Strategy: StrategyHybrid, TopK: 5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "d1", results[0].ID)
	assert.Equal(t, "one", results[0].Text)
	assert.Equal(t, map[string]any{"k": "v"}, results[0].Metadata)
}

func TestSearch_HybridLexicalFailureDegradesToVector(t *testing.T) {
	vec := &fakeVector{hits: []vector.Hit{{ID: "d1", Text: "one"}}}
	lex := &fakeLexical{err: errors.New("index corrupted")}
	e := newEngine(&fakeEmbedder{}, vec, lex, nil)

	results, err := e.Search(context.Background(), "query", Options{Strategy: StrategyHybrid, TopK: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].ID)
}

func TestSearch_HybridBothBranchesFailing(t *testing.T) {
	vec := &fakeVector{searchErr: sferrors.UpstreamError("vector store", errors.New("down"))}
	lex := &fakeLexical{err: errors.New("no index")}
	e := newEngine(&fakeEmbedder{}, vec, lex, nil)

	_, err := e.Search(context.Background(), "query", Options{Strategy: StrategyHybrid})
	require.Error(t, err)
	assert.True(t, errors.Is(err, sferrors.ErrRetrievalUnavailable))
}

func TestSearch_HybridEmptyBranchesWithoutFailureIsEmptySuccess(t *testing.T) {
	e := newEngine(&fakeEmbedder{}, &fakeVector{}, &fakeLexical{}, nil)

	results, err := e.Search(context.Background(), "no matches", Options{Strategy: StrategyHybrid})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_HybridDropsDanglingIDs(t *testing.T) {
	// d9 is known to the lexical index but gone from the store.
	vec := &fakeVector{
		hits: []vector.Hit{{ID: "d1", Text: "one"}},
		docs: []corpus.Document{{ID: "d1", Text: "one"}},
	}
	lex := &fakeLexical{hits: []lexical.Hit{{DocID: "d9", Score: 3.0}, {DocID: "d1", Score: 1.0}}}
	e := newEngine(&fakeEmbedder{}, vec, lex, nil)

	results, err := e.Search(context.Background(), "query", Options{Strategy: StrategyHybrid})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].ID)
	assert.Equal(t, 1, results[0].Rank)
}

func TestSearch_VectorOnly(t *testing.T) {
	vec := &fakeVector{hits: []vector.Hit{
		{ID: "d1", Distance: 0.1, Text: "one"},
		{ID: "d2", Distance: 0.4, Text: "two"},
	}}
	e := newEngine(&fakeEmbedder{}, vec, &fakeLexical{}, nil)

	results, err := e.Search(context.Background(), "query", Options{Strategy: StrategyVector, TopK: 5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)
	assert.Equal(t, 2, results[1].Rank)
}

func TestSearch_LexicalOnlyHydratesFromCorpus(t *testing.T) {
	vec := &fakeVector{docs: []corpus.Document{{ID: "d1", Text: "hydrated"}}}
	lex := &fakeLexical{hits: []lexical.Hit{{DocID: "d1", Score: 1.5}}}
	e := newEngine(&fakeEmbedder{}, vec, lex, nil)

	results, err := e.Search(context.Background(), "query", Options{Strategy: StrategyLexical})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "hydrated", results[0].Text)
	assert.Equal(t, 1.5, results[0].Score)
}

func TestSearch_RewriteAppliedBeforeBranching(t *testing.T) {
	emb := &fakeEmbedder{}
	vec := &fakeVector{hits: []vector.Hit{{ID: "d1", Text: "one"}}}
	tr := &fakeTransformer{rewrite: "rewritten query"}
	e := newEngine(emb, vec, &fakeLexical{}, tr)

	_, err := e.Search(context.Background(), "orig", Options{Strategy: StrategyVector, UseRewrite: true})
	require.NoError(t, err)
	assert.Equal(t, "rewritten query", emb.lastText)
}

func TestSearch_EmptyRewriteFallsBackToOriginal(t *testing.T) {
	emb := &fakeEmbedder{}
	vec := &fakeVector{hits: []vector.Hit{{ID: "d1"}}}
	tr := &fakeTransformer{rewriteErr: sferrors.ErrEmptyRewrite}
	e := newEngine(emb, vec, &fakeLexical{}, tr)

	_, err := e.Search(context.Background(), "orig", Options{Strategy: StrategyVector, UseRewrite: true})
	require.NoError(t, err)
	assert.Equal(t, "orig", emb.lastText)
}

func TestSearch_HyDETakesPrecedenceOverStrategy(t *testing.T) {
	emb := &fakeEmbedder{}
	vec := &fakeVector{hits: []vector.Hit{{ID: "d1", Text: "one"}}}
	lex := &fakeLexical{err: errors.New("must not be called")}
	tr := &fakeTransformer{hyde: "hypothetical answer text"}
	e := newEngine(emb, vec, lex, tr)

	results, err := e.Search(context.Background(), "query",
		Options{Strategy: StrategyLexical, UseHyDE: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "hypothetical answer text", emb.lastText)
}

func TestSearch_HyDEConsumesRewrittenQuery(t *testing.T) {
	emb := &fakeEmbedder{}
	vec := &fakeVector{hits: []vector.Hit{{ID: "d1"}}}
	tr := &fakeTransformer{rewrite: "expanded", hyde: "hypothetical"}
	e := newEngine(emb, vec, &fakeLexical{}, tr)

	_, err := e.Search(context.Background(), "q", Options{UseRewrite: true, UseHyDE: true})
	require.NoError(t, err)
	assert.Equal(t, "hypothetical", emb.lastText)
}

func TestSearch_HyDEFailureFallsBackToPlainVector(t *testing.T) {
	emb := &fakeEmbedder{}
	vec := &fakeVector{hits: []vector.Hit{{ID: "d1"}}}
	tr := &fakeTransformer{hydeErr: sferrors.UpstreamError("generator", errors.New("down"))}
	e := newEngine(emb, vec, &fakeLexical{}, tr)

	results, err := e.Search(context.Background(), "query", Options{UseHyDE: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "query", emb.lastText)
}

func TestSearch_DeadlineExpiryNeverReturnsPartialResults(t *testing.T) {
	// The vector branch blocks until the caller deadline expires while the
	// lexical branch answers instantly from its snapshot. A timed-out call
	// must fail outright, not degrade to the lexical results.
	emb := &fakeEmbedder{waitForCtx: true}
	vec := &fakeVector{docs: []corpus.Document{{ID: "d1", Text: "one"}}}
	lex := &fakeLexical{hits: []lexical.Hit{{DocID: "d1", Score: 1.0}}}
	e := newEngine(emb, vec, lex, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	results, err := e.Search(ctx, "query", Options{Strategy: StrategyHybrid})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, results)
}

func TestSearch_ExpiredContextRejectedAtEntry(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	lex := &fakeLexical{hits: []lexical.Hit{{DocID: "d1", Score: 1.0}}}
	e := newEngine(&fakeEmbedder{}, &fakeVector{}, lex, nil)

	_, err := e.Search(ctx, "query", Options{Strategy: StrategyLexical})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSearch_CancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newEngine(&fakeEmbedder{}, &fakeVector{}, &fakeLexical{}, nil)
	_, err := e.Search(ctx, "query", Options{Strategy: StrategyHybrid})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearch_TopKTruncatesFusedResults(t *testing.T) {
	vec := &fakeVector{hits: []vector.Hit{
		{ID: "a", Text: "a"}, {ID: "b", Text: "b"}, {ID: "c", Text: "c"}, {ID: "d", Text: "d"},
	}}
	e := newEngine(&fakeEmbedder{}, vec, &fakeLexical{}, nil)

	results, err := e.Search(context.Background(), "q", Options{Strategy: StrategyHybrid, TopK: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_RecordsTelemetry(t *testing.T) {
	metrics := telemetry.NewMetrics()
	vec := &fakeVector{hits: []vector.Hit{{ID: "d1", Text: "one"}}}
	e := NewEngine(DefaultEngineConfig(), &fakeEmbedder{}, vec, &fakeLexical{}, nil, metrics, nil)

	_, err := e.Search(context.Background(), "query text", Options{Strategy: StrategyVector})
	require.NoError(t, err)

	s := metrics.Snapshot()
	assert.Equal(t, int64(1), s.TotalQueries)
	assert.Equal(t, int64(1), s.StrategyCounts["vector"])
}
