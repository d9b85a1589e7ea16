package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/searchfuse/searchfuse/internal/corpus"
	"github.com/searchfuse/searchfuse/internal/embed"
	sferrors "github.com/searchfuse/searchfuse/internal/errors"
	"github.com/searchfuse/searchfuse/internal/lexical"
	"github.com/searchfuse/searchfuse/internal/telemetry"
	"github.com/searchfuse/searchfuse/internal/vector"
)

// EngineConfig tunes the orchestrator.
type EngineConfig struct {
	// RRFConstant is the fusion smoothing parameter.
	RRFConstant int

	// CandidateMultiplier scales topK for each hybrid branch so fusion has
	// enough overlap to work with.
	CandidateMultiplier int
}

// DefaultEngineConfig returns the standard tuning.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RRFConstant:         DefaultRRFConstant,
		CandidateMultiplier: 2,
	}
}

// Engine is the retrieval orchestrator. It owns no mutable state of its own;
// a single instance serves concurrent searches.
type Engine struct {
	cfg         EngineConfig
	embedder    embed.Embedder
	vector      VectorSearcher
	lexical     LexicalSearcher
	transformer QueryTransformer
	metrics     *telemetry.Metrics
	logger      *slog.Logger
}

// NewEngine wires the orchestrator. transformer may be nil when no generator
// is configured; rewrite and HyDE flags are then ignored with a warning.
// metrics may be nil; logger nil falls back to slog.Default.
func NewEngine(cfg EngineConfig, embedder embed.Embedder, vec VectorSearcher, lex LexicalSearcher, transformer QueryTransformer, metrics *telemetry.Metrics, logger *slog.Logger) *Engine {
	if cfg.RRFConstant <= 0 {
		cfg.RRFConstant = DefaultRRFConstant
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:         cfg,
		embedder:    embedder,
		vector:      vec,
		lexical:     lex,
		transformer: transformer,
		metrics:     metrics,
		logger:      logger,
	}
}

// Search runs one retrieval call. The query is optionally rewritten, then
// either expanded via HyDE into a vector-only search or dispatched per the
// strategy. Results are ranked and materialized with text and metadata.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, sferrors.New(sferrors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyHybrid
	}

	searchQuery := query
	degraded := false

	if opts.UseRewrite {
		rewritten, err := e.rewrite(ctx, query, opts.RewriteContext)
		if err != nil {
			if callerDone(ctx, err) {
				return nil, ctxError(ctx, err)
			}
			e.logger.Warn("query rewrite failed, using original query",
				slog.String("query", query),
				slog.String("error", err.Error()))
			degraded = true
		} else {
			searchQuery = rewritten
		}
	}

	var (
		results []Result
		err     error
	)
	switch {
	case opts.UseHyDE:
		results, err = e.searchHyDE(ctx, searchQuery, opts)
	case opts.Strategy == StrategyVector:
		results, err = e.searchVector(ctx, searchQuery, opts)
	case opts.Strategy == StrategyLexical:
		results, err = e.searchLexical(ctx, searchQuery, opts)
	default:
		var branchDegraded bool
		results, branchDegraded, err = e.searchHybrid(ctx, searchQuery, opts)
		degraded = degraded || branchDegraded
	}
	if err != nil {
		return nil, err
	}

	e.record(query, opts, degraded, len(results), time.Since(start))
	return results, nil
}

// callerDone reports whether err reflects the caller's own context being
// cancelled or timed out, as opposed to an upstream failure that may degrade.
func callerDone(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// ctxError prefers the caller context's error so a deadline expiry surfaces
// as context.DeadlineExceeded rather than a transformed upstream error.
func ctxError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// rewrite calls the transformer when configured.
func (e *Engine) rewrite(ctx context.Context, query, queryContext string) (string, error) {
	if e.transformer == nil {
		return "", sferrors.ErrUpstreamUnavailable
	}
	return e.transformer.Rewrite(ctx, query, queryContext)
}

// searchHyDE expands the query into a hypothetical answer and runs a
// vector-only search against its embedding. HyDE failure degrades to
// embedding the query directly.
func (e *Engine) searchHyDE(ctx context.Context, query string, opts Options) ([]Result, error) {
	probe := query
	if e.transformer == nil {
		e.logger.Warn("hyde requested without a generator, using plain vector search")
	} else {
		hypothetical, err := e.transformer.HyDE(ctx, query)
		switch {
		case err == nil:
			probe = hypothetical
		case callerDone(ctx, err):
			return nil, ctxError(ctx, err)
		default:
			e.logger.Warn("hyde expansion failed, using plain vector search",
				slog.String("error", err.Error()))
		}
	}
	return e.vectorQuery(ctx, probe, opts.TopK, opts.Filter)
}

// searchVector embeds the query and searches the vector branch only.
func (e *Engine) searchVector(ctx context.Context, query string, opts Options) ([]Result, error) {
	return e.vectorQuery(ctx, query, opts.TopK, opts.Filter)
}

func (e *Engine) vectorQuery(ctx context.Context, text string, topK int, filter map[string]any) ([]Result, error) {
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	hits, err := e.vector.Search(ctx, vec, topK, filter)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for i, h := range hits {
		results = append(results, Result{
			ID:       h.ID,
			Score:    1 - h.Distance,
			Rank:     i + 1,
			Text:     h.Text,
			Metadata: h.Metadata,
		})
	}
	return results, nil
}

// searchLexical searches the BM25 index only, hydrating text and metadata
// from the corpus.
func (e *Engine) searchLexical(ctx context.Context, query string, opts Options) ([]Result, error) {
	hits, err := e.lexical.Search(ctx, query, opts.TopK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []Result{}, nil
	}

	docs, err := e.corpusByID(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		doc, ok := docs[h.DocID]
		if !ok {
			continue // index lags the store; drop dangling ids
		}
		results = append(results, Result{
			ID:       h.DocID,
			Score:    h.Score,
			Rank:     len(results) + 1,
			Text:     doc.Text,
			Metadata: doc.Metadata,
		})
	}
	return results, nil
}

// searchHybrid runs both branches concurrently, fuses their rankings, and
// materializes the top results. A single branch failure degrades to the
// survivor; both failing surfaces ErrRetrievalUnavailable.
func (e *Engine) searchHybrid(ctx context.Context, query string, opts Options) ([]Result, bool, error) {
	candidates := opts.TopK * e.cfg.CandidateMultiplier

	var (
		vectorHits []vector.Hit
		vectorErr  error
		lexHits    []lexical.Hit
		lexErr     error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := e.embedder.Embed(gctx, query)
		if err == nil {
			vectorHits, err = e.vector.Search(gctx, vec, candidates, opts.Filter)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			vectorErr = err
		}
		return nil
	})
	g.Go(func() error {
		hits, err := e.lexical.Search(gctx, query, candidates)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			lexErr = err
			return nil
		}
		lexHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, false, err
	}
	// Cancellation is all-or-nothing: a caller context that was cancelled or
	// timed out mid-flight must never surface the surviving branch as a
	// degraded success. This is distinct from the adapter's own per-call
	// timeout, which leaves the caller context live and degrades normally.
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	degraded := vectorErr != nil || lexErr != nil
	if vectorErr != nil {
		e.logger.Warn("vector branch failed, degrading to lexical results",
			slog.String("error", vectorErr.Error()))
	}
	if lexErr != nil {
		e.logger.Warn("lexical branch failed, degrading to vector results",
			slog.String("error", lexErr.Error()))
	}

	vectorIDs := make([]string, len(vectorHits))
	for i, h := range vectorHits {
		vectorIDs[i] = h.ID
	}
	lexicalIDs := make([]string, len(lexHits))
	for i, h := range lexHits {
		lexicalIDs[i] = h.DocID
	}

	fused := Fuse(vectorIDs, lexicalIDs, e.cfg.RRFConstant)
	if len(fused) > opts.TopK {
		fused = fused[:opts.TopK]
	}

	if len(fused) == 0 {
		if degraded {
			return nil, degraded, sferrors.New(sferrors.ErrCodeRetrievalUnavailable,
				"all retrieval branches failed", errors.Join(vectorErr, lexErr))
		}
		return []Result{}, false, nil
	}

	results, err := e.materialize(ctx, fused, vectorHits)
	if err != nil {
		return nil, degraded, err
	}
	return results, degraded, nil
}

// materialize attaches text and metadata to fused ids, preferring the vector
// branch's own payload and falling back to a corpus lookup for ids the
// lexical branch alone produced. Ids absent from both are dropped.
func (e *Engine) materialize(ctx context.Context, fused []FusedHit, vectorHits []vector.Hit) ([]Result, error) {
	payloads := make(map[string]vector.Hit, len(vectorHits))
	for _, h := range vectorHits {
		payloads[h.ID] = h
	}

	var docs map[string]corpus.Document
	for _, f := range fused {
		if _, ok := payloads[f.ID]; ok {
			continue
		}
		var err error
		docs, err = e.corpusByID(ctx)
		if err != nil {
			return nil, err
		}
		break
	}

	results := make([]Result, 0, len(fused))
	for _, f := range fused {
		r := Result{ID: f.ID, Score: f.Score}
		if h, ok := payloads[f.ID]; ok {
			r.Text = h.Text
			r.Metadata = h.Metadata
		} else if doc, ok := docs[f.ID]; ok {
			r.Text = doc.Text
			r.Metadata = doc.Metadata
		} else {
			continue // id no longer in the store
		}
		r.Rank = len(results) + 1
		results = append(results, r)
	}
	return results, nil
}

// corpusByID fetches the full corpus keyed by document id.
func (e *Engine) corpusByID(ctx context.Context) (map[string]corpus.Document, error) {
	docs, err := e.vector.GetAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]corpus.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	return byID, nil
}

func (e *Engine) record(query string, opts Options, degraded bool, resultCount int, latency time.Duration) {
	strategy := string(opts.Strategy)
	if opts.UseHyDE {
		strategy = "hyde"
	}
	e.logger.Info("search completed",
		slog.String("strategy", strategy),
		slog.Int("results", resultCount),
		slog.Bool("degraded", degraded),
		slog.Duration("latency", latency))
	if e.metrics != nil {
		e.metrics.Record(telemetry.QueryEvent{
			Query:       query,
			Strategy:    strategy,
			Degraded:    degraded,
			ResultCount: resultCount,
			Latency:     latency,
			Timestamp:   time.Now(),
		})
	}
}
