package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/searchfuse/searchfuse/internal/config"
	"github.com/searchfuse/searchfuse/internal/corpus"
	"github.com/searchfuse/searchfuse/internal/embed"
	"github.com/searchfuse/searchfuse/internal/lexical"
	"github.com/searchfuse/searchfuse/internal/llm"
	"github.com/searchfuse/searchfuse/internal/logging"
	"github.com/searchfuse/searchfuse/internal/retrieval"
	"github.com/searchfuse/searchfuse/internal/telemetry"
	"github.com/searchfuse/searchfuse/internal/transform"
	"github.com/searchfuse/searchfuse/internal/vector"
)

// app holds the wired retrieval stack for one CLI invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	cleanup  func()
	embedder embed.Embedder
	store    *vector.HNSWStore
	adapter  *vector.Adapter
	index    *lexical.Index
	engine   *retrieval.Engine
	metrics  *telemetry.Metrics
}

// newApp loads configuration, sets up logging, and wires the engine.
// The corpus is not ingested yet; call ingest before searching.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if corpusDir != "" {
		cfg.Corpus.Dir = corpusDir
	}
	if cfg.Corpus.Dir == "" {
		return nil, fmt.Errorf("no corpus directory; pass --corpus or set corpus.dir")
	}

	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.FilePath,
		WriteToStderr: true,
	})
	if err != nil {
		return nil, err
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		cleanup()
		return nil, err
	}

	store, err := vector.NewHNSWStore(vector.DefaultHNSWConfig(cfg.Embeddings.Dimensions))
	if err != nil {
		cleanup()
		return nil, err
	}
	adapter := vector.NewAdapter(store, vector.AdapterConfig{Timeout: cfg.Search.VectorTimeout})

	index := lexical.NewIndex(adapter, lexical.Config{
		K1: cfg.Lexical.K1,
		B:  cfg.Lexical.B,
	})

	var transformer retrieval.QueryTransformer
	if key := cfg.Generator.APIKey(); key != "" {
		genCfg := llm.DefaultOpenAIConfig()
		genCfg.APIKey = key
		genCfg.BaseURL = cfg.Generator.BaseURL
		genCfg.Model = cfg.Generator.Model
		genCfg.Temperature = cfg.Generator.Temperature
		genCfg.MaxTokens = cfg.Generator.MaxTokens
		genCfg.Timeout = cfg.Generator.Timeout
		transformer = transform.New(llm.NewOpenAIGenerator(genCfg), logger)
	}

	metrics := telemetry.NewMetrics()
	engine := retrieval.NewEngine(retrieval.EngineConfig{
		RRFConstant:         cfg.Search.RRFConstant,
		CandidateMultiplier: cfg.Search.CandidateMultiplier,
	}, embedder, adapter, index, transformer, metrics, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		cleanup:  cleanup,
		embedder: embedder,
		store:    store,
		adapter:  adapter,
		index:    index,
		engine:   engine,
		metrics:  metrics,
	}, nil
}

func buildEmbedder(cfg *config.Config) (embed.Embedder, error) {
	embCfg := embed.DefaultOpenAIConfig()
	embCfg.APIKey = cfg.Embeddings.APIKey()
	embCfg.BaseURL = cfg.Embeddings.BaseURL
	embCfg.Model = cfg.Embeddings.Model
	embCfg.Dimensions = cfg.Embeddings.Dimensions
	embCfg.Timeout = cfg.Embeddings.Timeout

	return embed.NewCachedEmbedder(embed.NewOpenAIEmbedder(embCfg), cfg.Embeddings.CacheSize)
}

// ingest loads the corpus directory, embeds every document, and syncs the
// vector store to it: new and changed files are upserted, documents whose
// files are gone from disk are deleted. The lexical index is invalidated so
// its next search rebuilds against the new snapshot.
func (a *app) ingest(ctx context.Context) error {
	docs, err := corpus.LoadDir(a.cfg.Corpus.Dir)
	if err != nil {
		return err
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := a.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding corpus: %w", err)
	}

	removed, err := a.pruneDeleted(ctx, docs)
	if err != nil {
		return err
	}
	if err := a.store.Add(ctx, docs, vectors); err != nil {
		return err
	}
	a.index.Invalidate()

	a.logger.Info("corpus ingested",
		slog.String("dir", a.cfg.Corpus.Dir),
		slog.Int("documents", len(docs)),
		slog.Int("removed", removed))
	return nil
}

// pruneDeleted removes store documents whose source files no longer exist.
func (a *app) pruneDeleted(ctx context.Context, docs []corpus.Document) (int, error) {
	existing, err := a.store.GetAll(ctx, nil)
	if err != nil {
		return 0, err
	}

	onDisk := make(map[string]bool, len(docs))
	for _, d := range docs {
		onDisk[d.ID] = true
	}
	var stale []string
	for _, d := range existing {
		if !onDisk[d.ID] {
			stale = append(stale, d.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := a.store.Delete(ctx, stale); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (a *app) close() {
	if a.cleanup != nil {
		a.cleanup()
	}
}
