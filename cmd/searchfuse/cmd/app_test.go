package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchfuse/searchfuse/internal/config"
	"github.com/searchfuse/searchfuse/internal/lexical"
	"github.com/searchfuse/searchfuse/internal/vector"
)

type staticEmbedder struct{}

func (staticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1, 0}, nil
}

func (s staticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (staticEmbedder) Dimensions() int   { return 3 }
func (staticEmbedder) ModelName() string { return "static" }

func newTestApp(t *testing.T, dir string) *app {
	t.Helper()

	store, err := vector.NewHNSWStore(vector.DefaultHNSWConfig(3))
	require.NoError(t, err)
	adapter := vector.NewAdapter(store, vector.AdapterConfig{})
	index := lexical.NewIndex(adapter, lexical.Config{})

	cfg := &config.Config{}
	cfg.Corpus.Dir = dir

	return &app{
		cfg:      cfg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		embedder: staticEmbedder{},
		store:    store,
		adapter:  adapter,
		index:    index,
	}
}

func writeCorpusFile(t *testing.T, dir, name, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644))
}

func TestIngest_LoadsCorpusIntoStore(t *testing.T) {
	dir := t.TempDir()
	writeCorpusFile(t, dir, "a.txt", "alpha doc")
	writeCorpusFile(t, dir, "b.md", "beta doc")

	a := newTestApp(t, dir)
	require.NoError(t, a.ingest(context.Background()))

	assert.Equal(t, 2, a.store.Count())
	docs, err := a.store.GetAll(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a.txt", docs[0].ID)
	assert.Equal(t, "b.md", docs[1].ID)
}

func TestIngest_RemovesDeletedFilesFromStore(t *testing.T) {
	dir := t.TempDir()
	writeCorpusFile(t, dir, "keep.txt", "stays on disk")
	writeCorpusFile(t, dir, "drop.txt", "about to vanish")

	a := newTestApp(t, dir)
	require.NoError(t, a.ingest(context.Background()))
	require.Equal(t, 2, a.store.Count())

	require.NoError(t, os.Remove(filepath.Join(dir, "drop.txt")))
	require.NoError(t, a.ingest(context.Background()))

	assert.Equal(t, 1, a.store.Count())
	docs, err := a.store.GetAll(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "keep.txt", docs[0].ID)
}
