package lexical

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchfuse/searchfuse/internal/corpus"
	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

// countingSource counts build passes so tests can verify single-flight
// rebuild coalescing.
type countingSource struct {
	mu    sync.Mutex
	docs  []corpus.Document
	calls atomic.Int32
}

func (s *countingSource) Snapshot(ctx context.Context) ([]corpus.Document, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs, nil
}

func petCorpus() []corpus.Document {
	return []corpus.Document{
		{ID: "d1", Text: "the cat sat on the mat"},
		{ID: "d2", Text: "dogs are loyal companions"},
		{ID: "d3", Text: "cats and dogs are common pets"},
	}
}

func TestBuild_EmptyCorpus(t *testing.T) {
	ix := NewIndex(nil, DefaultConfig())
	err := ix.Build(nil)
	require.ErrorIs(t, err, sferrors.ErrEmptyCorpus)

	// Index stays unbuilt; search returns empty, not an error.
	hits, err := ix.Search(context.Background(), "anything", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, uint64(0), ix.Generation())
}

func TestSearch_Unbuilt_ReturnsEmpty(t *testing.T) {
	ix := NewIndex(nil, DefaultConfig())
	hits, err := ix.Search(context.Background(), "cat", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearch_ScoresMonotonicallyNonIncreasing(t *testing.T) {
	ix := NewIndex(nil, DefaultConfig())
	require.NoError(t, ix.Build(petCorpus()))

	hits, err := ix.Search(context.Background(), "cat pets dogs", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestSearch_CatPetsScenario(t *testing.T) {
	ix := NewIndex(nil, DefaultConfig())
	require.NoError(t, ix.Build(petCorpus()))

	hits, err := ix.Search(context.Background(), "cat pets", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	// d3 matches "pets", d1 matches "cat"; d2 matches neither term.
	ids := []string{hits[0].DocID, hits[1].DocID}
	assert.Contains(t, ids, "d1")
	assert.Contains(t, ids, "d3")
	assert.NotContains(t, ids, "d2")
}

func TestSearch_NoMatchingTerms(t *testing.T) {
	ix := NewIndex(nil, DefaultConfig())
	require.NoError(t, ix.Build(petCorpus()))

	hits, err := ix.Search(context.Background(), "quantum entanglement", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearch_TopKTruncation(t *testing.T) {
	ix := NewIndex(nil, DefaultConfig())
	require.NoError(t, ix.Build(petCorpus()))

	hits, err := ix.Search(context.Background(), "cats dogs pets mat", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearch_TieBrokenByDocID(t *testing.T) {
	ix := NewIndex(nil, DefaultConfig())
	require.NoError(t, ix.Build([]corpus.Document{
		{ID: "b", Text: "alpha beta"},
		{ID: "a", Text: "alpha beta"},
	}))

	hits, err := ix.Search(context.Background(), "alpha", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].DocID)
	assert.Equal(t, "b", hits[1].DocID)
	assert.Equal(t, hits[0].Score, hits[1].Score)
}

func TestLazyBuild_OnFirstSearch(t *testing.T) {
	src := &countingSource{docs: petCorpus()}
	ix := NewIndex(src, DefaultConfig())

	assert.Equal(t, uint64(0), ix.Generation())

	hits, err := ix.Search(context.Background(), "cat", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
	assert.Equal(t, uint64(1), ix.Generation())
	assert.Equal(t, int32(1), src.calls.Load())

	// Subsequent searches reuse the snapshot.
	_, err = ix.Search(context.Background(), "dogs", 10)
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestInvalidate_TriggersRebuildWithNewGeneration(t *testing.T) {
	src := &countingSource{docs: petCorpus()}
	ix := NewIndex(src, DefaultConfig())

	_, err := ix.Search(context.Background(), "cat", 10)
	require.NoError(t, err)
	require.Equal(t, uint64(1), ix.Generation())

	src.mu.Lock()
	src.docs = append(src.docs, corpus.Document{ID: "d4", Text: "hamsters are small pets"})
	src.mu.Unlock()
	ix.Invalidate()

	hits, err := ix.Search(context.Background(), "hamsters", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d4", hits[0].DocID)
	assert.Equal(t, uint64(2), ix.Generation())
}

// mutatingSource invalidates the index from inside Snapshot, modeling a
// corpus change that lands after the rebuild has started reading.
type mutatingSource struct {
	ix    *Index
	docs  []corpus.Document
	calls atomic.Int32
}

func (s *mutatingSource) Snapshot(ctx context.Context) ([]corpus.Document, error) {
	s.calls.Add(1)
	if s.ix != nil {
		s.ix.Invalidate()
	}
	return s.docs, nil
}

func TestInvalidate_DuringSnapshotKeepsIndexStale(t *testing.T) {
	src := &mutatingSource{docs: petCorpus()}
	ix := NewIndex(src, DefaultConfig())
	src.ix = ix

	// The first search builds from a snapshot that was invalidated while it
	// was being read, so the build must not count as fresh.
	_, err := ix.Search(context.Background(), "cat", 10)
	require.NoError(t, err)
	require.Equal(t, int32(1), src.calls.Load())

	// The mutation source stops invalidating; the next search must rebuild
	// once more to pick up the post-mutation corpus.
	src.ix = nil
	_, err = ix.Search(context.Background(), "cat", 10)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, uint64(2), ix.Generation())

	// Now the index is fresh and further searches reuse the snapshot.
	_, err = ix.Search(context.Background(), "dogs", 10)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestInvalidate_ConcurrentRebuildsCoalesce(t *testing.T) {
	src := &countingSource{docs: petCorpus()}
	ix := NewIndex(src, DefaultConfig())

	// Prime the index, then invalidate once.
	_, err := ix.Search(context.Background(), "cat", 10)
	require.NoError(t, err)
	ix.Invalidate()

	const n = 16
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			hits, searchErr := ix.Search(context.Background(), "pets", 10)
			assert.NoError(t, searchErr)
			assert.NotEmpty(t, hits)
		}()
	}
	close(start)
	wg.Wait()

	// One build for the initial lazy pass, at most one more for the
	// invalidation, regardless of how many searches raced.
	assert.LessOrEqual(t, src.calls.Load(), int32(2))
	assert.Equal(t, uint64(2), ix.Generation())
}

func TestStats(t *testing.T) {
	ix := NewIndex(nil, DefaultConfig())
	require.NoError(t, ix.Build(petCorpus()))

	stats := ix.Stats()
	assert.Equal(t, uint64(1), stats.Generation)
	assert.Equal(t, 3, stats.DocumentCount)
	assert.Greater(t, stats.TermCount, 0)
	assert.Greater(t, stats.AvgDocLength, 0.0)
}

func TestSearch_CJKQuery(t *testing.T) {
	ix := NewIndex(nil, DefaultConfig())
	require.NoError(t, ix.Build([]corpus.Document{
		{ID: "zh", Text: "Python 如何读取文件"},
		{ID: "en", Text: "reading files in python"},
	}))

	hits, err := ix.Search(context.Background(), "读取文件", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "zh", hits[0].DocID)
}
