package vector

import (
	"context"
	"errors"
	"time"

	"github.com/searchfuse/searchfuse/internal/corpus"
	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

// Adapter wraps a Store with the boundary concerns the engine should not see:
// call timeouts, upstream failure classification, fail-fast via a circuit
// breaker, and metadata validation. Ranking order from the store is preserved
// untouched; the adapter never re-derives scores.
type Adapter struct {
	store   Store
	cfg     AdapterConfig
	breaker *sferrors.CircuitBreaker
}

// NewAdapter creates an adapter around the given store.
func NewAdapter(store Store, cfg AdapterConfig) *Adapter {
	if cfg.Timeout < 0 {
		cfg.Timeout = 0
	}
	return &Adapter{
		store:   store,
		cfg:     cfg,
		breaker: sferrors.NewCircuitBreaker("vector-store"),
	}
}

// Search queries the store and returns hits in the store's native order.
// Failures and timeouts surface as upstream errors so the orchestrator can
// degrade the branch.
func (a *Adapter) Search(ctx context.Context, vec []float32, topK int, filter map[string]any) ([]Hit, error) {
	if topK <= 0 {
		return []Hit{}, nil
	}

	var hits []Hit
	err := a.breaker.Do(func() error {
		callCtx, cancel := a.callContext(ctx)
		defer cancel()

		var queryErr error
		hits, queryErr = a.store.Query(callCtx, vec, topK, filter)
		return queryErr
	})
	if err != nil {
		return nil, a.classify("vector store query", err)
	}

	for i := range hits {
		hits[i].Metadata = corpus.SanitizeMetadata(hits[i].Metadata)
	}
	return hits, nil
}

// GetAll returns every document from the store with sanitized metadata.
func (a *Adapter) GetAll(ctx context.Context, filter map[string]any) ([]corpus.Document, error) {
	var docs []corpus.Document
	err := a.breaker.Do(func() error {
		callCtx, cancel := a.callContext(ctx)
		defer cancel()

		var getErr error
		docs, getErr = a.store.GetAll(callCtx, filter)
		return getErr
	})
	if err != nil {
		return nil, a.classify("vector store getAll", err)
	}

	for i := range docs {
		docs[i].Metadata = corpus.SanitizeMetadata(docs[i].Metadata)
	}
	return docs, nil
}

// Snapshot implements the lexical index's corpus source: the store's full
// document set is the corpus of record.
func (a *Adapter) Snapshot(ctx context.Context) ([]corpus.Document, error) {
	return a.GetAll(ctx, nil)
}

func (a *Adapter) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, a.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// classify maps raw store failures onto the retrieval error taxonomy.
// Caller cancellation is passed through so a cancelled retrieval never turns
// into a degraded-branch success.
func (a *Adapter) classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return sferrors.TimeoutError(op, err)
	}
	return sferrors.UpstreamError(op, err)
}

// Timeout reports the configured per-call timeout.
func (a *Adapter) Timeout() time.Duration {
	return a.cfg.Timeout
}
