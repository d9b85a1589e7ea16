package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		category Category
		retry    bool
	}{
		{"config", ErrCodeConfigInvalid, CategoryConfig, false},
		{"corpus", ErrCodeEmptyCorpus, CategoryCorpus, false},
		{"upstream timeout", ErrCodeUpstreamTimeout, CategoryUpstream, true},
		{"upstream unavailable", ErrCodeUpstreamUnavailable, CategoryUpstream, true},
		{"validation", ErrCodeInvalidMetadata, CategoryValidation, false},
		{"internal", ErrCodeRetrievalUnavailable, CategoryInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.retry, err.Retryable)
		})
	}
}

func TestSentinels_MatchByCode(t *testing.T) {
	wrapped := UpstreamError("vector store", stderrors.New("connection refused"))
	assert.True(t, stderrors.Is(wrapped, ErrUpstreamUnavailable))
	assert.False(t, stderrors.Is(wrapped, ErrEmptyCorpus))

	// Matching survives another layer of fmt wrapping.
	outer := fmt.Errorf("branch failed: %w", wrapped)
	assert.True(t, stderrors.Is(outer, ErrUpstreamUnavailable))
}

func TestUnwrap_PreservesCause(t *testing.T) {
	cause := stderrors.New("dial tcp: timeout")
	err := UpstreamError("embedder", cause)
	assert.True(t, stderrors.Is(err, cause))
}

func TestIsUpstream(t *testing.T) {
	assert.True(t, IsUpstream(UpstreamError("vector store", stderrors.New("down"))))
	assert.True(t, IsUpstream(TimeoutError("generator", stderrors.New("deadline"))))
	assert.True(t, IsUpstream(fmt.Errorf("wrapped: %w", UpstreamError("x", stderrors.New("y")))))
	assert.False(t, IsUpstream(ErrEmptyCorpus))
	assert.False(t, IsUpstream(stderrors.New("plain")))
	assert.False(t, IsUpstream(nil))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	require.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeEmptyCorpus, GetCode(ErrEmptyCorpus))
	assert.Equal(t, "", GetCode(stderrors.New("plain")))
}
