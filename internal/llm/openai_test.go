package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

func TestDefaultOpenAIConfig(t *testing.T) {
	cfg := DefaultOpenAIConfig()
	assert.NotEmpty(t, cfg.Model)
	assert.Greater(t, cfg.MaxTokens, 0)
	assert.Greater(t, cfg.Timeout.Seconds(), 0.0)
}

func TestClassify(t *testing.T) {
	g := NewOpenAIGenerator(DefaultOpenAIConfig())

	err := g.classify(context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, sferrors.IsUpstream(err))

	err = g.classify(context.DeadlineExceeded)
	require.Error(t, err)
	assert.True(t, sferrors.IsUpstream(err))
	assert.Equal(t, sferrors.ErrCodeUpstreamTimeout, sferrors.GetCode(err))

	err = g.classify(errors.New("connection refused"))
	assert.True(t, sferrors.IsUpstream(err))
}
