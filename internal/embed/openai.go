package embed

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

// OpenAIConfig configures the OpenAI-compatible embedding client.
type OpenAIConfig struct {
	// APIKey authenticates against the API.
	APIKey string

	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string

	// Model is the embedding model name.
	Model string

	// Dimensions is the embedding dimension the model produces.
	Dimensions int

	// Timeout bounds each API call.
	Timeout time.Duration

	// Retry configures backoff for transient failures.
	Retry sferrors.RetryConfig
}

// DefaultOpenAIConfig returns defaults for text-embedding-3-small.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Model:      string(openai.SmallEmbedding3),
		Dimensions: 1536,
		Timeout:    30 * time.Second,
		Retry:      sferrors.DefaultRetryConfig(),
	}
}

// OpenAIEmbedder implements Embedder over an OpenAI-compatible embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIEmbedder creates an embedder from the given configuration.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds multiple texts in one API call, retrying transient
// failures with backoff.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	return sferrors.RetryWithResult(ctx, e.cfg.Retry, func() ([][]float32, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()

		resp, err := e.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(e.cfg.Model),
		})
		if err != nil {
			return nil, e.classify(err)
		}
		if len(resp.Data) != len(texts) {
			return nil, sferrors.New(sferrors.ErrCodeEmbeddingFailed,
				"embedding response count does not match input count", nil)
		}

		vectors := make([][]float32, len(resp.Data))
		for _, d := range resp.Data {
			vectors[d.Index] = d.Embedding
		}
		return vectors, nil
	})
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// ModelName returns the embedding model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.cfg.Model
}

func (e *OpenAIEmbedder) classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return sferrors.TimeoutError("embedder", err)
	}
	return sferrors.UpstreamError("embedder", err)
}

var _ Embedder = (*OpenAIEmbedder)(nil)
