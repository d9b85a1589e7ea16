package llm

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

// OpenAIConfig configures the OpenAI-compatible chat completion client.
type OpenAIConfig struct {
	// APIKey authenticates against the API.
	APIKey string

	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string

	// Model is the chat model name.
	Model string

	// Temperature controls sampling randomness. Query transformations want
	// low values for reproducibility.
	Temperature float32

	// MaxTokens caps completion length.
	MaxTokens int

	// Timeout bounds each API call.
	Timeout time.Duration

	// Retry configures backoff for transient failures.
	Retry sferrors.RetryConfig
}

// DefaultOpenAIConfig returns defaults tuned for short query transformations.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Model:       openai.GPT4oMini,
		Temperature: 0.1,
		MaxTokens:   512,
		Timeout:     30 * time.Second,
		Retry:       sferrors.DefaultRetryConfig(),
	}
}

// OpenAIGenerator implements Generator over an OpenAI-compatible chat API.
type OpenAIGenerator struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIGenerator creates a generator from the given configuration.
func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}
}

// Complete sends the prompt as a single user message and returns the
// assistant's reply, retrying transient failures with backoff.
func (g *OpenAIGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	return sferrors.RetryWithResult(ctx, g.cfg.Retry, func() (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()

		resp, err := g.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       g.cfg.Model,
			Temperature: g.cfg.Temperature,
			MaxTokens:   g.cfg.MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			return "", g.classify(err)
		}
		if len(resp.Choices) == 0 {
			return "", sferrors.UpstreamError("generator",
				errors.New("completion returned no choices"))
		}
		return resp.Choices[0].Message.Content, nil
	})
}

func (g *OpenAIGenerator) classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return sferrors.TimeoutError("generator", err)
	}
	return sferrors.UpstreamError("generator", err)
}

var _ Generator = (*OpenAIGenerator)(nil)
