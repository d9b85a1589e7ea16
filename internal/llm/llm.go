// Package llm provides the text generation capability used by query
// transformations.
package llm

import "context"

// Generator produces a completion for a prompt. Implementations must respect
// the context and return upstream-classified errors on failure.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
