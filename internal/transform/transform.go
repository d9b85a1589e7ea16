// Package transform implements LLM-backed query transformations: rewriting
// vague queries into retrieval-friendly ones, and HyDE expansion into a
// hypothetical answer used as a vector probe.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
	"github.com/searchfuse/searchfuse/internal/llm"
)

// labelPrefix matches a leading "Some label:" run at the start of generator
// output. Models often echo the instruction back as a prefix.
var labelPrefix = regexp.MustCompile(`^[^\n:：]{1,80}[:：]\s*`)

// hydeLabelLine matches a line that is only a "hypothetical"/"answer" style
// label, which some models emit before the actual answer.
var hydeLabelLine = regexp.MustCompile(`(?i)^\s*(hypothetical( answer| document)?|answer)\s*[:：]?\s*$`)

// hydeInlinePrefix matches an "Answer:" style prefix left on the first
// content line after label lines are dropped.
var hydeInlinePrefix = regexp.MustCompile(`(?i)^(hypothetical answer|answer)[:：]\s*`)

// Transformer runs query transformations against a Generator. It is stateless
// per call; a single instance is safe for concurrent use.
type Transformer struct {
	generator llm.Generator
	logger    *slog.Logger
}

// New creates a Transformer. A nil logger falls back to slog.Default.
func New(generator llm.Generator, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{generator: generator, logger: logger}
}

// Rewrite turns a possibly vague query into a more complete, specific one.
// The optional queryContext helps the model disambiguate intent. Empty
// generator output fails with ErrEmptyRewrite; callers fall back to the
// original query.
func (t *Transformer) Rewrite(ctx context.Context, query, queryContext string) (string, error) {
	var b strings.Builder
	b.WriteString("You are a query rewriting assistant. The user's query may be incomplete or ambiguous; rewrite it into a more complete, more specific query.\n")
	if queryContext != "" {
		fmt.Fprintf(&b, "Context: %s\n", queryContext)
	}
	fmt.Fprintf(&b, "Original query: %s\n", query)
	b.WriteString("Rewrite the query so it is easier to match against a document collection. Return only the rewritten query, with no explanation.")

	out, err := t.generator.Complete(ctx, b.String())
	if err != nil {
		return "", err
	}

	rewritten := stripLabelPrefix(strings.TrimSpace(out))
	if rewritten == "" {
		return "", sferrors.ErrEmptyRewrite
	}

	t.logger.Debug("query rewritten",
		slog.String("original", query),
		slog.String("rewritten", rewritten))
	return rewritten, nil
}

// HyDE generates a hypothetical, information-dense answer to the query. The
// text is a retrieval probe only; it is embedded and used as the query vector,
// never shown to a user.
func (t *Transformer) HyDE(ctx context.Context, query string) (string, error) {
	var b strings.Builder
	b.WriteString("Given the following question, generate a hypothetical answer containing the key information and concepts the question involves.\n")
	fmt.Fprintf(&b, "Question: %s\n", query)
	b.WriteString("The answer should use relevant terminology and be structured for retrieval. Return only the hypothetical answer, with no explanation.")

	out, err := t.generator.Complete(ctx, b.String())
	if err != nil {
		return "", err
	}

	answer := stripHydeLabel(strings.TrimSpace(out))
	if answer == "" {
		return "", sferrors.ErrEmptyRewrite
	}

	t.logger.Debug("hyde expansion generated",
		slog.String("query", query),
		slog.Int("answer_len", len(answer)))
	return answer, nil
}

// stripLabelPrefix removes a leading "label:" run from generator output.
func stripLabelPrefix(s string) string {
	return strings.TrimSpace(labelPrefix.ReplaceAllString(s, ""))
}

// stripHydeLabel removes a leading label line such as "Hypothetical answer:"
// and an inline "Answer:" prefix on the first content line.
func stripHydeLabel(s string) string {
	lines := strings.Split(s, "\n")
	for len(lines) > 0 && hydeLabelLine.MatchString(lines[0]) {
		lines = lines[1:]
	}
	out := strings.TrimSpace(strings.Join(lines, "\n"))
	if m := hydeInlinePrefix.FindString(out); m != "" {
		out = strings.TrimSpace(out[len(m):])
	}
	return out
}
