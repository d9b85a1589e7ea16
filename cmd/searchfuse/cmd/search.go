package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/searchfuse/searchfuse/internal/retrieval"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	strategy string
	topK     int
	rewrite  bool
	hyde     bool
	format   string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Ingest the corpus and run one hybrid search",
		Long: `Ingest the corpus directory and search it.

Combines BM25 (keyword) and vector (embedding) search with
Reciprocal Rank Fusion.

Examples:
  searchfuse search "connection pooling" --corpus ./docs
  searchfuse search "error handling" --strategy lexical --top-k 5
  searchfuse search "how do caches work" --hyde --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", "hybrid", "Retrieval strategy: hybrid, vector, lexical")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "n", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&opts.rewrite, "rewrite", false, "Rewrite the query with the generator first")
	cmd.Flags().BoolVar(&opts.hyde, "hyde", false, "HyDE expansion: search with a hypothetical answer's embedding")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	strategy, err := parseStrategy(opts.strategy)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.ingest(ctx); err != nil {
		return err
	}

	results, err := a.engine.Search(ctx, query, retrieval.Options{
		Strategy:   strategy,
		UseRewrite: opts.rewrite,
		UseHyDE:    opts.hyde,
		TopK:       opts.topK,
	})
	if err != nil {
		return err
	}

	return printResults(cmd, results, opts.format)
}

func parseStrategy(s string) (retrieval.Strategy, error) {
	switch retrieval.Strategy(s) {
	case retrieval.StrategyHybrid, retrieval.StrategyVector, retrieval.StrategyLexical:
		return retrieval.Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown strategy %q (want hybrid, vector, or lexical)", s)
	}
}

func printResults(cmd *cobra.Command, results []retrieval.Result, format string) error {
	out := cmd.OutOrStdout()

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(out, "%2d. %s (score %.6f)\n", r.Rank, r.ID, r.Score)
		fmt.Fprintf(out, "    %s\n", snippet(r.Text, 160))
	}
	return nil
}

// snippet truncates text to a single display line.
func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
