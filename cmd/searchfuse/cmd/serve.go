package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/searchfuse/searchfuse/internal/retrieval"
	"github.com/searchfuse/searchfuse/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Interactive search session with live corpus reindexing",
		Long: `Ingest the corpus, then read queries from stdin, one per line.

The corpus directory is watched; adding, editing, or removing .txt/.md
files reingests documents and rebuilds the lexical index automatically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", "hybrid", "Retrieval strategy: hybrid, vector, lexical")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "n", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&opts.rewrite, "rewrite", false, "Rewrite queries with the generator first")
	cmd.Flags().BoolVar(&opts.hyde, "hyde", false, "HyDE expansion for every query")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts searchOptions) error {
	strategy, err := parseStrategy(opts.strategy)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.ingest(ctx); err != nil {
		return err
	}

	w := watcher.New(a.cfg.Corpus.Dir, func() {
		if err := a.ingest(context.Background()); err != nil {
			a.logger.Error("reingest failed", slog.String("error", err.Error()))
		}
	}, watcher.Options{
		Debounce: a.cfg.Corpus.WatchDebounce,
		Logger:   a.logger,
	})
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Enter queries, one per line (Ctrl-D to exit).")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}

		results, err := a.engine.Search(ctx, query, retrieval.Options{
			Strategy:   strategy,
			UseRewrite: opts.rewrite,
			UseHyDE:    opts.hyde,
			TopK:       opts.topK,
		})
		if err != nil {
			fmt.Fprintf(out, "search failed: %v\n", err)
			continue
		}
		if err := printResults(cmd, results, opts.format); err != nil {
			return err
		}
	}

	snap := a.metrics.Snapshot()
	a.logger.Info("session finished",
		slog.Int64("queries", snap.TotalQueries),
		slog.Int64("zero_results", snap.ZeroResultCount))
	return scanner.Err()
}
