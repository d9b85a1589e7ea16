// Package cmd provides the CLI commands for searchfuse.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/searchfuse/searchfuse/pkg/version"
)

var (
	configPath string
	corpusDir  string
)

// NewRootCmd creates the root command for the searchfuse CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "searchfuse",
		Short: "Hybrid document retrieval with BM25 + vector fusion",
		Long: `searchfuse retrieves documents with hybrid search: a BM25 lexical
branch and a dense vector branch fused with Reciprocal Rank Fusion.

Optional LLM-backed query rewriting and HyDE expansion improve recall
on vague queries.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("searchfuse version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config YAML")
	cmd.PersistentFlags().StringVarP(&corpusDir, "corpus", "d", "", "Directory of .txt/.md documents to ingest")

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
