// DataGrade - Streaming quality scoring for large text datasets.
// Scans CSV, JSONL, Arrow, Parquet, and S3-hosted datasets in one pass and
// grades them for ML training readiness.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

// Global flags
var (
	verbose bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "datagrade",
	Short: "DataGrade - Score text dataset quality before training",
	Long: `DataGrade scans large text datasets in a single streaming pass and
produces a quality report: a composite score, per-category sub-scores,
duplicate statistics, and the issues that cost the most rows.

Examples:
  datagrade scan corpus.jsonl
  datagrade scan s3://bucket/corpus.csv -o report.json
  datagrade watch corpus.csv
  datagrade analyzers`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(analyzersCmd)
	rootCmd.AddCommand(configCmd)
}
