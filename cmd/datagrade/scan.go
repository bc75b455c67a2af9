package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/datagrade/datagrade/pkg/cache"
	"github.com/datagrade/datagrade/pkg/config"
	"github.com/datagrade/datagrade/pkg/engine"
	"github.com/datagrade/datagrade/pkg/export"
	"github.com/datagrade/datagrade/pkg/score"
	"github.com/datagrade/datagrade/pkg/source"
	"github.com/datagrade/datagrade/pkg/telemetry"
	"github.com/datagrade/datagrade/pkg/tui"
)

// Scan flags
var (
	outputPath   string
	textColumn   string
	shardsFlag   int
	languageFlag string
	analyzerList []string
	noCache      bool
	allowNetwork bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [dataset]",
	Short: "Scan a dataset and produce a quality report",
	Long: `Scan a dataset in one streaming pass and print its quality report.

Accepts local CSV, TSV, JSONL, Arrow, and Parquet files, or s3:// object
URLs. With --output the report is also written as JSON, XLSX, or Parquet
depending on the extension.

Examples:
  datagrade scan corpus.jsonl
  datagrade scan corpus.csv --text-column content
  datagrade scan s3://bucket/corpus.csv -o report.xlsx
  datagrade scan corpus.parquet --analyzers noise,encoding,missingness`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the report to a file (.json, .xlsx, .parquet)")
	scanCmd.Flags().StringVar(&textColumn, "text-column", "", "Column holding the text content")
	scanCmd.Flags().IntVar(&shardsFlag, "shards", 0, "Worker fan-out (0 = number of CPUs)")
	scanCmd.Flags().StringVar(&languageFlag, "language", "", "Declared dataset language (ISO 639-1)")
	scanCmd.Flags().StringSliceVar(&analyzerList, "analyzers", nil, "Analyzers to run (default: all built-ins)")
	scanCmd.Flags().BoolVar(&noCache, "no-cache", false, "Skip the report cache")
	scanCmd.Flags().BoolVar(&allowNetwork, "allow-network", false, "Enable analyzers that need network access")
}

func runScan(cmd *cobra.Command, args []string) error {
	dataset := args[0]
	cfg := scanConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, finishing buffered rows...")
		cancel()
	}()

	tracer, shutdown, err := initTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	if shutdown != nil {
		defer shutdown(context.Background())
	}

	report, err := scanDataset(ctx, cfg, dataset, tracer)
	if report != nil {
		tui.RenderReport(os.Stdout, report)
		if outputPath != "" {
			if exportErr := export.WriteReport(outputPath, report); exportErr != nil {
				return exportErr
			}
			if verbose {
				fmt.Printf("Report written to %s\n", outputPath)
			}
		}
	}
	return err
}

// scanConfig resolves the effective configuration: files and environment
// via the global manager, then command-line overrides on top.
func scanConfig() *config.Config {
	// Shallow copy so flag overrides never leak into the global config.
	cfg := *config.Global().Get()
	if textColumn != "" {
		cfg.Scan.TextColumn = textColumn
	}
	if shardsFlag > 0 {
		cfg.Scan.Shards = shardsFlag
	}
	if languageFlag != "" {
		cfg.Analyzers.DeclaredLanguage = languageFlag
	}
	if len(analyzerList) > 0 {
		cfg.Analyzers.Enabled = analyzerList
	}
	return &cfg
}

func initTelemetry(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.Telemetry.Enabled {
		return nil, nil, nil
	}
	tcfg := telemetry.DefaultConfig(cfg.Telemetry.Endpoint)
	tcfg.ServiceVersion = version
	tracer, shutdown, err := telemetry.Init(tcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry init failed: %w", err)
	}
	return tracer, shutdown, nil
}

// scanDataset runs one scan, going through the report cache when enabled.
// A partial report is returned alongside the run error so callers can show
// what was scored before the failure.
func scanDataset(ctx context.Context, cfg *config.Config, dataset string, tracer trace.Tracer) (*score.Report, error) {
	var reports *cache.ReportCache
	var cacheKey string

	if cfg.Cache.Enabled && !noCache {
		ccfg := cache.DefaultConfig(cfg.Cache.Address)
		ccfg.Password = cfg.Cache.Password
		ccfg.Database = cfg.Cache.Database
		if cfg.Cache.TTL > 0 {
			ccfg.TTL = cfg.Cache.TTL
		}
		c, err := cache.New(ccfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cache unavailable, scanning without it: %v\n", err)
		} else {
			reports = c
			defer reports.Close()

			cacheKey, err = cache.RequestKey(datasetIdentity(dataset), cfg)
			if err == nil {
				if cached, err := reports.Get(ctx, cacheKey); err == nil && cached != nil {
					if verbose {
						fmt.Println("Report served from cache.")
					}
					return cached, nil
				}
			}
		}
	}

	ecfg, err := cfg.EngineConfig(dataset)
	if err != nil {
		return nil, err
	}
	ecfg.AllowNetwork = allowNetwork
	ecfg.Tracer = tracer
	if !strings.HasPrefix(dataset, "s3://") {
		// Local files get a bounded inference pre-pass; S3 objects are
		// scanned typeless rather than paying a second download.
		ecfg.Schema, err = source.InferSchema(ctx, dataset, source.DefaultInferRows)
		if err != nil {
			return nil, err
		}
	}

	src, err := openDataset(ctx, dataset)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	bar := tui.ShowProgress(-1, "scanning")
	ecfg.ProgressEvery = 1000
	ecfg.OnProgress = func(rows int64) { bar.Set64(rows) }

	report, runErr := engine.New(ecfg).Run(ctx, src)
	bar.Finish()

	if reports != nil && cacheKey != "" && report != nil {
		if err := reports.Put(ctx, cacheKey, report); err != nil && verbose {
			fmt.Fprintf(os.Stderr, "cache put failed: %v\n", err)
		}
	}
	return report, runErr
}

// openDataset opens a local path or an s3:// object URL.
func openDataset(ctx context.Context, dataset string) (engine.RowSource, error) {
	if bucket, key, ok := parseS3URL(dataset); ok {
		client, err := source.NewS3Client(ctx)
		if err != nil {
			return nil, err
		}
		return source.OpenS3(ctx, client, bucket, key)
	}
	return source.Open(ctx, dataset)
}

// parseS3URL splits s3://bucket/key into its parts.
func parseS3URL(u string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(u, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// datasetIdentity keys the cache on content identity, not just the path:
// for local files the size and mtime are folded in, so an updated file is
// a cache miss.
func datasetIdentity(dataset string) string {
	if strings.HasPrefix(dataset, "s3://") {
		return dataset
	}
	stat, err := os.Stat(dataset)
	if err != nil {
		return dataset
	}
	return fmt.Sprintf("%s|%d|%d", dataset, stat.Size(), stat.ModTime().UnixNano())
}
