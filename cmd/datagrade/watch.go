package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datagrade/datagrade/pkg/export"
	"github.com/datagrade/datagrade/pkg/tui"
	"github.com/datagrade/datagrade/pkg/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dataset...]",
	Short: "Rescan datasets whenever their files change",
	Long: `Watch one or more local dataset files and rescan each on change.
Every rescan prints a fresh report; with --output the latest report is
also written out.

Examples:
  datagrade watch corpus.csv
  datagrade watch train.jsonl eval.jsonl -o latest.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write each report to a file (.json, .xlsx, .parquet)")
	watchCmd.Flags().StringVar(&textColumn, "text-column", "", "Column holding the text content")
	watchCmd.Flags().BoolVar(&noCache, "no-cache", false, "Skip the report cache")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := scanConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	w, err := watch.New()
	if err != nil {
		return err
	}
	defer w.Close()

	w.OnChange = func(ctx context.Context, path string) error {
		fmt.Printf("Change detected: %s\n", path)
		report, err := scanDataset(ctx, cfg, path, nil)
		if report != nil {
			tui.RenderReport(os.Stdout, report)
			if outputPath != "" {
				if exportErr := export.WriteReport(outputPath, report); exportErr != nil {
					return exportErr
				}
			}
		}
		return err
	}
	w.OnError = func(path string, err error) {
		fmt.Fprintf(os.Stderr, "watch error (%s): %v\n", path, err)
	}

	for _, dataset := range args {
		if err := w.Add(dataset); err != nil {
			return err
		}
		// Initial scan so the watch starts from a known report.
		if err := w.OnChange(ctx, dataset); err != nil {
			fmt.Fprintf(os.Stderr, "initial scan failed (%s): %v\n", dataset, err)
		}
	}

	fmt.Println("Watching for changes. Ctrl-C to stop.")
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
