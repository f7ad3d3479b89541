package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/content-pipeline/internal/metrics"
	"github.com/jonathan/content-pipeline/internal/observability"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Summarize recent pipeline runs",
	Long: `Prints average durations, cost, cache hit rate and failure points over the most recent
runs. Runs are only visible across processes when REDIS_ADDR is set.`,
	RunE: runMetrics,
}

var metricsJSON bool

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Print the statistics as JSON")
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.sink.Recent(ctx)
	if err != nil {
		return fmt.Errorf("failed to read run metrics: %w", err)
	}
	stats := metrics.Aggregate(runs)

	out := cmd.OutOrStdout()
	if metricsJSON {
		return writeJSON(out, stats)
	}
	if !a.sink.Shared() {
		_, _ = fmt.Fprintln(out, "Run metrics are kept in process memory; set REDIS_ADDR to see runs from other processes.")
	}
	observability.NewPrinter(out, false).PrintAggregate(stats)
	return nil
}
