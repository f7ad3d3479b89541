package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/content-pipeline/internal/observability"
	"github.com/jonathan/content-pipeline/internal/pipeline"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the chunk statuses of a stored job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the job as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.store.GetJob(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return &pipeline.JobNotFoundError{JobID: args[0]}
	}

	out := cmd.OutOrStdout()
	if statusJSON {
		return writeJSON(out, job)
	}
	observability.NewPrinter(out, false).PrintJob(job)
	return nil
}
