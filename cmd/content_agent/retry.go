package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/pipeline"
)

var retryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Resume a failed or interrupted job",
	Long: `Resumes a stored job. Chunks that already completed are skipped; execution starts at
the first incomplete chunk, or at --from when given. Requires a durable job store.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

var (
	retryFrom    string
	retryJSON    bool
	retryTrace   bool
	retryVerbose bool
)

func init() {
	retryCmd.Flags().StringVar(&retryFrom, "from", "", "Chunk to resume from (defaults to the first incomplete chunk)")
	addOutputFlags(retryCmd, &retryJSON, &retryTrace, &retryVerbose)
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	from, err := parseFrom(retryFrom)
	if err != nil {
		return err
	}

	shutdown, err := startTracing(retryTrace)
	if err != nil {
		return err
	}
	defer shutdown()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	rc := pipeline.NewRetryController(a.orch)
	plan, err := rc.Plan(ctx, args[0], from)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	res, err := rc.Retry(ctx, plan, progressObserver(out, retryJSON, retryVerbose))
	if err != nil {
		return err
	}
	if retryJSON {
		return writeJSON(out, res)
	}
	return nil
}

// parseFrom maps an empty flag to nil and rejects unknown chunk names.
func parseFrom(s string) (*jobs.ChunkKind, error) {
	if s == "" {
		return nil, nil
	}
	kind, err := jobs.ParseChunkKind(s)
	if err != nil {
		return nil, fmt.Errorf("invalid --from: %w", err)
	}
	return &kind, nil
}
