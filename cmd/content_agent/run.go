package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/content-pipeline/internal/observability"
	"github.com/jonathan/content-pipeline/internal/pipeline"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the full content pipeline end-to-end",
	Long: `Runs every chunk of the pipeline for one content brief and prints progress as it goes:
research_serp -> research -> topic_extraction -> analysis -> draft -> postprocess.

A failed run can be resumed with "content_agent retry <job-id>" when the job store is durable.`,
	RunE: runPipelineCmd,
}

var (
	runBrief   briefFlags
	runJobID   string
	runJSON    bool
	runTrace   bool
	runVerbose bool
)

func init() {
	runBrief.register(runCommand)
	runCommand.Flags().StringVar(&runJobID, "job-id", "", "ID for the new job (defaults to a new UUID); existing jobs are resumed with retry")
	addOutputFlags(runCommand, &runJSON, &runTrace, &runVerbose)
	rootCmd.AddCommand(runCommand)
}

func addOutputFlags(cmd *cobra.Command, asJSON, trace, verbose *bool) {
	cmd.Flags().BoolVar(asJSON, "json", false, "Print the final result as JSON instead of progress")
	cmd.Flags().BoolVar(trace, "trace", false, "Write OpenTelemetry spans to stderr")
	cmd.Flags().BoolVarP(verbose, "verbose", "v", false, "Print sub-step progress")
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	brief, err := runBrief.build(cmd)
	if err != nil {
		return err
	}
	jobID := runJobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	shutdown, err := startTracing(runTrace)
	if err != nil {
		return err
	}
	defer shutdown()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	obs := progressObserver(out, runJSON, runVerbose)
	if !runJSON {
		_, _ = fmt.Fprintf(out, "Job %s (store: %s)\n", jobID, a.backend)
	}

	res, err := a.orch.Run(ctx, jobID, brief, obs)
	var exists *pipeline.JobExistsError
	if errors.As(err, &exists) {
		return fmt.Errorf("%w; resume it with \"content_agent retry %s\"", err, jobID)
	}
	if err != nil {
		return err
	}
	if runJSON {
		return writeJSON(out, res)
	}
	return nil
}

// progressObserver prints events for humans, or nothing in JSON mode.
func progressObserver(out io.Writer, asJSON, verbose bool) pipeline.Observer {
	if asJSON {
		return nil
	}
	return observability.NewPrinter(out, verbose)
}

func startTracing(enabled bool) (func(), error) {
	if !enabled {
		return func() {}, nil
	}
	shutdown, err := observability.InitStdoutTracing(os.Stderr)
	if err != nil {
		return nil, err
	}
	return func() { _ = shutdown(context.Background()) }, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
