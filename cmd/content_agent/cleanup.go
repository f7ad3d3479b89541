package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete jobs that have not been updated recently",
	RunE:  runCleanup,
}

var cleanupMaxAge time.Duration

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupMaxAge, "max-age", 0, "Delete jobs older than this (defaults to the configured retention)")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	maxAge := cleanupMaxAge
	if maxAge <= 0 {
		maxAge = a.cfg.Retention()
	}
	if maxAge <= 0 {
		return fmt.Errorf("--max-age is required when no retention is configured")
	}

	n, err := a.store.Cleanup(ctx, maxAge)
	if err != nil {
		return fmt.Errorf("failed to clean up jobs: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s) older than %s from %s store\n", n, maxAge, a.backend)
	return nil
}
