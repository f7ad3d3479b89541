// Package main provides the content_agent CLI: it serves the pipeline API and
// runs, resumes and inspects pipeline jobs from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "content_agent",
	Short: "SEO content generation pipeline",
	Long: `content_agent researches a keyword, analyzes competing pages and drafts an article
in six resumable chunks: research_serp -> research -> topic_extraction -> analysis -> draft -> postprocess.

Configuration is read from --config (JSON or YAML) and the environment; flags override both.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON or YAML config file")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
