package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/content-pipeline/internal/types"
)

// briefFlags are the content brief fields settable on the command line.
type briefFlags struct {
	file            string
	keyword         string
	secondary       []string
	peopleAlsoAsk   []string
	intent          string
	tone            string
	wordCount       string
	wordCountCustom int
	urls            []string
}

func (f *briefFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "brief", "", "Path to a JSON or YAML content brief (flags override its values)")
	cmd.Flags().StringVarP(&f.keyword, "keyword", "k", "", "Primary keyword")
	cmd.Flags().StringSliceVar(&f.secondary, "secondary", nil, "Secondary keywords (at most 2)")
	cmd.Flags().StringSliceVar(&f.peopleAlsoAsk, "paa", nil, "People-also-search-for questions (at most 5)")
	cmd.Flags().StringVar(&f.intent, "intent", "", "Search intent: informational, commercial, transactional or navigational")
	cmd.Flags().StringVar(&f.tone, "tone", "", "Tone of voice")
	cmd.Flags().StringVar(&f.wordCount, "word-count", "", "Word count preset: auto, concise, standard, in_depth or custom")
	cmd.Flags().IntVar(&f.wordCountCustom, "word-count-custom", 0, "Target word count when --word-count=custom")
	cmd.Flags().StringSliceVar(&f.urls, "url", nil, "Competitor URLs to analyze instead of the top results (at most 3)")
}

// build merges the brief file and flags, then normalizes and validates.
func (f *briefFlags) build(cmd *cobra.Command) (types.ContentBrief, error) {
	var brief types.ContentBrief
	if f.file != "" {
		loaded, err := loadBrief(f.file)
		if err != nil {
			return brief, err
		}
		brief = *loaded
	}

	flags := cmd.Flags()
	if flags.Changed("keyword") {
		brief.PrimaryKeyword = f.keyword
	}
	if flags.Changed("secondary") {
		brief.SecondaryKeywords = f.secondary
	}
	if flags.Changed("paa") {
		brief.PeopleAlsoSearchFor = f.peopleAlsoAsk
	}
	if flags.Changed("intent") {
		brief.Intent = f.intent
	}
	if flags.Changed("tone") {
		brief.Tone = f.tone
	}
	if flags.Changed("word-count") {
		brief.WordCountPreset = f.wordCount
	}
	if flags.Changed("word-count-custom") {
		brief.WordCountCustom = f.wordCountCustom
	}
	if flags.Changed("url") {
		brief.SelectedURLs = f.urls
	}

	if brief.PrimaryKeyword == "" {
		return brief, fmt.Errorf("a primary keyword is required (--keyword or --brief)")
	}
	if err := brief.Validate(); err != nil {
		return brief, err
	}
	return brief, nil
}

// loadBrief reads a brief file. YAML files use the same camelCase keys as
// the JSON form.
func loadBrief(path string) (*types.ContentBrief, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read brief: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		var doc map[string]any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse brief YAML: %w", err)
		}
		if raw, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("failed to convert brief YAML: %w", err)
		}
	}

	var brief types.ContentBrief
	if err := json.Unmarshal(raw, &brief); err != nil {
		return nil, fmt.Errorf("failed to parse brief JSON: %w", err)
	}
	return &brief, nil
}
