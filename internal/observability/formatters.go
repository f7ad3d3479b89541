// Package observability provides formatted output for the CLI and trace
// exporter setup.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/jonathan/content-pipeline/internal/jobs"
	"github.com/jonathan/content-pipeline/internal/metrics"
	"github.com/jonathan/content-pipeline/internal/pipeline"
	"github.com/jonathan/content-pipeline/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer writes pipeline events and results for humans. It implements
// pipeline.Observer and is safe for concurrent use.
type Printer struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

// NewPrinter creates a new Printer that writes to the given writer. Sub-step
// progress is only printed when verbose is set.
func NewPrinter(out io.Writer, verbose bool) *Printer {
	return &Printer{out: out, verbose: verbose}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	for _, line := range lines {
		// Truncate long lines
		if len([]rune(line)) > boxWidth-4 {
			line = string([]rune(line)[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// Emit implements pipeline.Observer.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) Emit(e pipeline.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch data := e.Data.(type) {
	case pipeline.ProgressEvent:
		p.printProgress(data)
	case pipeline.RetryStart:
		fmt.Fprintf(p.out, "↻ %s\n", data.Message)
		if len(data.CompletedChunks) > 0 {
			fmt.Fprintf(p.out, "  already done: %s\n", joinKinds(data.CompletedChunks))
		}
	case pipeline.ResultEvent:
		if data.Warning != "" {
			fmt.Fprintf(p.out, "⚠ %s\n", data.Warning)
		}
		p.printArtifact(data.Artifact)
		p.printRunMetrics(data.Metrics)
	case pipeline.ErrorEvent:
		fmt.Fprintf(p.out, "✗ %s\n", data.Message)
		if data.FailedChunk != "" {
			fmt.Fprintf(p.out, "  failed chunk: %s\n", data.FailedChunk)
		}
		fmt.Fprintf(p.out, "  retry with: --from %s\n", data.RetryFromChunk)
	}
}

//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printProgress(ev pipeline.ProgressEvent) {
	var mark string
	switch ev.Status {
	case pipeline.StatusStarted:
		mark = "→"
	case pipeline.StatusCompleted:
		mark = "✓"
	case pipeline.StatusFailed:
		mark = "✗"
	case pipeline.StatusSkipped:
		mark = "–"
	default:
		if !p.verbose {
			return
		}
		fmt.Fprintf(p.out, "    · [%s] %s\n", ev.Step, ev.Message)
		return
	}
	fmt.Fprintf(p.out, "%3d%% %s %-20s %s (%.1fs)\n", ev.Progress, mark, ev.Chunk, ev.Message,
		float64(ev.ElapsedMs)/1000)
}

// PrintArtifact outputs a summary of a finished article.
func (p *Printer) PrintArtifact(a *types.FinalArtifact) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printArtifact(a)
}

func (p *Printer) printArtifact(a *types.FinalArtifact) {
	if a == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Keyword:  %s\n", a.Keyword))
	sb.WriteString(fmt.Sprintf("Slug:     %s\n", a.Article.SuggestedSlug))
	sb.WriteString(fmt.Sprintf("Words:    %d\n", a.Audit.WordCount))
	sb.WriteString(fmt.Sprintf("Audit:    %d/100\n", a.Audit.Score))
	sb.WriteString(fmt.Sprintf("Cost:     %s\n", metrics.FormatCost(a.TotalCostUsd)))
	sb.WriteString(fmt.Sprintf("Time:     %.1fs\n", float64(a.GenerationTimeMs)/1000))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Outline (%d H2s):\n", len(a.Article.Outline)))
	for i, h := range a.Article.Outline {
		if i >= maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(a.Article.Outline)-maxItemsToShow))
			break
		}
		sb.WriteString(fmt.Sprintf("  • %s\n", h))
	}
	if !a.OutlineDrift.Passed {
		sb.WriteString(fmt.Sprintf("Outline drift: %d missing, %d extra\n",
			len(a.OutlineDrift.Missing), len(a.OutlineDrift.Extra)))
	}

	var failed []string
	for _, c := range a.Audit.Checks {
		if !c.Passed {
			failed = append(failed, c.Name)
		}
	}
	if len(failed) > 0 {
		sb.WriteString(fmt.Sprintf("Failed checks: %s\n", strings.Join(failed, ", ")))
	}
	if n := len(a.FactCheck.Hallucinations); n > 0 {
		sb.WriteString(fmt.Sprintf("Unsupported claims: %d\n", n))
	}
	if n := len(a.FAQEnforcement.Violations); n > 0 {
		sb.WriteString(fmt.Sprintf("FAQ answers shortened: %d\n", n))
	}
	sb.WriteString(fmt.Sprintf("Sources: %d\n", len(a.SourceURLs)))

	p.printBox("ARTICLE", sb.String())
}

// PrintRunMetrics outputs the per-chunk timing and cost of a run.
func (p *Printer) PrintRunMetrics(m *metrics.RunMetrics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printRunMetrics(m)
}

func (p *Printer) printRunMetrics(m *metrics.RunMetrics) {
	if m == nil {
		return
	}

	var sb strings.Builder
	for _, ch := range m.Chunks {
		sb.WriteString(fmt.Sprintf("%-18s %-9s %7dms %d calls\n", ch.ChunkName, ch.Status, ch.DurationMs, len(ch.APICalls)))
	}
	sb.WriteString("\n")
	s := m.PerformanceSummary
	sb.WriteString(fmt.Sprintf("Total:    %.1fs\n", s.TotalSeconds))
	sb.WriteString(fmt.Sprintf("Fastest:  %s (%dms)\n", s.FastestChunk.Name, s.FastestChunk.DurationMs))
	sb.WriteString(fmt.Sprintf("Slowest:  %s (%dms)\n", s.SlowestChunk.Name, s.SlowestChunk.DurationMs))
	sb.WriteString(fmt.Sprintf("Cost:     %s\n", s.EstimatedCostFormatted))
	sb.WriteString(fmt.Sprintf("Cache:    %s hit rate\n", s.CacheHitRatePercent))

	p.printBox(fmt.Sprintf("RUN METRICS (%s)", m.Status), sb.String())
}

// PrintAggregate outputs statistics over recent runs.
func (p *Printer) PrintAggregate(stats metrics.AggregateStats) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Runs:          %d\n", stats.RunCount))
	if stats.RunCount == 0 {
		p.printBox("RECENT RUNS", sb.String())
		return
	}
	sb.WriteString(fmt.Sprintf("Avg duration:  %.1fs\n", float64(stats.AverageTotalDurationMs)/1000))
	sb.WriteString(fmt.Sprintf("Avg cost:      %s\n", metrics.FormatCost(stats.AverageCostUsd)))
	sb.WriteString(fmt.Sprintf("Cache hits:    %.1f%%\n", stats.CacheHitRate*100))
	if stats.AverageAuditScore > 0 {
		sb.WriteString(fmt.Sprintf("Avg audit:     %.1f\n", stats.AverageAuditScore))
	}

	chunks := make([]string, 0, len(stats.AverageDurationPerChunk))
	for name := range stats.AverageDurationPerChunk {
		chunks = append(chunks, name)
	}
	sort.Slice(chunks, func(i, j int) bool {
		return jobs.ChunkKind(chunks[i]).Index() < jobs.ChunkKind(chunks[j]).Index()
	})
	if len(chunks) > 0 {
		sb.WriteString("\nAvg per chunk:\n")
		for _, name := range chunks {
			sb.WriteString(fmt.Sprintf("  %-18s %8dms\n", name, stats.AverageDurationPerChunk[name]))
		}
	}
	if len(stats.FailurePoints) > 0 {
		failed := make([]string, 0, len(stats.FailurePoints))
		for name := range stats.FailurePoints {
			failed = append(failed, name)
		}
		sort.Strings(failed)
		sb.WriteString("\nFailures:\n")
		for _, name := range failed {
			sb.WriteString(fmt.Sprintf("  %-18s %d\n", name, stats.FailurePoints[name]))
		}
	}

	p.printBox("RECENT RUNS", sb.String())
}

// PrintJob outputs the chunk statuses of a stored job.
func (p *Printer) PrintJob(job *jobs.Job) {
	if job == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ID:       %s\n", job.ID))
	sb.WriteString(fmt.Sprintf("Phase:    %s\n", job.Phase))
	sb.WriteString(fmt.Sprintf("Version:  %s\n", job.PipelineVersion))
	if job.ErrorMessage != "" {
		sb.WriteString(fmt.Sprintf("Error:    %s\n", job.ErrorMessage))
	}
	sb.WriteString("\n")
	for _, kind := range jobs.ChunkOrder {
		rec := job.Record(kind)
		if rec == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("%-18s %-9s %7dms %s\n", kind, rec.Status, rec.DurationMs, metrics.FormatCost(rec.CostUsd)))
		if rec.Error != "" {
			sb.WriteString(fmt.Sprintf("  ↳ %s\n", rec.Error))
		}
	}
	next := "done"
	if kind, ok := jobs.FirstIncomplete(jobs.Records(job.ChunkRecords)); ok {
		next = string(kind)
	}
	sb.WriteString(fmt.Sprintf("\nNext step: %s\n", next))

	p.printBox("JOB", sb.String())
}

func joinKinds(kinds []jobs.ChunkKind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}
