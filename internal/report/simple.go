package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/sitescrape/internal/model"
)

// SimpleWriter renders a plain text summary for the terminal.
type SimpleWriter struct {
	baseWriter

	// verbose lists every target, not only the failures.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose lists every target in the output.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the summary.
func (w *SimpleWriter) Write(summary *model.RunSummary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	if w.verbose {
		w.writeTargets(&sb, summary)
	}
	w.writeFailures(&sb, summary)
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, s *model.RunSummary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                      SITESCRAPE RUN SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Run:       %s\n", s.RunID)
	fmt.Fprintf(sb, "Started:   %s\n", s.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:  %s\n", s.Duration().Round(time.Second))
	fmt.Fprintf(sb, "Targets:   %d (%d completed, %d failed)\n", len(s.Targets), s.Completed, s.Failed)
	fmt.Fprintf(sb, "Pages:     %d (%d skipped, %d ignored links)\n", s.TotalPages, s.TotalSkipped, s.TotalIgnored)
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeTargets(sb *strings.Builder, s *model.RunSummary) {
	writeSection(sb, "TARGETS")

	for _, t := range s.Targets {
		status := "ok"
		if t.Failed() {
			status = "FAIL"
		}
		fmt.Fprintf(sb, "  [%-4s] %-40s %5d pages  %s\n",
			status, t.Target.String(), t.Pages, t.Duration.Round(time.Second))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFailures(sb *strings.Builder, s *model.RunSummary) {
	writeSection(sb, "FAILURES")

	failures := s.Failures()
	if len(failures) == 0 {
		sb.WriteString("  No failed targets\n\n")
		return
	}
	for _, t := range failures {
		fmt.Fprintf(sb, "  * %s\n", t.Target.String())
		fmt.Fprintf(sb, "    %s\n", t.Error)
	}
	sb.WriteString("\n")
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}
