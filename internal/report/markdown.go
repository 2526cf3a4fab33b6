package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/sitescrape/internal/model"
)

// MarkdownWriter renders a run summary as GitHub flavored Markdown,
// using nao1215/markdown for tables, alerts and a mermaid pie chart.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the summary in Markdown format.
func (w *MarkdownWriter) Write(summary *model.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeTargets(md, summary)
	w.writeFailures(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *model.RunSummary) {
	md.H1("Crawl Run Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run", "`" + s.RunID + "`"},
			{"Started", s.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", s.Duration().Round(time.Second).String()},
			{"Targets", strconv.Itoa(len(s.Targets))},
			{"Completed", strconv.Itoa(s.Completed)},
			{"Failed", strconv.Itoa(s.Failed)},
			{"Pages", strconv.Itoa(s.TotalPages)},
			{"Skipped pages", strconv.Itoa(s.TotalSkipped)},
			{"Ignored links", strconv.Itoa(s.TotalIgnored)},
		},
	})
	md.PlainText("")

	if len(s.Targets) > 0 {
		w.writePieChart(md, s)
	}

	if s.HasFailures() {
		md.Warningf("%d of %d target(s) failed and were not saved.", s.Failed, len(s.Targets))
	} else {
		md.Tip("Every target was crawled successfully.")
	}
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of completed and failed targets.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *model.RunSummary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Target Outcome"),
		piechart.WithShowData(true),
	)
	if s.Completed > 0 {
		chart.LabelAndIntValue("Completed", uint64(s.Completed))
	}
	if s.Failed > 0 {
		chart.LabelAndIntValue("Failed", uint64(s.Failed))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeTargets(md *markdown.Markdown, s *model.RunSummary) {
	md.H2("Targets")
	md.PlainText("")

	if len(s.Targets) == 0 {
		md.PlainText("No targets were crawled.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(s.Targets))
	for i, t := range s.Targets {
		status := "✅ " + t.State.String()
		if t.Failed() {
			status = "❌ " + t.State.String()
		}
		rows[i] = []string{
			t.Target.ID,
			t.Target.Label,
			t.Target.BaseURL,
			status,
			strconv.Itoa(t.Pages),
			strconv.Itoa(t.Skipped),
			t.Duration.Round(time.Second).String(),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"ID", "Label", "Base URL", "Status", "Pages", "Skipped", "Duration"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, s *model.RunSummary) {
	failures := s.Failures()
	if len(failures) == 0 {
		return
	}

	md.H2("Failures")
	md.PlainText("")
	for _, t := range failures {
		md.Details(t.Target.String(), truncateString(t.Error, 500))
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by sitescrape*")
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
