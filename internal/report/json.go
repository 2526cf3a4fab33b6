package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/sitescrape/internal/model"
)

// JSONReport wraps a summary with the version of the tool that produced it.
type JSONReport struct {
	Version string            `json:"version"`
	Summary *model.RunSummary `json:"summary"`
}

// JSONWriter renders a run summary as JSON.
type JSONWriter struct {
	baseWriter

	// version is written next to the summary.
	version string

	// indent enables pretty-printed JSON output.
	indent bool
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint enables two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
		version:    version,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the summary followed by a newline.
func (w *JSONWriter) Write(summary *model.RunSummary) (int, error) {
	v := JSONReport{Version: w.version, Summary: summary}

	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
