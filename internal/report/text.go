package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nao1215/sitescrape/internal/model"
)

const (
	// CompleteDir holds the full text of every page of a site.
	CompleteDir = "complete"

	// UniqueOnlyDir holds only the text first seen on each page.
	UniqueOnlyDir = "unique_only"

	// TimestampLayout is the layout of the CREATED AT header line.
	TimestampLayout = "2006-01-02 15:04:05.000000"
)

// Artifacts are the paths written for one successful crawl.
type Artifacts struct {
	Complete   string
	UniqueOnly string
}

// TextWriter stores the text harvested from one site as two plain text files,
// one under CompleteDir and one under UniqueOnlyDir.
type TextWriter struct {
	dir string
	now func() time.Time
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithNow sets the clock used for the CREATED AT header.
func WithNow(now func() time.Time) TextWriterOption {
	return func(w *TextWriter) {
		if now != nil {
			w.now = now
		}
	}
}

// NewTextWriter creates a TextWriter rooted at dir.
func NewTextWriter(dir string, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{
		dir: dir,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dir returns the output root.
func (w *TextWriter) Dir() string {
	return w.dir
}

// WriteResult writes both artifacts for result.
// Failed results are rejected with ErrFailedResult so partial text never
// lands in the success directories.
func (w *TextWriter) WriteResult(result *model.CrawlResult) (Artifacts, error) {
	if result.Failed {
		return Artifacts{}, fmt.Errorf("%w: %s", ErrFailedResult, result.Target)
	}

	created := w.now()
	name := result.Target.FileName()
	out := Artifacts{
		Complete:   filepath.Join(w.dir, CompleteDir, name),
		UniqueOnly: filepath.Join(w.dir, UniqueOnlyDir, name),
	}

	if err := writeFileAtomic(out.Complete, func(f io.Writer) error {
		return RenderText(f, created, result.Target.BaseURL, result.Order, result.Complete)
	}); err != nil {
		return Artifacts{}, err
	}
	if err := writeFileAtomic(out.UniqueOnly, func(f io.Writer) error {
		return RenderText(f, created, result.Target.BaseURL, result.Order, result.UniqueOnly)
	}); err != nil {
		return Artifacts{}, err
	}

	return out, nil
}

// RenderText writes the artifact format: a two line header followed by one
// SOURCE block per URL in order.
func RenderText(w io.Writer, created time.Time, base string, order []string, texts map[string]string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "CREATED AT: %s\nBASE DOMAIN: %s", created.Format(TimestampLayout), base)
	for _, u := range order {
		fmt.Fprintf(bw, "\n\n\nSOURCE: %s\n%s", u, texts[u])
	}
	return bw.Flush()
}

// writeFileAtomic writes to a temporary file in the target directory and
// renames it into place.
func writeFileAtomic(path string, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil { //nolint:gosec // artifacts are meant to be shared
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return nil
}
