package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/sitescrape/internal/model"
)

// FailureLogName is the file name of the failure log inside the output dir.
const FailureLogName = "failed.log"

// FailureEntry is one line of the failure log.
type FailureEntry struct {
	Time   time.Time
	Target model.CrawlTarget
	Error  string
}

// FailureLog appends failed targets to a tab separated log file.
// It is safe for concurrent use.
type FailureLog struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewFailureLog creates a FailureLog writing to path.
// The file is created on the first Append.
func NewFailureLog(path string, opts ...FailureLogOption) *FailureLog {
	l := &FailureLog{
		path: path,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FailureLogOption configures a FailureLog.
type FailureLogOption func(*FailureLog)

// WithFailureClock sets the clock used for entry timestamps.
func WithFailureClock(now func() time.Time) FailureLogOption {
	return func(l *FailureLog) {
		if now != nil {
			l.now = now
		}
	}
}

// Path returns the log file path.
func (l *FailureLog) Path() string {
	return l.path
}

// Append writes one line for result.
func (l *FailureLog) Append(result *model.CrawlResult) error {
	line := strings.Join([]string{
		l.now().UTC().Format(time.RFC3339),
		oneLine(result.Target.ID),
		oneLine(result.Target.Label),
		oneLine(result.Target.BaseURL),
		oneLine(result.Error),
	}, "\t") + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", l.path, err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // path comes from configuration
	if err != nil {
		return fmt.Errorf("failed to open failure log: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append to failure log: %w", err)
	}
	return f.Close()
}

// ReadFailures reads every entry of the log at path.
// A missing file yields no entries.
func ReadFailures(path string) ([]FailureEntry, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open failure log: %w", err)
	}
	defer f.Close()

	return ParseFailures(f)
}

// ParseFailures reads failure log lines from r. Blank lines are skipped.
func ParseFailures(r io.Reader) ([]FailureEntry, error) {
	var entries []FailureEntry

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 5)
		if len(fields) != 5 {
			return entries, fmt.Errorf("%w: line %d", ErrMalformedFailureLine, lineNo)
		}
		ts, err := time.Parse(time.RFC3339, fields[0])
		if err != nil {
			return entries, fmt.Errorf("%w: line %d: %v", ErrMalformedFailureLine, lineNo, err)
		}
		entries = append(entries, FailureEntry{
			Time: ts,
			Target: model.CrawlTarget{
				ID:      fields[1],
				Label:   fields[2],
				BaseURL: fields[3],
			},
			Error: fields[4],
		})
	}
	if err := sc.Err(); err != nil {
		return entries, fmt.Errorf("failed to read failure log: %w", err)
	}
	return entries, nil
}

// oneLine replaces the field and line separators so a value stays in its column.
func oneLine(s string) string {
	return strings.NewReplacer("\t", " ", "\r", " ", "\n", " ").Replace(s)
}
