package sitelist

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/nao1215/sitescrape/internal/config"
	"github.com/nao1215/sitescrape/internal/model"
	"github.com/xuri/excelize/v2"
)

// Default header names of the company list spreadsheet.
const (
	DefaultIDColumn    = "Nr"
	DefaultLabelColumn = "Företagsnamn"
	DefaultURLColumn   = "Hemsida"
)

var (
	// ErrMissingColumn is returned when the header row lacks a required column.
	ErrMissingColumn = errors.New("spreadsheet column not found")

	// ErrEmptySheet is returned when the sheet has no header row.
	ErrEmptySheet = errors.New("spreadsheet has no header row")

	// ErrInvalidTarget is returned for a configured target without a valid URL.
	ErrInvalidTarget = errors.New("invalid target")
)

// Options configure spreadsheet ingestion.
type Options struct {
	// Sheet is the sheet name. Empty selects the first sheet.
	Sheet string

	IDColumn    string
	LabelColumn string
	URLColumn   string

	// Blocklist holds organization names to drop, compared case-insensitively.
	Blocklist []string
}

// DefaultOptions returns the options for the company list layout.
func DefaultOptions() Options {
	return Options{
		IDColumn:    DefaultIDColumn,
		LabelColumn: DefaultLabelColumn,
		URLColumn:   DefaultURLColumn,
	}
}

// OptionsFromConfig builds Options from the list section of the config file,
// using the defaults for unset column names.
func OptionsFromConfig(l config.ListConfig) Options {
	opts := DefaultOptions()
	opts.Sheet = l.Sheet
	if l.IDColumn != "" {
		opts.IDColumn = l.IDColumn
	}
	if l.LabelColumn != "" {
		opts.LabelColumn = l.LabelColumn
	}
	if l.URLColumn != "" {
		opts.URLColumn = l.URLColumn
	}
	opts.Blocklist = l.Blocklist
	return opts
}

// ReadFile reads targets from the spreadsheet at path.
func ReadFile(path string, opts Options) ([]model.CrawlTarget, error) {
	f, err := os.Open(path) //nolint:gosec // user supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to open site list: %w", err)
	}
	defer f.Close()

	return ReadSpreadsheet(f, opts)
}

// ReadSpreadsheet reads targets from an .xlsx document.
// The first row is the header; the ID, label and URL columns are located by
// name. Rows whose URL is not an absolute http(s) URL, and rows whose label
// is blocklisted, are skipped.
func ReadSpreadsheet(r io.Reader, opts Options) ([]model.CrawlTarget, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read spreadsheet: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}

	cols, err := locateColumns(rows[0], opts)
	if err != nil {
		return nil, err
	}

	blocked := make(map[string]struct{}, len(opts.Blocklist))
	for _, name := range opts.Blocklist {
		blocked[normalizeName(name)] = struct{}{}
	}

	targets := make([]model.CrawlTarget, 0, len(rows)-1)
	for _, row := range rows[1:] {
		homepage := strings.TrimSpace(cell(row, cols.url))
		if !IsCrawlableURL(homepage) {
			continue
		}
		label := cell(row, cols.label)
		if _, ok := blocked[normalizeName(label)]; ok {
			continue
		}
		targets = append(targets, model.NewCrawlTarget(homepage, cell(row, cols.id), label))
	}

	return targets, nil
}

type columns struct {
	id, label, url int
}

func locateColumns(header []string, opts Options) (columns, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	find := func(name string) (int, error) {
		i, ok := index[name]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
		return i, nil
	}

	var (
		c   columns
		err error
	)
	if c.id, err = find(opts.IDColumn); err != nil {
		return c, err
	}
	if c.label, err = find(opts.LabelColumn); err != nil {
		return c, err
	}
	if c.url, err = find(opts.URLColumn); err != nil {
		return c, err
	}
	return c, nil
}

// cell returns row[i], or "" for a short row.
func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsCrawlableURL reports whether s is an absolute http(s) URL with a host.
func IsCrawlableURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// FromConfig returns the targets listed in the config file.
// A target without an ID gets its 1-based position in the list.
func FromConfig(f *config.File) ([]model.CrawlTarget, error) {
	if f == nil {
		return nil, nil
	}

	targets := make([]model.CrawlTarget, 0, len(f.Targets))
	for i, t := range f.Targets {
		id := t.ID
		if strings.TrimSpace(id) == "" {
			id = fmt.Sprint(i + 1)
		}
		target := model.NewCrawlTarget(t.BaseURL, id, t.Label)
		if err := target.Validate(); err != nil {
			return nil, fmt.Errorf("%w: targets[%d]: %w", ErrInvalidTarget, i, err)
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// FromURLs creates one target per URL, numbered from 1.
func FromURLs(urls []string) ([]model.CrawlTarget, error) {
	targets := make([]model.CrawlTarget, 0, len(urls))
	for i, u := range urls {
		target := model.NewCrawlTarget(u, fmt.Sprint(i+1), "")
		if err := target.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidTarget, u, err)
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// Dedupe drops targets whose base URL was already seen, keeping the first.
func Dedupe(targets []model.CrawlTarget) []model.CrawlTarget {
	seen := make(map[string]struct{}, len(targets))
	out := make([]model.CrawlTarget, 0, len(targets))
	for _, t := range targets {
		key := strings.ToLower(t.BaseURL)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
