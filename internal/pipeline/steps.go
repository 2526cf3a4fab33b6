package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nao1215/sitescrape/internal/model"
	"github.com/nao1215/sitescrape/internal/report"
)

// Archive stores crawl results across runs. *database.CrawlDB implements it.
type Archive interface {
	SaveCrawlResult(ctx context.Context, runID string, result *model.CrawlResult) (int64, error)
	LatestPageHashes(ctx context.Context, baseURL string) (map[string]string, error)
}

// ArtifactWriter writes the text artifacts of a successful crawl.
// *report.TextWriter implements it.
type ArtifactWriter interface {
	WriteResult(result *model.CrawlResult) (report.Artifacts, error)
}

// FailureRecorder records failed crawls. *report.FailureLog implements it.
type FailureRecorder interface {
	Append(result *model.CrawlResult) error
}

// ArchiveStep saves every result, failed or not, to the archive and logs how
// many pages changed since the previous successful crawl of the site.
type ArchiveStep struct {
	archive Archive
	runID   string
	logger  *slog.Logger
}

// ArchiveStepOption configures an ArchiveStep.
type ArchiveStepOption func(*ArchiveStep)

// WithArchiveLogger sets a custom logger for the archive step.
func WithArchiveLogger(logger *slog.Logger) ArchiveStepOption {
	return func(s *ArchiveStep) {
		s.logger = logger
	}
}

// NewArchiveStep creates a step saving results under runID.
func NewArchiveStep(archive Archive, runID string, opts ...ArchiveStepOption) *ArchiveStep {
	s := &ArchiveStep{
		archive: archive,
		runID:   runID,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *ArchiveStep) Name() string {
	return "archive"
}

// Do executes the archive step.
func (s *ArchiveStep) Do(ctx context.Context, result *model.CrawlResult) error {
	var previous map[string]string
	if !result.Failed {
		var err error
		previous, err = s.archive.LatestPageHashes(ctx, result.Target.BaseURL)
		if err != nil {
			// Change detection is informational; saving still proceeds.
			s.logger.Warn("failed to load previous page hashes",
				"target", result.Target.BaseURL,
				"error", err,
			)
			previous = nil
		}
	}

	id, err := s.archive.SaveCrawlResult(ctx, s.runID, result)
	if err != nil {
		return err
	}

	if previous != nil {
		added, changed, removed := DiffPages(previous, result)
		s.logger.Info("site changes since last crawl",
			"target", result.Target.BaseURL,
			"added", added,
			"changed", changed,
			"removed", removed,
		)
	}
	s.logger.Debug("crawl archived", "target", result.Target.BaseURL, "crawl_id", id)

	return nil
}

// DiffPages compares the pages of result with the URL to hash map of an
// earlier crawl and counts the added, changed and removed pages.
func DiffPages(previous map[string]string, result *model.CrawlResult) (added, changed, removed int) {
	seen := make(map[string]struct{}, len(result.Order))
	for _, page := range result.Pages() {
		seen[page.URL] = struct{}{}
		old, ok := previous[page.URL]
		switch {
		case !ok:
			added++
		case old != page.Hash:
			changed++
		}
	}
	for u := range previous {
		if _, ok := seen[u]; !ok {
			removed++
		}
	}
	return added, changed, removed
}

// WriteTextStep writes the complete and unique_only artifacts of successful
// crawls. Failed results are skipped.
type WriteTextStep struct {
	writer ArtifactWriter
	logger *slog.Logger
}

// NewWriteTextStep creates a step writing artifacts with w.
func NewWriteTextStep(w ArtifactWriter, logger *slog.Logger) *WriteTextStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &WriteTextStep{writer: w, logger: logger}
}

// Name returns the step name.
func (s *WriteTextStep) Name() string {
	return "write_text"
}

// Do executes the write step.
func (s *WriteTextStep) Do(_ context.Context, result *model.CrawlResult) error {
	if result.Failed {
		return nil
	}

	artifacts, err := s.writer.WriteResult(result)
	if err != nil {
		return err
	}

	s.logger.Info("saved site text",
		"target", result.Target.BaseURL,
		"pages", result.PageCount(),
		"complete", artifacts.Complete,
		"unique_only", artifacts.UniqueOnly,
	)
	return nil
}

// FailureLogStep appends failed crawls to the failure log.
// Successful results are skipped.
type FailureLogStep struct {
	recorder FailureRecorder
}

// NewFailureLogStep creates a step recording failures with r.
func NewFailureLogStep(r FailureRecorder) *FailureLogStep {
	return &FailureLogStep{recorder: r}
}

// Name returns the step name.
func (s *FailureLogStep) Name() string {
	return "failure_log"
}

// Do executes the failure log step.
func (s *FailureLogStep) Do(_ context.Context, result *model.CrawlResult) error {
	if !result.Failed {
		return nil
	}
	return s.recorder.Append(result)
}

// CollectStep keeps every result it sees for the run summary.
type CollectStep struct {
	mu      sync.Mutex
	results []*model.CrawlResult
}

// NewCollectStep creates an empty CollectStep.
func NewCollectStep() *CollectStep {
	return &CollectStep{}
}

// Name returns the step name.
func (s *CollectStep) Name() string {
	return "collect"
}

// Do executes the collect step.
func (s *CollectStep) Do(_ context.Context, result *model.CrawlResult) error {
	s.mu.Lock()
	s.results = append(s.results, result)
	s.mu.Unlock()
	return nil
}

// Results returns the collected results in arrival order.
func (s *CollectStep) Results() []*model.CrawlResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.CrawlResult, len(s.results))
	copy(out, s.results)
	return out
}

// InOrder returns the collected results ordered like targets. Targets
// without a result are left out.
func (s *CollectStep) InOrder(targets []model.CrawlTarget) []*model.CrawlResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTarget := make(map[model.CrawlTarget]*model.CrawlResult, len(s.results))
	for _, r := range s.results {
		byTarget[r.Target] = r
	}

	out := make([]*model.CrawlResult, 0, len(targets))
	for _, t := range targets {
		if r, ok := byTarget[t]; ok {
			out = append(out, r)
		}
	}
	return out
}
