package model

import (
	"time"
)

// CrawlState is the lifecycle state of one site crawl.
type CrawlState int

const (
	// StateIdle is the state of a crawl that has not been started.
	StateIdle CrawlState = iota

	// StateRunning is the state while the frontier is being processed.
	StateRunning

	// StateCompleted means the frontier was exhausted without a fatal error.
	StateCompleted

	// StateFailed means a fatal error stopped the crawl.
	StateFailed
)

// String returns the lowercase name of the state.
func (s CrawlState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so states serialize by name.
func (s CrawlState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CrawlResult is the terminal artifact of one site crawl.
// It is produced once by the crawler, then handed to the coordinator and the
// persistence steps, which must treat it as read-only.
type CrawlResult struct {
	// Target is the crawl job this result belongs to.
	Target CrawlTarget `json:"target"`

	// State is StateCompleted or StateFailed once the crawl has finished.
	State CrawlState `json:"state"`

	// Complete maps each page URL to all of its text.
	Complete map[string]string `json:"complete"`

	// UniqueOnly maps each page URL to the text first seen on that page.
	UniqueOnly map[string]string `json:"unique_only"`

	// Order lists page URLs in the order they were recorded.
	// Map iteration order is random, so writers use Order.
	Order []string `json:"order"`

	// Ignored lists the links classified as non-text resources.
	Ignored []string `json:"ignored,omitempty"`

	// PagesFetched counts successful fetches, including those of a failed crawl.
	PagesFetched int `json:"pages_fetched"`

	// PagesSkipped counts URLs abandoned after a recoverable error.
	PagesSkipped int `json:"pages_skipped"`

	// Failed is true when a fatal error terminated the crawl.
	Failed bool `json:"failed"`

	// Error holds the fatal error message when Failed is true.
	Error string `json:"error,omitempty"`

	// StartedAt and FinishedAt bracket the crawl.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewCrawlResult creates an empty, idle result for target.
func NewCrawlResult(target CrawlTarget) *CrawlResult {
	return &CrawlResult{
		Target:     target,
		State:      StateIdle,
		Complete:   make(map[string]string),
		UniqueOnly: make(map[string]string),
		Order:      make([]string, 0),
	}
}

// AddPage stores a page's text in both maps.
// A URL is written exactly once; a second record for the same URL is
// dropped and AddPage returns false.
func (r *CrawlResult) AddPage(page PageRecord) bool {
	if _, exists := r.Complete[page.URL]; exists {
		return false
	}
	r.Complete[page.URL] = page.FullText
	r.UniqueOnly[page.URL] = page.UniqueText
	r.Order = append(r.Order, page.URL)
	return true
}

// Pages returns the stored pages in recording order.
func (r *CrawlResult) Pages() []PageRecord {
	pages := make([]PageRecord, 0, len(r.Order))
	for _, u := range r.Order {
		full := r.Complete[u]
		pages = append(pages, PageRecord{
			URL:        u,
			FullText:   full,
			UniqueText: r.UniqueOnly[u],
			Hash:       HashText(full),
		})
	}
	return pages
}

// PageCount returns the number of pages held by the result.
func (r *CrawlResult) PageCount() int {
	return len(r.Order)
}

// Fail marks the result as failed and discards the partial page maps, so a
// failed target is never persisted as a success.
func (r *CrawlResult) Fail(err error) {
	r.State = StateFailed
	r.Failed = true
	if err != nil {
		r.Error = err.Error()
	}
	r.Complete = make(map[string]string)
	r.UniqueOnly = make(map[string]string)
	r.Order = make([]string, 0)
}

// Duration returns the time between start and finish, or zero if the crawl
// has not finished.
func (r *CrawlResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
