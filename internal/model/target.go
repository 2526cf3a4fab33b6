package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Target validation errors.
var (
	// ErrEmptyBaseURL is returned when a target has no base URL.
	ErrEmptyBaseURL = errors.New("target base URL is empty")

	// ErrInvalidBaseURL is returned when the base URL is not an absolute http(s) URL.
	ErrInvalidBaseURL = errors.New("target base URL must be an absolute http(s) URL")
)

// CrawlTarget identifies one independent crawl job.
// A target is immutable once created; pass it by value.
type CrawlTarget struct {
	// BaseURL is the site root the crawl starts from and stays within.
	// It is stored without a trailing slash so that site-relative links
	// ("/about") can be appended directly.
	BaseURL string `json:"base_url" yaml:"url"`

	// ID is the caller's identifier for the target (e.g. a row number).
	ID string `json:"id" yaml:"id"`

	// Label is a human-readable name (e.g. the organization name).
	Label string `json:"label" yaml:"label"`
}

// NewCrawlTarget creates a CrawlTarget after trimming whitespace and
// removing a single trailing slash from baseURL.
func NewCrawlTarget(baseURL, id, label string) CrawlTarget {
	baseURL = strings.TrimSpace(baseURL)
	if strings.HasSuffix(baseURL, "/") && !strings.HasSuffix(baseURL, "://") {
		baseURL = strings.TrimSuffix(baseURL, "/")
	}
	return CrawlTarget{
		BaseURL: baseURL,
		ID:      strings.TrimSpace(id),
		Label:   strings.TrimSpace(label),
	}
}

// Validate checks that the base URL is a well-formed absolute HTTP(S) URL.
func (t CrawlTarget) Validate() error {
	if t.BaseURL == "" {
		return ErrEmptyBaseURL
	}
	u, err := url.Parse(t.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBaseURL
	}
	return nil
}

// Host returns the host part of the base URL, or the raw base URL if it
// cannot be parsed.
func (t CrawlTarget) Host() string {
	u, err := url.Parse(t.BaseURL)
	if err != nil || u.Host == "" {
		return t.BaseURL
	}
	return u.Host
}

// FileName returns the artifact file name for this target: the identifier
// immediately followed by the label, with path separators replaced.
func (t CrawlTarget) FileName() string {
	name := t.ID + t.Label
	if name == "" {
		name = t.Host()
	}
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(name)
}

// String returns a short description used in log and progress output.
func (t CrawlTarget) String() string {
	if t.Label == "" {
		return t.BaseURL
	}
	return t.Label + " (" + t.BaseURL + ")"
}
