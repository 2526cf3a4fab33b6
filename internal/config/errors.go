package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTarget is returned when neither arguments, a list file nor the
	// config file provide a target.
	ErrNoTarget = errors.New("no target specified: provide a URL, use --list or add targets to the config file")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidConcurrency is returned when the fetch concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is negative.
	// Zero runs all targets in a single batch.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be non-negative")

	// ErrInvalidMaxConns is returned when the connection pool size is not positive.
	ErrInvalidMaxConns = errors.New("invalid max connections: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidCrawlDelay is returned when the crawl delay is negative.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidMaxPages is returned when the page limit is negative.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidRateLimit is returned when the token bucket settings are negative.
	ErrInvalidRateLimit = errors.New("invalid rate limit: requests and window must be non-negative")

	// ErrInvalidTraversal is returned for an unknown traversal name.
	ErrInvalidTraversal = errors.New("invalid traversal")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")
)
