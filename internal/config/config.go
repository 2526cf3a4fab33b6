package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/sitescrape/internal/crawler"
	"github.com/nao1215/sitescrape/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "sitescrape"

	// DefaultCrawlDelay is the minimum pause between two requests to the
	// same site.
	DefaultCrawlDelay = 2 * time.Second

	// DefaultConcurrency is the number of fetches in flight across all sites.
	DefaultConcurrency = 10

	// DefaultBatchSize of zero runs every target in one batch.
	DefaultBatchSize = 0

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = crawler.DefaultFetchTimeout

	// DefaultMaxConns bounds the shared connection pool.
	DefaultMaxConns = crawler.DefaultMaxConns

	// DefaultMaxBodySize limits how much of a response is read.
	DefaultMaxBodySize = crawler.DefaultMaxBodySize

	// DefaultTraversal is the frontier order.
	DefaultTraversal = "depth-first"

	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = crawler.DefaultUserAgent

	// DefaultOutputDir is where the complete/ and unique_only/ directories
	// and failed.log are created.
	DefaultOutputDir = "."
)

// Config holds all configuration options for a run.
// It is populated from the config file and CLI flags and passed down
// explicitly; there is no global configuration state.
type Config struct {
	// CrawlDelay is the minimum interval between requests to one site.
	CrawlDelay time.Duration

	// Concurrency is the number of fetches in flight across all sites.
	Concurrency int

	// BatchSize splits the targets into groups processed one after the
	// other. Zero means a single batch.
	BatchSize int

	// MaxActive caps the number of site crawls running at once within a
	// batch. Zero means no cap.
	MaxActive int

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// MaxConns bounds the shared HTTP connection pool.
	MaxConns int

	// MaxBodySize is the largest response body read, in bytes.
	MaxBodySize int64

	// MaxPages stops a site crawl after this many fetched pages. Zero means
	// no limit.
	MaxPages int

	// Traversal is the frontier order, "depth-first" or "unordered".
	Traversal string

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// TolerateNetworkErrors turns connection errors into skipped pages
	// instead of failing the whole site.
	TolerateNetworkErrors bool

	// RateLimitRequests and RateLimitWindow add a token bucket on top of
	// CrawlDelay. Zero disables it.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// SkipRecent skips targets the archive holds a successful crawl for
	// that is younger than this. Zero disables it.
	SkipRecent time.Duration

	// OutputDir receives the text artifacts and the failure log.
	OutputDir string

	// DBDir is the directory of the SQLite archive. Empty disables archiving.
	DBDir string

	// Verbose enables debug logging.
	Verbose bool

	// JSONLog switches log output to JSON.
	JSONLog bool

	// JSONReport and MarkdownReport select the summary format. Both false
	// selects the plain text summary.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile receives the summary instead of stdout when set.
	ReportFile string

	// MetricsAddr serves Prometheus metrics when set.
	MetricsAddr string

	// ConfigFilePath is the explicit config file path. When empty the file
	// is searched in the current and the home directory.
	ConfigFilePath string

	// SiteConfigs holds the loaded config file.
	SiteConfigs *File

	// ListFile is a spreadsheet of targets.
	ListFile string

	// Targets is the list of sites to crawl.
	Targets []model.CrawlTarget
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		CrawlDelay:  DefaultCrawlDelay,
		Concurrency: DefaultConcurrency,
		BatchSize:   DefaultBatchSize,
		Timeout:     DefaultTimeout,
		MaxConns:    DefaultMaxConns,
		MaxBodySize: DefaultMaxBodySize,
		Traversal:   DefaultTraversal,
		UserAgent:   DefaultUserAgent,
		OutputDir:   DefaultOutputDir,
		SiteConfigs: NewFile(),
	}
}

// ApplyFile copies the run settings of f that are set into c.
// Flags parsed afterwards override them.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	c.SiteConfigs = f

	if f.Concurrency > 0 {
		c.Concurrency = f.Concurrency
	}
	if f.BatchSize > 0 {
		c.BatchSize = f.BatchSize
	}
	if f.MaxActive > 0 {
		c.MaxActive = f.MaxActive
	}
	if f.Timeout > 0 {
		c.Timeout = f.Timeout
	}
	if f.MaxConns > 0 {
		c.MaxConns = f.MaxConns
	}
	if f.MaxBodySize > 0 {
		c.MaxBodySize = f.MaxBodySize
	}
	if f.UserAgent != "" {
		c.UserAgent = f.UserAgent
	}
	if f.OutputDir != "" {
		c.OutputDir = f.OutputDir
	}
	if f.DBDir != "" {
		c.DBDir = f.DBDir
	}
	if f.TolerateNetworkErrors {
		c.TolerateNetworkErrors = true
	}
	if f.RateLimit.Requests > 0 {
		c.RateLimitRequests = f.RateLimit.Requests
		c.RateLimitWindow = f.RateLimit.Window
	}
	if f.SkipRecent > 0 {
		c.SkipRecent = f.SkipRecent
	}
	if f.Defaults.Delay > 0 {
		c.CrawlDelay = f.Defaults.Delay
	}
	if f.Defaults.Traversal != "" {
		c.Traversal = f.Defaults.Traversal
	}
	if f.Defaults.MaxPages > 0 {
		c.MaxPages = f.Defaults.MaxPages
	}
}

// Site returns the effective settings for the site at baseURL: the global
// values overridden by the config file's defaults and per-site entries.
func (c *Config) Site(baseURL string) SiteConfig {
	site := SiteConfig{
		Delay:     c.CrawlDelay,
		Traversal: c.Traversal,
		MaxPages:  c.MaxPages,
	}
	if c.SiteConfigs == nil {
		return site
	}
	return site.merge(c.SiteConfigs.GetSiteConfig(baseURL))
}

// XDGDataDir returns the XDG data directory for sitescrape, the default
// location of the archive.
// On Linux: ~/.local/share/sitescrape
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sitescrape.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.BatchSize < 0 || c.MaxActive < 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxConns <= 0 {
		return ErrInvalidMaxConns
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.RateLimitRequests < 0 || c.RateLimitWindow < 0 {
		return ErrInvalidRateLimit
	}
	if _, err := crawler.ParseTraversal(c.Traversal); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTraversal, c.Traversal)
	}
	if c.SiteConfigs != nil {
		return c.SiteConfigs.Validate()
	}
	return nil
}
