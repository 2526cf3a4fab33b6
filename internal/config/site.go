package config

import (
	"fmt"
	"maps"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/sitescrape/internal/crawler"
	"github.com/nao1215/sitescrape/internal/model"
)

// SiteConfig holds crawl settings for one site.
// Zero values mean "not set" and leave the inherited value in place.
type SiteConfig struct {
	// Filter is a substring; links containing it are never followed.
	Filter string `yaml:"filter,omitempty"`

	// Delay overrides the minimum interval between requests.
	Delay time.Duration `yaml:"delay,omitempty"`

	// Traversal overrides the frontier order.
	Traversal string `yaml:"traversal,omitempty"`

	// MaxPages overrides the page limit.
	MaxPages int `yaml:"maxPages,omitempty"`

	// FollowLinks set to false fetches only the base page.
	FollowLinks *bool `yaml:"followLinks,omitempty"`

	// Cookie is sent with every request to the site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// IgnorePatterns are URL path globs that are never crawled.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns, when set, restrict crawling to matching paths.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// merge returns s overridden by the set fields of o.
func (s SiteConfig) merge(o SiteConfig) SiteConfig {
	if o.Filter != "" {
		s.Filter = o.Filter
	}
	if o.Delay != 0 {
		s.Delay = o.Delay
	}
	if o.Traversal != "" {
		s.Traversal = o.Traversal
	}
	if o.MaxPages != 0 {
		s.MaxPages = o.MaxPages
	}
	if o.FollowLinks != nil {
		follow := *o.FollowLinks
		s.FollowLinks = &follow
	}
	if o.Cookie != "" {
		s.Cookie = o.Cookie
	}
	if len(o.Headers) > 0 {
		headers := make(map[string]string, len(s.Headers)+len(o.Headers))
		maps.Copy(headers, s.Headers)
		maps.Copy(headers, o.Headers)
		s.Headers = headers
	}
	if len(o.IgnorePatterns) > 0 {
		s.IgnorePatterns = o.IgnorePatterns
	}
	if len(o.FollowPatterns) > 0 {
		s.FollowPatterns = o.FollowPatterns
	}
	return s
}

// ShouldFollowLinks reports whether links beyond the base page are crawled.
func (s SiteConfig) ShouldFollowLinks() bool {
	return s.FollowLinks == nil || *s.FollowLinks
}

// RequestHeaders returns the extra headers for requests to the site,
// including the Cookie header.
func (s SiteConfig) RequestHeaders() map[string]string {
	if len(s.Headers) == 0 && s.Cookie == "" {
		return nil
	}
	headers := make(map[string]string, len(s.Headers)+1)
	maps.Copy(headers, s.Headers)
	if s.Cookie != "" {
		headers["Cookie"] = s.Cookie
	}
	return headers
}

// SpiderOptions converts the site settings into crawler options.
func (s SiteConfig) SpiderOptions() ([]crawler.SpiderOption, error) {
	traversal, err := crawler.ParseTraversal(s.Traversal)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTraversal, err)
	}

	opts := []crawler.SpiderOption{
		crawler.WithTraversal(traversal),
		crawler.WithDelay(s.Delay),
		crawler.WithFollowLinks(s.ShouldFollowLinks()),
	}
	if s.Filter != "" {
		opts = append(opts, crawler.WithLinkFilter(s.Filter))
	}
	if s.MaxPages > 0 {
		opts = append(opts, crawler.WithMaxPages(s.MaxPages))
	}
	if len(s.IgnorePatterns) > 0 {
		opts = append(opts, crawler.WithIgnorePatterns(s.IgnorePatterns))
	}
	if len(s.FollowPatterns) > 0 {
		opts = append(opts, crawler.WithFollowPatterns(s.FollowPatterns))
	}
	return opts, nil
}

// RateLimit configures the optional token bucket.
type RateLimit struct {
	Requests int           `yaml:"requests,omitempty"`
	Window   time.Duration `yaml:"window,omitempty"`
}

// ListConfig describes a spreadsheet of targets.
type ListConfig struct {
	// Path is the .xlsx file.
	Path string `yaml:"path,omitempty"`

	// Sheet selects a sheet by name. Empty selects the first sheet.
	Sheet string `yaml:"sheet,omitempty"`

	// IDColumn, LabelColumn and URLColumn name the header cells.
	IDColumn    string `yaml:"idColumn,omitempty"`
	LabelColumn string `yaml:"labelColumn,omitempty"`
	URLColumn   string `yaml:"urlColumn,omitempty"`

	// Blocklist drops rows whose label matches one of these names.
	Blocklist []string `yaml:"blocklist,omitempty"`
}

// File represents the structure of the .sitescrape configuration file.
type File struct {
	Concurrency           int           `yaml:"concurrency,omitempty"`
	BatchSize             int           `yaml:"batchSize,omitempty"`
	MaxActive             int           `yaml:"maxActive,omitempty"`
	Timeout               time.Duration `yaml:"timeout,omitempty"`
	MaxConns              int           `yaml:"maxConns,omitempty"`
	MaxBodySize           int64         `yaml:"maxBodySize,omitempty"`
	UserAgent             string        `yaml:"userAgent,omitempty"`
	OutputDir             string        `yaml:"outputDir,omitempty"`
	DBDir                 string        `yaml:"dbDir,omitempty"`
	TolerateNetworkErrors bool          `yaml:"tolerateNetworkErrors,omitempty"`
	RateLimit             RateLimit     `yaml:"rateLimit,omitempty"`
	SkipRecent            time.Duration `yaml:"skipRecent,omitempty"`

	// Defaults applies to every site unless a site entry overrides it.
	Defaults SiteConfig `yaml:"defaults,omitempty"`

	// Sites maps a host name to its overrides.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Targets lists sites to crawl.
	Targets []model.CrawlTarget `yaml:"targets,omitempty"`

	// List points at a spreadsheet of further targets.
	List ListConfig `yaml:"list,omitempty"`
}

// NewFile returns an empty File.
func NewFile() *File {
	return &File{Sites: make(map[string]SiteConfig)}
}

// GetSiteConfig returns the configuration for the site at baseURL: the
// defaults merged with the entry for its host. A "www." prefix is ignored
// when looking up the host.
func (cf *File) GetSiteConfig(baseURL string) SiteConfig {
	result := SiteConfig{}.merge(cf.Defaults)

	host := siteKey(baseURL)
	for key, site := range cf.Sites {
		if siteKey(key) == host {
			return result.merge(site)
		}
	}
	return result
}

// Validate checks the traversal names used in the file.
func (cf *File) Validate() error {
	check := func(name string, s SiteConfig) error {
		if s.Traversal == "" {
			return nil
		}
		if _, err := crawler.ParseTraversal(s.Traversal); err != nil {
			return fmt.Errorf("%w: %q in %s", ErrInvalidTraversal, s.Traversal, name)
		}
		return nil
	}

	if err := check("defaults", cf.Defaults); err != nil {
		return err
	}
	for host, s := range cf.Sites {
		if err := check("sites."+host, s); err != nil {
			return err
		}
	}
	return nil
}

// siteKey reduces a URL or host to a lower case host without "www.".
func siteKey(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			s = u.Host
		}
	}
	s = strings.TrimSuffix(s, "/")
	return strings.TrimPrefix(s, "www.")
}
