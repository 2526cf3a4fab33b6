// Package config holds the settings of a sitescrape run: crawl pacing,
// concurrency limits, output locations and per-site overrides loaded from a
// .sitescrape YAML file.
package config
