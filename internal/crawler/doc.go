// Package crawler provides the engine that crawls one website and harvests
// the visible text of every page.
//
// # Architecture
//
// The crawler package is designed around the Spider type, which owns the crawl
// of a single base URL. Everything a Spider mutates (frontier, visited set,
// ignored links, unique-string pool, page maps) is private to it, so many
// Spiders can run concurrently without sharing state. The only shared pieces
// are the Fetcher (and its connection pool) and an optional Gate that bounds
// the number of fetches in flight across all Spiders.
//
// # Components
//
//   - Spider: Runs the crawl state machine (idle, running, completed, failed)
//   - Normalizer: Canonicalizes links and classifies them as accepted,
//     rejected (out of scope) or ignored (non-text resources)
//   - VisitedSet: Slash-insensitive membership of fetched URLs
//   - Frontier: Pending URLs, either depth-first (stack) or unordered (set)
//   - RateLimiter: Minimum interval between two requests of one Spider
//   - Fetcher: Downloads a page; HTTPFetcher is the net/http implementation
//   - Document: Parsed HTML exposing href targets and visible text
//
// # Errors
//
// Fetch and parse failures are reported as *FetchError values carrying an
// ErrorClass. HTTP status, decode and parse errors only cost the current URL.
// Certificate failures, network failures and unclassified errors are fatal:
// the Spider stops and returns a failed CrawlResult instead of propagating
// the error.
//
// # Usage
//
//	fetcher := crawler.NewHTTPFetcher(crawler.WithUserAgent(ua))
//	spider := crawler.NewSpider(target, fetcher, crawler.WithDelay(2*time.Second))
//	result := spider.Run(ctx)
package crawler
