package crawler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/sitescrape/internal/model"
)

// Gate bounds the number of fetches in flight across every Spider of a run.
// *semaphore.Weighted from golang.org/x/sync satisfies it.
type Gate interface {
	Acquire(ctx context.Context, n int64) error
	Release(n int64)
}

// unboundedGate never blocks.
type unboundedGate struct{}

func (unboundedGate) Acquire(ctx context.Context, _ int64) error { return ctx.Err() }
func (unboundedGate) Release(int64)                              {}

// Observer receives crawl events, typically to export metrics.
// Implementations must be safe for concurrent use.
type Observer interface {
	// FetchStarted is called after the gate is acquired, before the request.
	FetchStarted(target model.CrawlTarget)

	// FetchFinished is called when a fetch returns. class is ClassNone on
	// success.
	FetchFinished(target model.CrawlTarget, class ErrorClass, elapsed time.Duration)

	// CrawlFinished is called once with the terminal result.
	CrawlFinished(result *model.CrawlResult)
}

// nopObserver discards events.
type nopObserver struct{}

func (nopObserver) FetchStarted(model.CrawlTarget)                             {}
func (nopObserver) FetchFinished(model.CrawlTarget, ErrorClass, time.Duration) {}
func (nopObserver) CrawlFinished(*model.CrawlResult)                           {}

// ProgressFunc is called after every successfully fetched page with the
// number of pages fetched so far in the crawl.
type ProgressFunc func(target model.CrawlTarget, fetched int, pageURL string)

// Spider crawls one site and harvests the text of its pages.
//
// Spider moves through Idle, Running and then Completed or Failed. All crawl
// state (frontier, visited set, ignored set, unique-string pool, page maps)
// is owned by the Spider and touched only by the goroutine calling Run, so
// concurrent Spiders share nothing but the Fetcher and the Gate.
//
// A Spider runs once. Create a new Spider to crawl a site again.
type Spider struct {
	// target is the site to crawl.
	target model.CrawlTarget

	// fetcher downloads pages; shared between Spiders.
	fetcher Fetcher

	// gate bounds fetches in flight; shared between Spiders.
	gate Gate

	// traversal selects the frontier implementation.
	traversal Traversal

	// delay is the minimum interval between two requests of this Spider.
	delay time.Duration

	// rateRequests and rateWindow configure the optional token bucket.
	rateRequests int
	rateWindow   time.Duration

	// filter restricts accepted links to those containing it.
	filter string

	// ignorePatterns and followPatterns are path globs applied to accepted
	// links before they are queued.
	ignorePatterns []string
	followPatterns []string

	// maxPages stops the crawl after this many fetched pages; 0 means no limit.
	maxPages int

	// followLinks is false for single page crawls.
	followLinks bool

	// tolerateNetwork makes network failures skip the URL instead of
	// failing the crawl.
	tolerateNetwork bool

	observer Observer
	progress ProgressFunc
	logger   *slog.Logger
	clock    Clock

	// mu protects state, which may be read from other goroutines.
	mu    sync.Mutex
	state model.CrawlState
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithTraversal sets the traversal policy.
func WithTraversal(t Traversal) SpiderOption {
	return func(s *Spider) {
		s.traversal = t
	}
}

// WithDelay sets the minimum interval between two requests of the Spider.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.delay = d
	}
}

// WithRateLimit adds a ceiling of requests per window on top of the delay.
func WithRateLimit(requests int, window time.Duration) SpiderOption {
	return func(s *Spider) {
		s.rateRequests = requests
		s.rateWindow = window
	}
}

// WithLinkFilter restricts the crawl to links containing substr.
func WithLinkFilter(substr string) SpiderOption {
	return func(s *Spider) {
		s.filter = substr
	}
}

// WithIgnorePatterns skips links whose path matches any glob
// (e.g. "/admin/*", "*.php").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns only queues links whose path matches at least one glob.
// An empty list allows every path.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithMaxPages stops the crawl after n fetched pages. 0 means no limit.
func WithMaxPages(n int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = n
	}
}

// WithFollowLinks controls whether discovered links are crawled.
// With false only the base URL is fetched.
func WithFollowLinks(follow bool) SpiderOption {
	return func(s *Spider) {
		s.followLinks = follow
	}
}

// WithTolerateNetworkErrors makes network failures skip the URL instead of
// failing the whole crawl.
func WithTolerateNetworkErrors(tolerate bool) SpiderOption {
	return func(s *Spider) {
		s.tolerateNetwork = tolerate
	}
}

// WithGate sets the shared fetch gate.
func WithGate(g Gate) SpiderOption {
	return func(s *Spider) {
		if g != nil {
			s.gate = g
		}
	}
}

// WithObserver sets the event observer.
func WithObserver(o Observer) SpiderOption {
	return func(s *Spider) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithProgress sets the per-page progress callback.
func WithProgress(fn ProgressFunc) SpiderOption {
	return func(s *Spider) {
		s.progress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces the wall clock used for pacing and timestamps.
func WithClock(c Clock) SpiderOption {
	return func(s *Spider) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewSpider creates an idle Spider for target.
func NewSpider(target model.CrawlTarget, fetcher Fetcher, opts ...SpiderOption) *Spider {
	s := &Spider{
		target:      target,
		fetcher:     fetcher,
		gate:        unboundedGate{},
		traversal:   TraversalDepthFirst,
		delay:       2 * time.Second,
		followLinks: true,
		observer:    nopObserver{},
		logger:      slog.Default(),
		clock:       SystemClock(),
		state:       model.StateIdle,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With(slog.String("target", target.String()))

	return s
}

// Target returns the crawl target.
func (s *Spider) Target() model.CrawlTarget {
	return s.target
}

// State returns the current lifecycle state.
func (s *Spider) State() model.CrawlState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState moves the Spider to next. It returns false if the Spider is not in
// the from state.
func (s *Spider) setState(from, next model.CrawlState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = next
	return true
}

// Run crawls the site until the frontier is exhausted or a fatal error
// occurs, and returns the terminal result.
//
// Run never returns an error: recoverable failures skip single URLs, and a
// fatal failure (certificate, network, unclassified, or ctx cancellation)
// yields a result with Failed set and no pages. Calling Run a second time
// returns a failed result wrapping ErrAlreadyStarted.
func (s *Spider) Run(ctx context.Context) *model.CrawlResult {
	result := model.NewCrawlResult(s.target)
	result.StartedAt = s.clock.Now()

	if !s.setState(model.StateIdle, model.StateRunning) {
		result.Fail(ErrAlreadyStarted)
		result.FinishedAt = result.StartedAt
		return result
	}
	result.State = model.StateRunning

	s.logger.Info("crawl started", slog.String("traversal", s.traversal.String()))

	normalizer := NewNormalizer(s.target.BaseURL, WithFilter(s.filter))
	err := s.crawl(ctx, result, normalizer)

	result.Ignored = normalizer.Ignored()
	result.FinishedAt = s.clock.Now()

	if err != nil {
		result.Fail(err)
		s.setState(model.StateRunning, model.StateFailed)
		s.logger.Error("crawl failed",
			slog.String("error", err.Error()),
			slog.Int("pages_fetched", result.PagesFetched),
		)
	} else {
		result.State = model.StateCompleted
		s.setState(model.StateRunning, model.StateCompleted)
		s.logger.Info("crawl completed",
			slog.Int("pages", result.PageCount()),
			slog.Int("skipped", result.PagesSkipped),
			slog.Int("ignored", len(result.Ignored)),
			slog.Duration("duration", result.Duration()),
		)
	}

	s.observer.CrawlFinished(result)
	return result
}

// crawl processes the frontier. A returned error is fatal.
func (s *Spider) crawl(ctx context.Context, result *model.CrawlResult, normalizer *Normalizer) error {
	var (
		frontier = NewFrontier(s.traversal)
		visited  = NewVisitedSet()
		pool     = NewStringPool()
		limiter  = NewRateLimiter(s.delay,
			WithLimiterClock(s.clock),
			WithTokenBucket(s.rateRequests, s.rateWindow),
		)
	)

	frontier.Push(s.target.BaseURL)

	for {
		if s.maxPages > 0 && result.PagesFetched >= s.maxPages {
			s.logger.Info("page limit reached", slog.Int("max_pages", s.maxPages))
			return nil
		}

		pageURL, ok := frontier.Pop()
		if !ok {
			return nil
		}
		if visited.IsVisited(pageURL) {
			continue
		}
		// Claim the URL before fetching so a failed page is never retried.
		visited.MarkVisited(pageURL)

		page, hrefs, err := s.visit(ctx, limiter, pool, pageURL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if !s.recoverable(err) {
				return err
			}
			result.PagesSkipped++
			s.logger.Warn("skipping page",
				slog.String("url", pageURL),
				slog.String("class", ClassOf(err).String()),
				slog.String("error", err.Error()),
			)
			continue
		}

		result.PagesFetched++
		result.AddPage(page)
		if s.progress != nil {
			s.progress(s.target, result.PagesFetched, pageURL)
		}

		if !s.followLinks {
			return nil
		}
		frontier.Push(s.discover(normalizer, visited, hrefs)...)
	}
}

// visit fetches one page and extracts its text and links.
func (s *Spider) visit(ctx context.Context, limiter *RateLimiter, pool *StringPool, pageURL string) (model.PageRecord, []string, error) {
	if err := limiter.Wait(ctx); err != nil {
		return model.PageRecord{}, nil, err
	}
	if wait := limiter.LastWait(); wait > 0 {
		s.logger.Debug("paced request", slog.Duration("wait", wait))
	}

	raw, err := s.fetch(ctx, pageURL)
	if err != nil {
		return model.PageRecord{}, nil, err
	}
	if raw.FinalURL != "" && raw.FinalURL != pageURL {
		s.logger.Debug("followed redirect",
			slog.String("url", pageURL),
			slog.String("final_url", raw.FinalURL),
		)
	}
	if raw.Truncated {
		s.logger.Warn("response body truncated",
			slog.String("url", pageURL),
			slog.Int("bytes", len(raw.Body)),
		)
	}

	doc, err := ParseDocument(raw)
	if err != nil {
		return model.PageRecord{}, nil, err
	}

	fragments := doc.Text()
	page := model.NewPageRecord(pageURL, fragments, pool.Novel(fragments))

	s.logger.Debug("fetched page",
		slog.String("url", pageURL),
		slog.String("title", doc.Title()),
		slog.Int("fragments", page.Fragments),
	)

	return page, doc.Hrefs(), nil
}

// fetch downloads pageURL while holding one slot of the gate.
func (s *Spider) fetch(ctx context.Context, pageURL string) (*RawDocument, error) {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.gate.Release(1)

	s.observer.FetchStarted(s.target)
	start := s.clock.Now()
	raw, err := s.fetcher.Fetch(ctx, pageURL)
	s.observer.FetchFinished(s.target, ClassOf(err), s.clock.Now().Sub(start))

	return raw, err
}

// recoverable reports whether err only costs the current URL.
func (s *Spider) recoverable(err error) bool {
	class := ClassOf(err)
	if class.Recoverable() {
		return true
	}
	return s.tolerateNetwork && class == ClassNetwork
}

// discover normalizes the hrefs of a page and returns the links to queue,
// without duplicates, in document order.
func (s *Spider) discover(normalizer *Normalizer, visited *VisitedSet, hrefs []string) []string {
	next := make([]string, 0, len(hrefs))
	queued := make(map[string]struct{}, len(hrefs))

	for _, href := range hrefs {
		link := normalizer.Normalize(href)
		switch link.Kind {
		case LinkRejected:
			continue
		case LinkIgnored:
			s.logger.Debug("ignoring download link", slog.String("url", link.URL))
			continue
		}

		if visited.IsVisited(link.URL) {
			continue
		}
		if _, ok := queued[link.URL]; ok {
			continue
		}
		if !shouldCrawl(link.URL, s.ignorePatterns, s.followPatterns) {
			continue
		}

		queued[link.URL] = struct{}{}
		next = append(next, link.URL)
	}

	return next
}
