package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/sitescrape/internal/crawler"
	"github.com/nao1215/sitescrape/internal/model"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the default number of fetches in flight.
const DefaultConcurrency = 10

// Crawler runs the crawl of one target. *crawler.Spider implements it.
type Crawler interface {
	Run(ctx context.Context) *model.CrawlResult
}

// Factory builds the Crawler for target. The returned Crawler must acquire
// gate around every fetch.
type Factory func(target model.CrawlTarget, gate crawler.Gate) Crawler

// SpiderFactory returns a Factory creating Spiders that share fetcher.
// optsFor, when not nil, supplies per-target options such as site overrides.
func SpiderFactory(fetcher crawler.Fetcher, optsFor func(model.CrawlTarget) []crawler.SpiderOption) Factory {
	return func(target model.CrawlTarget, gate crawler.Gate) Crawler {
		var opts []crawler.SpiderOption
		if optsFor != nil {
			opts = optsFor(target)
		}
		opts = append(opts, crawler.WithGate(gate))
		return crawler.NewSpider(target, fetcher, opts...)
	}
}

// Listener receives coordinator events. Implementations must be safe for
// concurrent use.
type Listener interface {
	// BatchStarted is called before batch number batch (zero based) with
	// size targets starts.
	BatchStarted(batch, size int)

	// CrawlStarted is called when the crawl of target starts.
	CrawlStarted(target model.CrawlTarget)
}

// Coordinator runs the crawls of many targets.
type Coordinator struct {
	// factory creates a fresh crawler per target.
	factory Factory

	// concurrency is the number of fetches allowed in flight.
	concurrency int

	// batchSize splits targets into sequential batches; 0 runs one batch.
	batchSize int

	// maxActive bounds the number of crawls running at once; 0 means every
	// crawl of the batch runs at once and only the fetch gate limits them.
	maxActive int

	listener Listener
	logger   *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConcurrency sets the maximum number of fetches in flight.
// Non-positive values keep the default.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithBatchSize runs targets in sequential batches of n. 0 disables batching.
func WithBatchSize(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.batchSize = n
		}
	}
}

// WithMaxActive bounds the number of crawls running at once.
func WithMaxActive(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.maxActive = n
		}
	}
}

// WithListener sets the event listener.
func WithListener(l Listener) Option {
	return func(c *Coordinator) {
		c.listener = l
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// New creates a Coordinator.
func New(factory Factory, opts ...Option) *Coordinator {
	c := &Coordinator{
		factory:     factory,
		concurrency: DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c
}

// Concurrency returns the fetch gate size.
func (c *Coordinator) Concurrency() int {
	return c.concurrency
}

// RunAll crawls every target and returns one result per target, in input
// order. It returns once every crawl has completed or failed; if ctx is
// canceled the remaining crawls fail quickly with the context error.
func (c *Coordinator) RunAll(ctx context.Context, targets []model.CrawlTarget) []*model.CrawlResult {
	results := make([]*model.CrawlResult, len(targets))
	var mu sync.Mutex

	c.RunAllWithCallback(ctx, targets, func(result *model.CrawlResult, index int) {
		mu.Lock()
		results[index] = result
		mu.Unlock()
	})

	return results
}

// RunAllWithCallback crawls every target and calls fn with each result as
// soon as its crawl finishes. index is the position of the target in
// targets. fn is called from the crawl goroutines and must be safe for
// concurrent use.
//
// The returned error is ctx.Err() when the run was canceled.
func (c *Coordinator) RunAllWithCallback(
	ctx context.Context,
	targets []model.CrawlTarget,
	fn func(result *model.CrawlResult, index int),
) error {
	gate := semaphore.NewWeighted(int64(c.concurrency))
	batches := partition(len(targets), c.batchSize)

	c.logger.Info("starting crawl run",
		slog.Int("targets", len(targets)),
		slog.Int("concurrency", c.concurrency),
		slog.Int("batches", len(batches)),
	)
	start := time.Now()

	for b, bounds := range batches {
		if c.listener != nil {
			c.listener.BatchStarted(b, bounds.end-bounds.start)
		}
		if len(batches) > 1 {
			c.logger.Info("starting batch",
				slog.Int("batch", b+1),
				slog.Int("of", len(batches)),
				slog.Int("size", bounds.end-bounds.start),
			)
		}

		var g errgroup.Group
		if c.maxActive > 0 {
			g.SetLimit(c.maxActive)
		}

		for i := bounds.start; i < bounds.end; i++ {
			target := targets[i]
			g.Go(func() error {
				fn(c.runOne(ctx, target, gate), i)
				return nil
			})
		}

		// Crawl errors live in the results; Wait only joins.
		_ = g.Wait() //nolint:errcheck // goroutines never return errors
	}

	c.logger.Info("crawl run complete",
		slog.Int("targets", len(targets)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return ctx.Err()
}

// runOne crawls target. It always returns a result; invalid targets fail
// without being crawled.
func (c *Coordinator) runOne(ctx context.Context, target model.CrawlTarget, gate crawler.Gate) *model.CrawlResult {
	if c.listener != nil {
		c.listener.CrawlStarted(target)
	}

	if err := target.Validate(); err != nil {
		result := model.NewCrawlResult(target)
		result.Fail(err)
		c.logger.Warn("invalid target", slog.String("target", target.String()), slog.String("error", err.Error()))
		return result
	}

	result := c.factory(target, gate).Run(ctx)
	if result == nil {
		result = model.NewCrawlResult(target)
		result.Fail(errNoResult)
	}
	return result
}

// span is a half-open range of target indexes.
type span struct {
	start, end int
}

// partition splits n targets into batches of size. size 0 yields one batch.
func partition(n, size int) []span {
	if n == 0 {
		return nil
	}
	if size <= 0 || size >= n {
		return []span{{0, n}}
	}
	spans := make([]span, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		spans = append(spans, span{start, min(start+size, n)})
	}
	return spans
}
