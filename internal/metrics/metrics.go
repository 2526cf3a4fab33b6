package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nao1215/sitescrape/internal/crawler"
	"github.com/nao1215/sitescrape/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "sitescrape"

// Collector holds the crawl metrics.
type Collector struct {
	registry *prometheus.Registry

	FetchesTotal    *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	FetchesInFlight prometheus.Gauge

	CrawlsStarted  prometheus.Counter
	CrawlsTotal    *prometheus.CounterVec
	CrawlDuration  prometheus.Histogram
	PagesTotal     prometheus.Counter
	PagesSkipped   prometheus.Counter
	LinksIgnored   prometheus.Counter
	BatchesStarted prometheus.Counter
	BatchSize      prometheus.Gauge
}

// NewCollector creates a Collector registered on a fresh registry that also
// carries the Go runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newCollector(reg)
}

func newCollector(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		FetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fetches_total",
			Help:      "Page fetches by outcome class.",
		}, []string{"class"}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of page fetches.",
			Buckets:   prometheus.DefBuckets,
		}),
		FetchesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "fetches_in_flight",
			Help:      "Fetches currently holding a concurrency slot.",
		}),
		CrawlsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "crawls_started_total",
			Help:      "Site crawls started.",
		}),
		CrawlsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "crawls_total",
			Help:      "Finished site crawls by terminal state.",
		}, []string{"state"}),
		CrawlDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "crawl_duration_seconds",
			Help:      "Duration of site crawls.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		PagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pages_total",
			Help:      "Pages stored by completed crawls.",
		}),
		PagesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pages_skipped_total",
			Help:      "URLs abandoned after a recoverable error.",
		}),
		LinksIgnored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "links_ignored_total",
			Help:      "Links classified as non-text resources.",
		}),
		BatchesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "batches_started_total",
			Help:      "Target batches started.",
		}),
		BatchSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "batch_size",
			Help:      "Number of targets in the current batch.",
		}),
	}
}

// Registry returns the registry the metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// FetchStarted implements crawler.Observer.
func (c *Collector) FetchStarted(model.CrawlTarget) {
	c.FetchesInFlight.Inc()
}

// FetchFinished implements crawler.Observer.
func (c *Collector) FetchFinished(_ model.CrawlTarget, class crawler.ErrorClass, elapsed time.Duration) {
	c.FetchesInFlight.Dec()
	c.FetchesTotal.WithLabelValues(class.String()).Inc()
	c.FetchDuration.Observe(elapsed.Seconds())
}

// CrawlFinished implements crawler.Observer.
func (c *Collector) CrawlFinished(result *model.CrawlResult) {
	c.CrawlsTotal.WithLabelValues(result.State.String()).Inc()
	c.CrawlDuration.Observe(result.Duration().Seconds())
	c.PagesSkipped.Add(float64(result.PagesSkipped))
	c.LinksIgnored.Add(float64(len(result.Ignored)))
	if !result.Failed {
		c.PagesTotal.Add(float64(result.PageCount()))
	}
}

// BatchStarted implements coordinator.Listener.
func (c *Collector) BatchStarted(_, size int) {
	c.BatchesStarted.Inc()
	c.BatchSize.Set(float64(size))
}

// CrawlStarted implements coordinator.Listener.
func (c *Collector) CrawlStarted(model.CrawlTarget) {
	c.CrawlsStarted.Inc()
}

// Handler returns an HTTP handler exposing the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
