package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/sitescrape/internal/config"
	"github.com/nao1215/sitescrape/internal/coordinator"
	"github.com/nao1215/sitescrape/internal/crawler"
	"github.com/nao1215/sitescrape/internal/database"
	applog "github.com/nao1215/sitescrape/internal/log"
	"github.com/nao1215/sitescrape/internal/metrics"
	"github.com/nao1215/sitescrape/internal/model"
	"github.com/nao1215/sitescrape/internal/pipeline"
	"github.com/nao1215/sitescrape/internal/report"
	"github.com/nao1215/sitescrape/internal/sitelist"
	"github.com/spf13/cobra"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Crawl websites and save their text",
		Long: `Crawl fetches every page reachable from each base URL without leaving the
site and saves the visible text.

Targets come from the arguments, from a spreadsheet (--list) and from the
targets section of the configuration file. Every site is crawled on its own;
a site that fails is written to failed.log and never stops the others.

Examples:
  # Crawl one site
  sitescrape crawl https://example.com

  # Crawl the sites of a company list
  sitescrape crawl --list companies.xlsx

  # Crawl faster, with 20 fetches in flight and a 1s delay per site
  sitescrape crawl -n 20 --delay 1s --list companies.xlsx

  # Expose Prometheus metrics while crawling
  sitescrape crawl --metrics-addr :9090 --list companies.xlsx

  # Write a Markdown summary
  sitescrape crawl -m -r summary.md https://example.com`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Targets
	cmd.Flags().StringP("list", "l", "",
		"Spreadsheet (.xlsx) with Nr, Företagsnamn and Hemsida columns")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file (default: first of ./.sitescrape, ~/.sitescrape, XDG config.yaml)")

	// Crawl behavior
	cmd.Flags().Duration("delay", config.DefaultCrawlDelay,
		"Minimum delay between requests to one site")
	cmd.Flags().String("traversal", config.DefaultTraversal,
		"Frontier order: depth-first or unordered")
	cmd.Flags().IntP("max-pages", "p", 0,
		"Stop a site after this many pages (0 = no limit)")
	cmd.Flags().String("filter", "",
		"Never follow links containing this text")
	cmd.Flags().Bool("no-follow", false,
		"Only fetch the base page of each site")
	cmd.Flags().Bool("tolerate-network-errors", false,
		"Skip pages with connection errors instead of failing the site")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header")
	cmd.Flags().Int("rate-limit", 0,
		"Allow at most this many requests per --rate-window per site (0 = off)")
	cmd.Flags().Duration("rate-window", time.Minute,
		"Window of --rate-limit")

	// Concurrency and transport
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Fetches in flight across all sites")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Crawl targets in batches of this size (0 = one batch)")
	cmd.Flags().Int("max-active", 0,
		"Sites crawled at once within a batch (0 = all)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().Int("max-conns", config.DefaultMaxConns,
		"Size of the shared HTTP connection pool")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Largest response body read, in bytes")

	// Output
	cmd.Flags().StringP("out-dir", "d", config.DefaultOutputDir,
		"Directory for complete/, unique_only/ and failed.log")
	cmd.Flags().String("db-dir", "",
		"Archive directory (default: XDG data directory)")
	cmd.Flags().Bool("no-db", false,
		"Do not archive results in SQLite")
	cmd.Flags().Duration("skip-recent", 0,
		"Skip sites archived successfully within this period (0 = off)")
	cmd.Flags().BoolP("json", "j", false,
		"Write the run summary as JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Write the run summary as Markdown (mutually exclusive with --json)")
	cmd.Flags().StringP("report", "r", "",
		"Write the run summary to this file instead of stdout")
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	stderr := &syncWriter{w: cmd.ErrOrStderr()}
	logger := applog.NewLogger(stderr, cfg.Verbose, cfg.JSONLog)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = runCrawl(ctx, cfg, logger, cmd.OutOrStdout(), stderr)
	return err
}

// syncWriter serializes writes from the crawl goroutines and the logger.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// getBoolFlag retrieves a flag from the command or the root's persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// buildConfig creates a Config from the config file and the command flags.
// Flags the user set explicitly win over the file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, err
	}

	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.ApplyFile(file)
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.JSONLog = getBoolFlag(cmd, "log-json")

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	if cfg.DBDir == "" {
		cfg.DBDir = config.XDGDataDir()
	}
	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	if noDB {
		cfg.DBDir = ""
	}

	cfg.Targets, err = collectTargets(cfg, args)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyFlags copies the explicitly set flags into cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Changed(name) {
			err = apply()
		}
	}

	// The file's defaults section is merged into every site, so flags
	// overriding it are written there as well.
	defaults := &cfg.SiteConfigs.Defaults
	set("delay", func() (e error) {
		cfg.CrawlDelay, e = flags.GetDuration("delay")
		defaults.Delay = cfg.CrawlDelay
		return
	})
	set("traversal", func() (e error) {
		cfg.Traversal, e = flags.GetString("traversal")
		defaults.Traversal = cfg.Traversal
		return
	})
	set("max-pages", func() (e error) {
		cfg.MaxPages, e = flags.GetInt("max-pages")
		defaults.MaxPages = cfg.MaxPages
		return
	})
	set("user-agent", func() (e error) { cfg.UserAgent, e = flags.GetString("user-agent"); return })
	set("tolerate-network-errors", func() (e error) {
		cfg.TolerateNetworkErrors, e = flags.GetBool("tolerate-network-errors")
		return
	})
	set("rate-limit", func() (e error) { cfg.RateLimitRequests, e = flags.GetInt("rate-limit"); return })
	set("rate-window", func() (e error) { cfg.RateLimitWindow, e = flags.GetDuration("rate-window"); return })
	set("concurrency", func() (e error) { cfg.Concurrency, e = flags.GetInt("concurrency"); return })
	set("batch", func() (e error) { cfg.BatchSize, e = flags.GetInt("batch"); return })
	set("max-active", func() (e error) { cfg.MaxActive, e = flags.GetInt("max-active"); return })
	set("timeout", func() (e error) { cfg.Timeout, e = flags.GetDuration("timeout"); return })
	set("max-conns", func() (e error) { cfg.MaxConns, e = flags.GetInt("max-conns"); return })
	set("max-body-size", func() (e error) { cfg.MaxBodySize, e = flags.GetInt64("max-body-size"); return })
	set("out-dir", func() (e error) { cfg.OutputDir, e = flags.GetString("out-dir"); return })
	set("db-dir", func() (e error) { cfg.DBDir, e = flags.GetString("db-dir"); return })
	set("skip-recent", func() (e error) { cfg.SkipRecent, e = flags.GetDuration("skip-recent"); return })
	set("list", func() (e error) { cfg.ListFile, e = flags.GetString("list"); return })
	set("filter", func() error {
		filter, e := flags.GetString("filter")
		defaults.Filter = filter
		return e
	})
	set("no-follow", func() error {
		noFollow, e := flags.GetBool("no-follow")
		follow := !noFollow
		defaults.FollowLinks = &follow
		return e
	})
	if err != nil {
		return err
	}

	// Unset --rate-window keeps its one minute default once a limit is given.
	if cfg.RateLimitRequests > 0 && cfg.RateLimitWindow == 0 {
		cfg.RateLimitWindow, err = flags.GetDuration("rate-window")
		if err != nil {
			return err
		}
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return err
	}
	if cfg.ReportFile, err = flags.GetString("report"); err != nil {
		return err
	}
	if cfg.MetricsAddr, err = flags.GetString("metrics-addr"); err != nil {
		return err
	}
	return nil
}

// collectTargets merges the arguments, the spreadsheet and the config file
// targets, keeping the first occurrence of each base URL.
func collectTargets(cfg *config.Config, args []string) ([]model.CrawlTarget, error) {
	targets, err := sitelist.FromURLs(args)
	if err != nil {
		return nil, err
	}

	listConfig := cfg.SiteConfigs.List
	if cfg.ListFile != "" {
		listConfig.Path = cfg.ListFile
	}
	if listConfig.Path != "" {
		listed, err := sitelist.ReadFile(listConfig.Path, sitelist.OptionsFromConfig(listConfig))
		if err != nil {
			return nil, err
		}
		targets = append(targets, listed...)
	}

	configured, err := sitelist.FromConfig(cfg.SiteConfigs)
	if err != nil {
		return nil, err
	}
	targets = append(targets, configured...)

	return sitelist.Dedupe(targets), nil
}

// runCrawl crawls cfg.Targets, persists every result as it finishes and
// writes the run summary. stderr must be safe for concurrent use.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) (*model.RunSummary, error) {
	started := time.Now()
	runID := started.UTC().Format("20060102T150405.000000")

	var db *database.CrawlDB
	if cfg.DBDir != "" {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Debug("database opened", "path", db.Path())
	}

	targets, err := skipRecent(ctx, cfg, db, logger)
	if err != nil {
		return nil, err
	}

	var collector *metrics.Collector
	if cfg.MetricsAddr != "" {
		collector = metrics.NewCollector()
		metricsCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		go func() {
			if err := collector.Serve(metricsCtx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	collect := pipeline.NewCollectStep()
	p := newPipeline(cfg, db, runID, collect, logger)
	coord := newCoordinator(cfg, collector, newProgressPrinter(stderr), logger)

	fmt.Fprintf(stderr, "Crawling %d site(s) (concurrency: %d)...\n", len(targets), cfg.Concurrency)

	// Results that finished before a cancellation are still persisted.
	persistCtx := context.WithoutCancel(ctx)
	runErr := coord.RunAllWithCallback(ctx, targets, func(result *model.CrawlResult, index int) {
		fmt.Fprintf(stderr, "[%d/%d] %s: %s (%d pages)\n",
			index+1, len(targets), result.Target, result.State, result.PageCount())
		if err := p.Execute(persistCtx, result); err != nil {
			logger.Error("failed to persist result", "target", result.Target.BaseURL, "error", err)
		}
	})

	summary := model.NewRunSummary(runID, collect.InOrder(targets), started, time.Now())
	if err := writeSummary(cfg, summary, stdout, stderr); err != nil {
		return summary, err
	}

	if runErr != nil {
		return summary, fmt.Errorf("crawl interrupted: %w", runErr)
	}
	return summary, nil
}

// skipRecent drops the targets the archive holds a recent successful crawl of.
func skipRecent(ctx context.Context, cfg *config.Config, db *database.CrawlDB, logger *slog.Logger) ([]model.CrawlTarget, error) {
	if db == nil || cfg.SkipRecent <= 0 {
		return cfg.Targets, nil
	}

	targets := make([]model.CrawlTarget, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		recent, err := db.HasRecentCrawl(ctx, t.BaseURL, cfg.SkipRecent)
		if err != nil {
			return nil, fmt.Errorf("failed to check crawl history: %w", err)
		}
		if recent {
			logger.Info("skipping recently crawled site", "target", t.BaseURL)
			continue
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// newPipeline builds the per-result persistence steps.
func newPipeline(cfg *config.Config, db *database.CrawlDB, runID string, collect *pipeline.CollectStep, logger *slog.Logger) *pipeline.Pipeline {
	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(true),
	)
	if db != nil {
		p.AddStep(pipeline.NewArchiveStep(db, runID, pipeline.WithArchiveLogger(logger)))
	}
	p.AddSteps(
		pipeline.NewWriteTextStep(report.NewTextWriter(cfg.OutputDir), logger),
		pipeline.NewFailureLogStep(report.NewFailureLog(filepath.Join(cfg.OutputDir, report.FailureLogName))),
		collect,
	)
	return p
}

// newCoordinator builds the coordinator and a Spider factory applying the
// per-site settings. collector may be nil.
func newCoordinator(cfg *config.Config, collector *metrics.Collector, progress crawler.ProgressFunc, logger *slog.Logger) *coordinator.Coordinator {
	client := crawler.NewHTTPClient(cfg.MaxConns, cfg.Timeout)

	factory := func(target model.CrawlTarget, gate crawler.Gate) coordinator.Crawler {
		site := cfg.Site(target.BaseURL)

		fetcher := crawler.NewHTTPFetcher(
			crawler.WithHTTPClient(client),
			crawler.WithUserAgent(cfg.UserAgent),
			crawler.WithMaxBodySize(cfg.MaxBodySize),
			crawler.WithHeaders(site.RequestHeaders()),
		)

		// Traversal names were checked by Validate.
		opts, _ := site.SpiderOptions() //nolint:errcheck // validated
		opts = append(opts,
			crawler.WithGate(gate),
			crawler.WithProgress(progress),
			crawler.WithTolerateNetworkErrors(cfg.TolerateNetworkErrors),
			crawler.WithRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow),
			crawler.WithLogger(logger),
		)
		if collector != nil {
			opts = append(opts, crawler.WithObserver(collector))
		}
		return crawler.NewSpider(target, fetcher, opts...)
	}

	opts := []coordinator.Option{
		coordinator.WithConcurrency(cfg.Concurrency),
		coordinator.WithBatchSize(cfg.BatchSize),
		coordinator.WithMaxActive(cfg.MaxActive),
		coordinator.WithLogger(logger),
	}
	if collector != nil {
		opts = append(opts, coordinator.WithListener(collector))
	}
	return coordinator.New(factory, opts...)
}

// newProgressPrinter returns a progress callback printing one line per
// fetched page.
func newProgressPrinter(w io.Writer) crawler.ProgressFunc {
	return func(target model.CrawlTarget, fetched int, _ string) {
		fmt.Fprintf(w, "%s: fetched %d pages\n", target.FileName(), fetched)
	}
}

// writeSummary writes the run summary in the configured format.
// Failures are also listed on stderr when the summary is not the plain
// text format on the terminal.
func writeSummary(cfg *config.Config, summary *model.RunSummary, stdout, stderr io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(output)
	default:
		w = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
	if _, err := w.Write(summary); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	plainOnTerminal := !cfg.JSONReport && !cfg.MarkdownReport && cfg.ReportFile == ""
	if !plainOnTerminal && summary.HasFailures() {
		printFailures(stderr, summary.Failures())
	}
	return nil
}

// printFailures lists failed targets, one per line.
func printFailures(w io.Writer, failures []model.TargetSummary) {
	fmt.Fprintf(w, "\n%d site(s) failed:\n", len(failures))
	for _, f := range failures {
		fmt.Fprintf(w, "  %s: %s\n", f.Target, f.Error)
	}
}
