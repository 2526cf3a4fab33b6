package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/nao1215/sitescrape/internal/config"
	"github.com/nao1215/sitescrape/internal/database"
	"github.com/nao1215/sitescrape/internal/model"
	"github.com/spf13/cobra"
)

// Constants for change summary messages.
const (
	noChangesMessage    = "No changes"
	notEnoughCrawlsNote = "At least two successful crawls are needed to compare."
)

// runOverview summarizes one archived run.
type runOverview struct {
	RunID      string    `json:"run_id"`
	Targets    int       `json:"targets"`
	Failed     int       `json:"failed"`
	Pages      int       `json:"pages"`
	FinishedAt time.Time `json:"finished_at"`
}

// crawlEntry is one archived crawl of a site.
type crawlEntry struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	State      string    `json:"state"`
	Pages      int       `json:"pages"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// pageDiff lists the page changes between two crawls of a site.
type pageDiff struct {
	From    int64    `json:"from_crawl"`
	To      int64    `json:"to_crawl"`
	Added   []string `json:"added"`
	Changed []string `json:"changed"`
	Removed []string `json:"removed"`
}

// Empty reports whether the crawls hold the same pages with the same text.
func (d pageDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

// siteHistory is the output of the history command for one site.
type siteHistory struct {
	BaseURL string             `json:"base_url"`
	Crawls  []crawlEntry       `json:"crawls"`
	Pages   []model.PageRecord `json:"pages,omitempty"`
	Diff    *pageDiff          `json:"diff,omitempty"`
}

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [url]",
		Short: "Show archived crawls and what changed between them",
		Long: `History reads the SQLite archive written by the crawl command.

Without an argument it lists the archived runs. With a base URL it lists the
crawls of that site and compares the pages of its latest two successful
crawls: pages that appeared, pages whose text changed and pages that are gone.

Examples:
  # List archived runs
  sitescrape history

  # Show the crawls of one site and what changed
  sitescrape history https://example.com

  # Include the pages of the latest crawl
  sitescrape history --pages https://example.com

  # Output in JSON format
  sitescrape history --json https://example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("db-dir", "",
		"Archive directory (default: XDG data directory)")
	cmd.Flags().IntP("limit", "n", 10,
		"Show at most this many crawls (0 = all)")
	cmd.Flags().Bool("pages", false,
		"List the pages of the latest crawl")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	// Validate the argument before opening the database.
	var target model.CrawlTarget
	if len(args) == 1 {
		target = model.NewCrawlTarget(args[0], "", "")
		if err := target.Validate(); err != nil {
			return fmt.Errorf("invalid base URL %q: %w", args[0], err)
		}
	}

	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	withPages, err := flags.GetBool("pages")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if target.BaseURL == "" {
		runs, err := listRunOverviews(ctx, db, limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(out, runs)
		}
		printRunOverviews(out, runs)
		return nil
	}

	history, err := loadSiteHistory(ctx, db, target.BaseURL, limit, withPages)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(out, history)
	}
	printSiteHistory(out, history)
	return nil
}

// listRunOverviews groups the archived crawls by run, newest run first.
func listRunOverviews(ctx context.Context, db *database.CrawlDB, limit int) ([]runOverview, error) {
	records, err := db.ListRuns(ctx, "")
	if err != nil {
		return nil, err
	}

	byRun := make(map[string]*runOverview)
	for _, r := range records {
		o, ok := byRun[r.RunID]
		if !ok {
			o = &runOverview{RunID: r.RunID}
			byRun[r.RunID] = o
		}
		o.Targets++
		o.Pages += r.PagesFetched
		if r.Failed {
			o.Failed++
		}
		if r.FinishedAt.After(o.FinishedAt) {
			o.FinishedAt = r.FinishedAt
		}
	}

	runs := make([]runOverview, 0, len(byRun))
	for _, o := range byRun {
		runs = append(runs, *o)
	}
	slices.SortFunc(runs, func(a, b runOverview) int {
		if c := b.FinishedAt.Compare(a.FinishedAt); c != 0 {
			return c
		}
		return strings.Compare(b.RunID, a.RunID)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// loadSiteHistory collects the archived crawls of baseURL and the diff of
// its latest two successful crawls.
func loadSiteHistory(ctx context.Context, db *database.CrawlDB, baseURL string, limit int, withPages bool) (*siteHistory, error) {
	records, err := db.ListTargetCrawls(ctx, baseURL, 0)
	if err != nil {
		return nil, err
	}

	history := &siteHistory{
		BaseURL: baseURL,
		Crawls:  make([]crawlEntry, 0, len(records)),
	}
	for i, r := range records {
		if limit > 0 && i >= limit {
			break
		}
		history.Crawls = append(history.Crawls, crawlEntry{
			ID:         r.ID,
			RunID:      r.RunID,
			State:      r.State,
			Pages:      r.PagesFetched,
			Skipped:    r.PagesSkipped,
			Error:      r.Error,
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
		})
	}

	var successful []database.CrawlRecord
	for _, r := range records {
		if !r.Failed {
			successful = append(successful, r)
		}
	}
	if len(successful) == 0 {
		return history, nil
	}

	latest, err := db.GetPages(ctx, successful[0].ID)
	if err != nil {
		return nil, err
	}
	if withPages {
		history.Pages = latest
	}

	if len(successful) > 1 {
		previous, err := db.GetPages(ctx, successful[1].ID)
		if err != nil {
			return nil, err
		}
		diff := diffPageSets(previous, latest)
		diff.From = successful[1].ID
		diff.To = successful[0].ID
		history.Diff = &diff
	}
	return history, nil
}

// diffPageSets compares two crawls of one site by page URL and text hash.
// The URL lists are sorted.
func diffPageSets(previous, latest []model.PageRecord) pageDiff {
	before := make(map[string]string, len(previous))
	for _, p := range previous {
		before[p.URL] = p.Hash
	}

	diff := pageDiff{
		Added:   []string{},
		Changed: []string{},
		Removed: []string{},
	}
	seen := make(map[string]bool, len(latest))
	for _, p := range latest {
		seen[p.URL] = true
		hash, ok := before[p.URL]
		switch {
		case !ok:
			diff.Added = append(diff.Added, p.URL)
		case hash != p.Hash:
			diff.Changed = append(diff.Changed, p.URL)
		}
	}
	for u := range before {
		if !seen[u] {
			diff.Removed = append(diff.Removed, u)
		}
	}

	slices.Sort(diff.Added)
	slices.Sort(diff.Changed)
	slices.Sort(diff.Removed)
	return diff
}

// printRunOverviews prints the archived runs as a table.
func printRunOverviews(w io.Writer, runs []runOverview) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No archived runs.")
		return
	}

	fmt.Fprintf(w, "%-26s  %-19s  %7s  %6s  %7s\n", "RUN", "FINISHED", "TARGETS", "FAILED", "PAGES")
	fmt.Fprintln(w, strings.Repeat("-", 75))
	for _, r := range runs {
		fmt.Fprintf(w, "%-26s  %-19s  %7d  %6d  %7d\n",
			r.RunID, r.FinishedAt.Local().Format("2006-01-02 15:04:05"), r.Targets, r.Failed, r.Pages)
	}
}

// printSiteHistory prints the crawls of one site and the latest changes.
func printSiteHistory(w io.Writer, h *siteHistory) {
	fmt.Fprintf(w, "Crawl history for %s\n\n", h.BaseURL)
	if len(h.Crawls) == 0 {
		fmt.Fprintln(w, "No archived crawls.")
		return
	}

	fmt.Fprintf(w, "%-6s  %-26s  %-19s  %-9s  %6s\n", "ID", "RUN", "FINISHED", "STATE", "PAGES")
	fmt.Fprintln(w, strings.Repeat("-", 74))
	for _, c := range h.Crawls {
		fmt.Fprintf(w, "%-6d  %-26s  %-19s  %-9s  %6d\n",
			c.ID, c.RunID, c.FinishedAt.Local().Format("2006-01-02 15:04:05"), c.State, c.Pages)
		if c.Error != "" {
			fmt.Fprintf(w, "        error: %s\n", c.Error)
		}
	}

	if len(h.Pages) > 0 {
		fmt.Fprintf(w, "\nPages of the latest crawl (%d):\n", len(h.Pages))
		for _, p := range h.Pages {
			fmt.Fprintf(w, "  %s (%d bytes)\n", p.URL, len(p.FullText))
		}
	}

	fmt.Fprintln(w)
	if h.Diff == nil {
		fmt.Fprintln(w, notEnoughCrawlsNote)
		return
	}

	fmt.Fprintf(w, "Changes from crawl %d to crawl %d:\n", h.Diff.From, h.Diff.To)
	if h.Diff.Empty() {
		fmt.Fprintf(w, "  %s\n", noChangesMessage)
		return
	}
	printURLGroup(w, "+", "added", h.Diff.Added)
	printURLGroup(w, "~", "changed", h.Diff.Changed)
	printURLGroup(w, "-", "removed", h.Diff.Removed)
}

// printURLGroup prints one group of changed page URLs.
func printURLGroup(w io.Writer, marker, title string, urls []string) {
	if len(urls) == 0 {
		return
	}
	fmt.Fprintf(w, "  %d %s:\n", len(urls), title)
	for _, u := range urls {
		fmt.Fprintf(w, "    %s %s\n", marker, u)
	}
}
