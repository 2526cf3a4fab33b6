package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/sitescrape/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *CrawlDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// completedResult builds a finished result with the given page texts.
func completedResult(base string, finished time.Time, texts ...string) *model.CrawlResult {
	r := model.NewCrawlResult(model.NewCrawlTarget(base, "7", "Bolaget"))
	r.StartedAt = finished.Add(-time.Minute)
	r.FinishedAt = finished
	r.State = model.StateCompleted
	for i, text := range texts {
		u := base
		if i > 0 {
			u = base + "/p" + string(rune('a'+i))
		}
		r.AddPage(model.NewPageRecord(u, []string{text}, []string{text}))
		r.PagesFetched++
	}
	r.Ignored = []string{base + "/file.pdf"}
	return r
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("missing database without create", func(t *testing.T) {
		t.Parallel()

		_, err := Open(t.TempDir(), Options{CreateIfNotExists: false})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("reopens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		if _, err := db.SaveCrawlResult(context.Background(), "run-1", completedResult("https://a.se", time.Now(), "x")); err != nil {
			t.Fatal(err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false})
		if err != nil {
			t.Fatalf("failed to reopen: %v", err)
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), "")
		if err != nil || len(runs) != 1 {
			t.Errorf("ListRuns() = %d records, err %v", len(runs), err)
		}
	})
}

func TestSaveCrawlResult(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	finished := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	result := completedResult("https://bolaget.se", finished, "Hem", "Om oss", "Kontakt")

	id, err := db.SaveCrawlResult(ctx, "run-1", result)
	if err != nil {
		t.Fatalf("SaveCrawlResult() error = %v", err)
	}

	latest, err := db.GetLatestRun(ctx, "https://bolaget.se")
	if err != nil {
		t.Fatalf("GetLatestRun() error = %v", err)
	}
	if latest == nil || latest.ID != id {
		t.Fatalf("GetLatestRun() = %+v, want id %d", latest, id)
	}
	if latest.Target != result.Target {
		t.Errorf("Target = %+v, want %+v", latest.Target, result.Target)
	}
	if latest.State != "completed" || latest.Failed || latest.PagesFetched != 3 {
		t.Errorf("unexpected record %+v", latest)
	}
	if !latest.FinishedAt.Equal(finished) || !latest.StartedAt.Equal(finished.Add(-time.Minute)) {
		t.Errorf("timestamps = %v / %v", latest.StartedAt, latest.FinishedAt)
	}
	if len(latest.Ignored) != 1 || latest.Ignored[0] != "https://bolaget.se/file.pdf" {
		t.Errorf("Ignored = %v", latest.Ignored)
	}

	pages, err := db.GetPages(ctx, id)
	if err != nil {
		t.Fatalf("GetPages() error = %v", err)
	}
	want := result.Pages()
	if len(pages) != len(want) {
		t.Fatalf("got %d pages, want %d", len(pages), len(want))
	}
	for i := range want {
		if pages[i].URL != want[i].URL || pages[i].FullText != want[i].FullText || pages[i].Hash != want[i].Hash {
			t.Errorf("page %d = %+v, want %+v", i, pages[i], want[i])
		}
	}
}

func TestFailuresAndRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)
	now := time.Now()

	ok := completedResult("https://ok.se", now, "text")
	failed := completedResult("https://broken.se", now, "partial")
	failed.Fail(errors.New("fetch https://broken.se: certificate error: x509"))

	for _, r := range []*model.CrawlResult{ok, failed} {
		if _, err := db.SaveCrawlResult(ctx, "run-2", r); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.SaveCrawlResult(ctx, "run-3", ok); err != nil {
		t.Fatal(err)
	}

	runs, err := db.ListRuns(ctx, "run-2")
	if err != nil || len(runs) != 2 {
		t.Fatalf("ListRuns(run-2) = %d, %v", len(runs), err)
	}
	if runs[0].Target.BaseURL != "https://ok.se" {
		t.Errorf("runs not in insertion order: %v", runs[0].Target)
	}

	failures, err := db.ListFailures(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) != 1 || failures[0].Target.BaseURL != "https://broken.se" {
		t.Fatalf("ListFailures() = %+v", failures)
	}
	if failures[0].Error == "" || failures[0].State != "failed" {
		t.Errorf("failure record = %+v", failures[0])
	}

	pages, err := db.GetPages(ctx, failures[0].ID)
	if err != nil || len(pages) != 0 {
		t.Errorf("failed crawl must store no pages, got %d (%v)", len(pages), err)
	}

	runID, err := db.LatestRunID(ctx)
	if err != nil || runID != "run-3" {
		t.Errorf("LatestRunID() = %q, %v", runID, err)
	}
}

func TestListTargetCrawls(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)
	now := time.Now()

	for i, runID := range []string{"run-a", "run-b", "run-c"} {
		r := completedResult("https://history.se", now.Add(time.Duration(i)*time.Hour), "v"+runID)
		if _, err := db.SaveCrawlResult(ctx, runID, r); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.SaveCrawlResult(ctx, "run-c", completedResult("https://other.se", now, "x")); err != nil {
		t.Fatal(err)
	}

	all, err := db.ListTargetCrawls(ctx, "https://history.se", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("ListTargetCrawls() returned %d records, want 3", len(all))
	}
	if all[0].RunID != "run-c" || all[2].RunID != "run-a" {
		t.Errorf("records not newest first: %s, %s", all[0].RunID, all[2].RunID)
	}

	latest, err := db.ListTargetCrawls(ctx, "https://history.se", 2)
	if err != nil || len(latest) != 2 {
		t.Fatalf("ListTargetCrawls(limit 2) = %d, %v", len(latest), err)
	}

	none, err := db.ListTargetCrawls(ctx, "https://never.se", 0)
	if err != nil || len(none) != 0 {
		t.Errorf("ListTargetCrawls(unknown) = %d, %v", len(none), err)
	}
}

func TestGetLatestRunMissing(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	rec, err := db.GetLatestRun(context.Background(), "https://never.se")
	if err != nil || rec != nil {
		t.Errorf("GetLatestRun() = %+v, %v; want nil, nil", rec, err)
	}

	runID, err := db.LatestRunID(context.Background())
	if err != nil || runID != "" {
		t.Errorf("LatestRunID() = %q, %v", runID, err)
	}
}

func TestLatestPageHashes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	old := completedResult("https://site.se", time.Now().Add(-48*time.Hour), "v1")
	newer := completedResult("https://site.se", time.Now().Add(-time.Hour), "v2")
	broken := completedResult("https://site.se", time.Now(), "v3")
	broken.Fail(errors.New("boom"))

	for _, r := range []*model.CrawlResult{old, newer, broken} {
		if _, err := db.SaveCrawlResult(ctx, "run", r); err != nil {
			t.Fatal(err)
		}
	}

	hashes, err := db.LatestPageHashes(ctx, "https://site.se")
	if err != nil {
		t.Fatal(err)
	}
	if got := hashes["https://site.se"]; got != model.HashText("v2") {
		t.Errorf("hash = %q, want hash of the latest successful crawl", got)
	}

	empty, err := db.LatestPageHashes(ctx, "https://unknown.se")
	if err != nil || len(empty) != 0 {
		t.Errorf("LatestPageHashes(unknown) = %v, %v", empty, err)
	}
}

func TestHasRecentCrawl(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	if _, err := db.SaveCrawlResult(ctx, "run", completedResult("https://fresh.se", time.Now(), "x")); err != nil {
		t.Fatal(err)
	}
	if _, err := db.SaveCrawlResult(ctx, "run", completedResult("https://stale.se", time.Now().Add(-72*time.Hour), "x")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		base string
		want bool
	}{
		{"https://fresh.se", true},
		{"https://stale.se", false},
		{"https://unknown.se", false},
	}
	for _, tt := range tests {
		got, err := db.HasRecentCrawl(ctx, tt.base, 24*time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("HasRecentCrawl(%q) = %v, want %v", tt.base, got, tt.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, s := range []string{
		"2024-05-01 10:00:00.000000000",
		"2024-05-01 10:00:00",
		"2024-05-01T10:00:00Z",
	} {
		if got := parseTimestamp(s); !got.Equal(want) {
			t.Errorf("parseTimestamp(%q) = %v", s, got)
		}
	}
	if !parseTimestamp("garbage").IsZero() {
		t.Error("expected zero time for garbage")
	}
}
