package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitescrape/internal/model"
)

// FileName is the name of the database file inside the data directory.
const FileName = "sitescrape.db"

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02 15:04:05.000000000"

// CrawlDB stores crawl results.
// It is safe for concurrent use; writes are serialized by the single
// connection.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the CrawlDB in dbDir.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file, mode=rwc creates it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.ExecContext(context.Background(), "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per crawled target
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		label TEXT NOT NULL,
		base_url TEXT NOT NULL,
		state TEXT NOT NULL,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		pages_fetched INTEGER NOT NULL DEFAULT 0,
		pages_skipped INTEGER NOT NULL DEFAULT 0,
		ignored TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_run ON crawl_runs(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_base ON crawl_runs(base_url);
	CREATE INDEX IF NOT EXISTS idx_runs_finished ON crawl_runs(finished_at);

	-- Harvested text per page
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		crawl_id INTEGER NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		full_text TEXT NOT NULL,
		unique_text TEXT NOT NULL,
		hash TEXT NOT NULL,
		UNIQUE(crawl_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_crawl ON pages(crawl_id);
	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// CrawlRecord is a stored crawl of one target.
type CrawlRecord struct {
	ID           int64
	RunID        string
	Target       model.CrawlTarget
	State        string
	Failed       bool
	Error        string
	PagesFetched int
	PagesSkipped int
	Ignored      []string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// SaveCrawlResult stores result and its pages under runID and returns the
// crawl record ID. Pages keep the result's recording order.
func (cdb *CrawlDB) SaveCrawlResult(ctx context.Context, runID string, result *model.CrawlResult) (int64, error) {
	ignoredJSON, err := json.Marshal(result.Ignored)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize ignored links: %w", err)
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
	INSERT INTO crawl_runs (run_id, target_id, label, base_url, state, failed, error,
		pages_fetched, pages_skipped, ignored, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		result.Target.ID,
		result.Target.Label,
		result.Target.BaseURL,
		result.State.String(),
		result.Failed,
		result.Error,
		result.PagesFetched,
		result.PagesSkipped,
		string(ignoredJSON),
		formatTime(result.StartedAt),
		formatTime(result.FinishedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert crawl record: %w", err)
	}
	crawlID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get crawl record id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO pages (crawl_id, position, url, full_text, unique_text, hash)
	VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer stmt.Close()

	for i, page := range result.Pages() {
		if _, err := stmt.ExecContext(ctx, crawlID, i, page.URL, page.FullText, page.UniqueText, page.Hash); err != nil {
			return 0, fmt.Errorf("failed to insert page %s: %w", page.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit crawl record: %w", err)
	}
	return crawlID, nil
}

// crawlColumns is the column list scanned by scanCrawl.
const crawlColumns = `id, run_id, target_id, label, base_url, state, failed, error,
	pages_fetched, pages_skipped, ignored, started_at, finished_at`

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCrawl reads one crawl_runs row.
func scanCrawl(row rowScanner) (*CrawlRecord, error) {
	var rec CrawlRecord
	var errText, ignored sql.NullString
	var started, finished string
	var targetID, label, baseURL string

	err := row.Scan(
		&rec.ID,
		&rec.RunID,
		&targetID,
		&label,
		&baseURL,
		&rec.State,
		&rec.Failed,
		&errText,
		&rec.PagesFetched,
		&rec.PagesSkipped,
		&ignored,
		&started,
		&finished,
	)
	if err != nil {
		return nil, err
	}

	rec.Target = model.CrawlTarget{BaseURL: baseURL, ID: targetID, Label: label}
	rec.Error = errText.String
	rec.StartedAt = parseTimestamp(started)
	rec.FinishedAt = parseTimestamp(finished)
	if ignored.Valid && ignored.String != "" && ignored.String != "null" {
		if err := json.Unmarshal([]byte(ignored.String), &rec.Ignored); err != nil {
			return nil, fmt.Errorf("failed to parse ignored links: %w", err)
		}
	}

	return &rec, nil
}

// GetLatestRun returns the most recent crawl of baseURL, or nil if the
// target was never crawled.
func (cdb *CrawlDB) GetLatestRun(ctx context.Context, baseURL string) (*CrawlRecord, error) {
	query := `SELECT ` + crawlColumns + ` FROM crawl_runs
	WHERE base_url = ?
	ORDER BY finished_at DESC, id DESC
	LIMIT 1`

	rec, err := scanCrawl(cdb.db.QueryRowContext(ctx, query, baseURL))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest crawl: %w", err)
	}
	return rec, nil
}

// ListRuns returns the crawls of runID in insertion order. An empty runID
// lists every stored crawl.
func (cdb *CrawlDB) ListRuns(ctx context.Context, runID string) ([]CrawlRecord, error) {
	return cdb.queryCrawls(ctx, runID, false)
}

// ListFailures returns the failed crawls of runID. An empty runID lists every
// stored failure.
func (cdb *CrawlDB) ListFailures(ctx context.Context, runID string) ([]CrawlRecord, error) {
	return cdb.queryCrawls(ctx, runID, true)
}

// queryCrawls lists crawl records with optional filters.
func (cdb *CrawlDB) queryCrawls(ctx context.Context, runID string, failedOnly bool) ([]CrawlRecord, error) {
	query := `SELECT ` + crawlColumns + ` FROM crawl_runs WHERE 1=1`
	args := make([]any, 0)

	if runID != "" {
		query += " AND run_id = ?"
		args = append(args, runID)
	}
	if failedOnly {
		query += " AND failed = 1"
	}
	query += " ORDER BY id"

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query crawls: %w", err)
	}
	defer rows.Close()

	var records []CrawlRecord
	for rows.Next() {
		rec, err := scanCrawl(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crawl: %w", err)
		}
		records = append(records, *rec)
	}

	return records, rows.Err()
}

// ListTargetCrawls returns the crawls of baseURL, newest first. A positive
// limit caps the number of records.
func (cdb *CrawlDB) ListTargetCrawls(ctx context.Context, baseURL string, limit int) ([]CrawlRecord, error) {
	query := `SELECT ` + crawlColumns + ` FROM crawl_runs
	WHERE base_url = ?
	ORDER BY finished_at DESC, id DESC`
	args := []any{baseURL}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query crawl history: %w", err)
	}
	defer rows.Close()

	var records []CrawlRecord
	for rows.Next() {
		rec, err := scanCrawl(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crawl: %w", err)
		}
		records = append(records, *rec)
	}

	return records, rows.Err()
}

// LatestRunID returns the run ID of the most recently finished crawl, or ""
// if the archive is empty.
func (cdb *CrawlDB) LatestRunID(ctx context.Context) (string, error) {
	var runID string
	err := cdb.db.QueryRowContext(ctx,
		`SELECT run_id FROM crawl_runs ORDER BY finished_at DESC, id DESC LIMIT 1`,
	).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest run: %w", err)
	}
	return runID, nil
}

// GetPages returns the pages of a crawl in recording order.
func (cdb *CrawlDB) GetPages(ctx context.Context, crawlID int64) ([]model.PageRecord, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT url, full_text, unique_text, hash FROM pages
	WHERE crawl_id = ?
	ORDER BY position
	`, crawlID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var pages []model.PageRecord
	for rows.Next() {
		var p model.PageRecord
		if err := rows.Scan(&p.URL, &p.FullText, &p.UniqueText, &p.Hash); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, p)
	}

	return pages, rows.Err()
}

// LatestPageHashes returns URL to hash of the most recent successful crawl
// of baseURL. The map is empty if there is none.
func (cdb *CrawlDB) LatestPageHashes(ctx context.Context, baseURL string) (map[string]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT url, hash FROM pages
	WHERE crawl_id = (
		SELECT id FROM crawl_runs
		WHERE base_url = ? AND failed = 0
		ORDER BY finished_at DESC, id DESC
		LIMIT 1
	)
	`, baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to query page hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var u, h string
		if err := rows.Scan(&u, &h); err != nil {
			return nil, fmt.Errorf("failed to scan page hash: %w", err)
		}
		hashes[u] = h
	}

	return hashes, rows.Err()
}

// HasRecentCrawl reports whether baseURL was crawled successfully within
// the given duration.
func (cdb *CrawlDB) HasRecentCrawl(ctx context.Context, baseURL string, duration time.Duration) (bool, error) {
	cutoff := formatTime(time.Now().Add(-duration))

	var count int
	err := cdb.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM crawl_runs
	WHERE base_url = ? AND failed = 0 AND finished_at > ?
	`, baseURL, cutoff).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent crawl: %w", err)
	}

	return count > 0, nil
}

// formatTime renders t in UTC with the fixed layout.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timestampFormats contains the timestamp formats the archive may hold.
var timestampFormats = []string{
	timeLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC3339Nano,
}

// parseTimestamp parses s with the first matching format, or returns the
// zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
