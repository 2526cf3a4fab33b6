// Package database archives crawl results in SQLite.
//
// The archive keeps one crawl_runs row per crawled target and one pages row
// per harvested page, so results of earlier runs can be listed, failures
// reviewed and page hashes compared across runs to spot changed content.
//
// The driver is modernc.org/sqlite, a CGO-free SQLite. The database is a
// single file, sitescrape.db, in the data directory.
package database
