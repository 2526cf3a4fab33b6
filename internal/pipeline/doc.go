// Package pipeline runs the persistence steps for each finished crawl.
//
// Every CrawlResult the coordinator produces is passed through a Pipeline:
// an ordered list of Steps that archive the result in SQLite, write the text
// artifacts of successful crawls, append failed targets to the failure log,
// and collect results for the run summary. Steps treat the result as
// read-only, so one Pipeline can process results from many goroutines.
package pipeline
