// Package model defines the core data structures shared by the crawler,
// the coordinator and the persistence layers.
//
// This package contains the following main types:
//   - CrawlTarget: One independent crawl job (base URL, identifier, label)
//   - PageRecord: The harvested text of one fetched page
//   - CrawlResult: The terminal artifact of one site crawl
//
// The crawler, coordinator, pipeline, report and database packages all
// share these types.
//
// The models are designed to be serializable to JSON for summary output and
// database storage.
package model
