// Package metrics exports crawl progress as Prometheus metrics.
//
// Collector implements crawler.Observer and coordinator.Listener, so the same
// value is handed to every Spider and to the Coordinator. It registers on its
// own registry; Handler serves that registry for scraping.
package metrics
