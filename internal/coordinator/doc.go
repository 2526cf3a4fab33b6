// Package coordinator runs many site crawls concurrently.
//
// A Coordinator creates one crawler per CrawlTarget and runs them in
// goroutines. The crawls share nothing except the Fetcher (and therefore the
// HTTP connection pool) and a weighted semaphore that caps the number of
// fetches in flight across the whole run. Targets can be split into batches;
// each batch runs to completion before the next one starts, which bounds the
// number of open connections and in-memory page maps.
//
// Every target yields exactly one CrawlResult, in input order. A target that
// fails never affects the others.
package coordinator
