// Package main provides the entry point for the sitescrape CLI.
//
// sitescrape crawls websites and saves the visible text of every page, once
// in full and once with text already seen elsewhere on the site removed.
//
// Usage:
//
//	sitescrape crawl <url>...
//	sitescrape crawl --list companies.xlsx
//
// See --help for all available options.
package main

func main() {
	Execute()
}
