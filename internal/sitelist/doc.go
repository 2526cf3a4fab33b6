// Package sitelist turns external site lists into crawl targets.
//
// Targets come from a spreadsheet with one row per organization (read with
// excelize), from the targets section of the config file, or from URLs on
// the command line. Rows without an absolute http(s) homepage and names on
// the caller's blocklist are dropped.
package sitelist
