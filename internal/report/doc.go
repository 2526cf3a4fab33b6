// Package report writes crawl output.
//
// Two kinds of output live here:
//   - Crawl artifacts: TextWriter stores the harvested text of each
//     successful target as a "complete" and a "unique_only" file, and
//     FailureLog appends failed targets to a durable log.
//   - Run summaries: SimpleWriter (terminal), MarkdownWriter and JSONWriter
//     render a model.RunSummary. They implement Writer and can be combined
//     with MultiWriter.
package report
