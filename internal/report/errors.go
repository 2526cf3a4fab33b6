package report

import "errors"

var (
	// ErrFailedResult is returned when a failed crawl is handed to TextWriter.
	ErrFailedResult = errors.New("refusing to write artifacts for a failed crawl")

	// ErrMalformedFailureLine is returned for a failure log line that does not
	// have the expected number of fields.
	ErrMalformedFailureLine = errors.New("malformed failure log line")
)
