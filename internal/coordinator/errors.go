package coordinator

import "errors"

// errNoResult is recorded for a crawler that returned no result.
var errNoResult = errors.New("crawler returned no result")
