package database

import "errors"

// ErrNotFound is returned by Open when the database must exist but doesn't.
var ErrNotFound = errors.New("database not found")
