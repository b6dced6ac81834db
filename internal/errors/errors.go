package errors

import "errors"

// ErrSyncInProgress is returned when a sync trigger arrives while a sync for
// the same student is already running.
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrReauthRequired is returned when no usable access credential exists for a
// student. It is never silently retried.
var ErrReauthRequired = errors.New("no usable credential: reauthorization required")

// ErrNotFound is returned by store lookups that matched no row.
var ErrNotFound = errors.New("record not found")
