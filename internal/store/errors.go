package store

import "errors"

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates no task exists under the requested id.
	ErrNotFound = errors.New("store: task not found")

	// ErrBadBundle indicates an export bundle that cannot be parsed at all.
	ErrBadBundle = errors.New("store: invalid export bundle")
)
