package source

import "errors"

// Sentinel errors for content fetches.
var (
	// ErrAccessDenied indicates the source exists but cannot be read.
	ErrAccessDenied = errors.New("source: access denied")

	// ErrNotFound indicates the source reference does not resolve.
	ErrNotFound = errors.New("source: not found")
)
