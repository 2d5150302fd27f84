package sink

import "errors"

// Sentinel errors for sink registration and lookup.
var (
	// ErrNoSink indicates a destination kind with no registered sink.
	ErrNoSink = errors.New("sink: no sink for destination kind")

	// ErrDuplicateSink indicates a sink for that kind is already registered.
	ErrDuplicateSink = errors.New("sink: duplicate destination kind")
)
