// Package sink defines delivery targets for produced digests and the
// registry that fans one artifact out to many destinations. Concrete sinks
// (webhook, file, smtp, channel) live in subpackages.
package sink

import (
	"context"

	"github.com/briefwire/briefwire/internal/producer"
	"github.com/briefwire/briefwire/internal/task"
)

// Outcome is the result of one delivery attempt. Sinks report failures
// here instead of returning errors: a delivery problem must never escape
// the sink boundary.
type Outcome struct {
	Success bool
	Message string
}

// Sink delivers an artifact to one destination kind.
type Sink interface {
	// Kind returns the destination kind this sink serves.
	Kind() task.DestinationKind

	// Deliver sends the artifact to the destination target in the
	// requested format. Never panics past its own boundary.
	Deliver(ctx context.Context, a producer.Artifact, dest task.Destination) Outcome
}
