// Package producer defines the digest-producer collaborator: the step that
// turns fetched source items into a deliverable artifact. The scheduling
// core only needs the interface; the actual text generation lives outside.
package producer

import (
	"context"
	"time"

	"github.com/briefwire/briefwire/internal/source"
	"github.com/briefwire/briefwire/internal/task"
)

// Artifact is one produced digest.
type Artifact struct {
	// Ref is a stable reference for reporting and history (not the content).
	Ref string `json:"ref"`

	Title      string    `json:"title,omitempty"`
	Body       string    `json:"body"`
	ItemCount  int       `json:"item_count"`
	ProducedAt time.Time `json:"produced_at"`
}

// Producer condenses source items into an artifact according to the task's
// options. Insufficient input is reported as ErrInsufficientContent, not as
// an infrastructure fault.
type Producer interface {
	Produce(ctx context.Context, items []source.Item, opts task.Options) (Artifact, error)
}
