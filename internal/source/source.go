// Package source defines the content-source collaborator: where raw items
// come from before they are condensed into a digest. Concrete platform
// readers live outside the scheduling core and implement ContentSource.
package source

import (
	"context"
	"time"
)

// Item is one unit of source content inside a fetch window.
type Item struct {
	ID       string    `json:"id"`
	Author   string    `json:"author,omitempty"`
	Content  string    `json:"content"`
	PostedAt time.Time `json:"posted_at"`
}

// ContentSource fetches the items posted to a source reference within
// [start, end). Implementations should honour ctx deadlines.
type ContentSource interface {
	Fetch(ctx context.Context, sourceRef string, start, end time.Time) ([]Item, error)
}
