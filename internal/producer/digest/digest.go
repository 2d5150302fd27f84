// Package digest implements a plain-text Producer: it folds the fetched
// items into a line-per-item digest body. It stands in for a richer
// summarizer behind the same interface.
package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/briefwire/briefwire/internal/producer"
	"github.com/briefwire/briefwire/internal/source"
	"github.com/briefwire/briefwire/internal/task"
)

// Styles understood by the producer. Anything else falls back to full.
const (
	StyleFull      = "full"      // author and complete content per line
	StyleHeadlines = "headlines" // first line of each item only
)

// headlineLimit caps a headline line length.
const headlineLimit = 120

// Producer renders plain-text digests.
type Producer struct {
	// Now is injectable for testing. Defaults to time.Now.
	Now func() time.Time
}

// Compile-time interface check.
var _ producer.Producer = (*Producer)(nil)

// New creates a digest Producer.
func New() *Producer {
	return &Producer{Now: time.Now}
}

// Produce implements producer.Producer. Fewer items than the task's
// MinItems (at least one) yields ErrInsufficientContent.
func (p *Producer) Produce(ctx context.Context, items []source.Item, opts task.Options) (producer.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return producer.Artifact{}, err
	}

	min := opts.MinItems
	if min < 1 {
		min = 1
	}
	if len(items) < min {
		return producer.Artifact{}, fmt.Errorf("%w: %d items, need %d",
			producer.ErrInsufficientContent, len(items), min)
	}

	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		if item.Author != "" {
			b.WriteString(item.Author)
			b.WriteString(": ")
		}
		b.WriteString(renderContent(item.Content, opts.Style))
		b.WriteByte('\n')
	}

	return producer.Artifact{
		Ref:        "digest-" + uuid.NewString(),
		Title:      fmt.Sprintf("Digest: %d items", len(items)),
		Body:       b.String(),
		ItemCount:  len(items),
		ProducedAt: now,
	}, nil
}

func renderContent(content, style string) string {
	if style != StyleHeadlines {
		return content
	}
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		content = content[:i]
	}
	if len(content) > headlineLimit {
		content = content[:headlineLimit-3] + "..."
	}
	return content
}
