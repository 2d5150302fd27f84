// Package sourcetest provides test doubles for the source package.
package sourcetest

import (
	"context"
	"sync"
	"time"

	"github.com/briefwire/briefwire/internal/source"
)

// MockSource is a configurable test double for source.ContentSource.
// Set FetchFunc to control behavior; unset it returns Items as-is.
// Safe for concurrent use.
type MockSource struct {
	FetchFunc func(ctx context.Context, sourceRef string, start, end time.Time) ([]source.Item, error)
	Items     []source.Item

	mu         sync.Mutex
	FetchCalls int
	LastRef    string
}

// Compile-time interface check.
var _ source.ContentSource = (*MockSource)(nil)

// Fetch implements source.ContentSource and tracks call count.
func (m *MockSource) Fetch(ctx context.Context, sourceRef string, start, end time.Time) ([]source.Item, error) {
	m.mu.Lock()
	m.FetchCalls++
	m.LastRef = sourceRef
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, sourceRef, start, end)
	}
	return m.Items, nil
}
