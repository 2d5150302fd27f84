// Package producertest provides test doubles for the producer package.
package producertest

import (
	"context"
	"sync"

	"github.com/briefwire/briefwire/internal/producer"
	"github.com/briefwire/briefwire/internal/source"
	"github.com/briefwire/briefwire/internal/task"
)

// MockProducer is a configurable test double for producer.Producer.
// Set ProduceFunc to control behavior; unset it returns Artifact as-is.
// Safe for concurrent use.
type MockProducer struct {
	ProduceFunc func(ctx context.Context, items []source.Item, opts task.Options) (producer.Artifact, error)
	Artifact    producer.Artifact

	mu           sync.Mutex
	ProduceCalls int
}

// Compile-time interface check.
var _ producer.Producer = (*MockProducer)(nil)

// Produce implements producer.Producer and tracks call count.
func (m *MockProducer) Produce(ctx context.Context, items []source.Item, opts task.Options) (producer.Artifact, error) {
	m.mu.Lock()
	m.ProduceCalls++
	m.mu.Unlock()

	if m.ProduceFunc != nil {
		return m.ProduceFunc(ctx, items, opts)
	}
	return m.Artifact, nil
}
