// Package sinktest provides test doubles for the sink package.
package sinktest

import (
	"context"
	"sync"

	"github.com/briefwire/briefwire/internal/producer"
	"github.com/briefwire/briefwire/internal/sink"
	"github.com/briefwire/briefwire/internal/task"
)

// MockSink is a configurable test double for sink.Sink.
// Set DeliverFunc to control behavior; unset it reports success.
// Safe for concurrent use.
type MockSink struct {
	KindVal     task.DestinationKind
	DeliverFunc func(ctx context.Context, a producer.Artifact, dest task.Destination) sink.Outcome

	mu           sync.Mutex
	DeliverCalls int
	Targets      []string
}

// Compile-time interface check.
var _ sink.Sink = (*MockSink)(nil)

// Kind implements sink.Sink.
func (m *MockSink) Kind() task.DestinationKind { return m.KindVal }

// Deliver implements sink.Sink and records the target.
func (m *MockSink) Deliver(ctx context.Context, a producer.Artifact, dest task.Destination) sink.Outcome {
	m.mu.Lock()
	m.DeliverCalls++
	m.Targets = append(m.Targets, dest.Target)
	m.mu.Unlock()

	if m.DeliverFunc != nil {
		return m.DeliverFunc(ctx, a, dest)
	}
	return sink.Outcome{Success: true, Message: "delivered"}
}

// Calls returns how many deliveries the sink has handled.
func (m *MockSink) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DeliverCalls
}
