package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/briefwire/briefwire/internal/producer"
	"github.com/briefwire/briefwire/internal/task"
)

// Registry routes deliveries to the sink registered for each destination
// kind. It is an explicitly owned, injected object: construct one per
// executor, no package-level state.
type Registry struct {
	mu    sync.RWMutex
	sinks map[task.DestinationKind]Sink
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[task.DestinationKind]Sink),
	}
}

// Register adds a sink for its kind.
// Returns ErrDuplicateSink if the kind is already taken.
func (r *Registry) Register(s Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := s.Kind()
	if _, exists := r.sinks[kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSink, kind)
	}
	r.sinks[kind] = s
	return nil
}

// Get returns the sink registered for kind, or false if none.
func (r *Registry) Get(kind task.DestinationKind) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sinks[kind]
	return s, ok
}

// Kinds returns the registered destination kinds.
func (r *Registry) Kinds() []task.DestinationKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]task.DestinationKind, 0, len(r.sinks))
	for k := range r.sinks {
		kinds = append(kinds, k)
	}
	return kinds
}

// Deliver sends the artifact to one destination and converts the attempt
// into a DeliveryOutcome. An unregistered kind and a panicking sink both
// surface as failed outcomes: nothing escalates past this boundary.
func (r *Registry) Deliver(ctx context.Context, a producer.Artifact, dest task.Destination) (out task.DeliveryOutcome) {
	out = task.DeliveryOutcome{Kind: dest.Kind, Target: dest.Target}

	s, ok := r.Get(dest.Kind)
	if !ok {
		out.Message = fmt.Sprintf("%v: %s", ErrNoSink, dest.Kind)
		return out
	}

	defer func() {
		if rec := recover(); rec != nil {
			out.Success = false
			out.Message = fmt.Sprintf("sink panicked: %v", rec)
		}
	}()

	res := s.Deliver(ctx, a, dest)
	out.Success = res.Success
	out.Message = res.Message
	return out
}
