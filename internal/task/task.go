// Package task defines the scheduling data model: tasks, recurrence rules,
// destinations, and execution results. The recurrence calculator lives here
// so that rule validation and next-fire computation stay in one place.
package task

import (
	"fmt"
	"time"
)

// DestinationKind identifies a delivery target type.
type DestinationKind string

// Supported destination kinds.
const (
	DestChannel DestinationKind = "channel"
	DestWebhook DestinationKind = "webhook"
	DestEmail   DestinationKind = "email"
	DestFile    DestinationKind = "file"
)

// Destination is one delivery target for a produced digest. Immutable once
// created; a task holds an ordered list, the order only affects reporting.
type Destination struct {
	Kind    DestinationKind `json:"kind" yaml:"kind"`
	Target  string          `json:"target" yaml:"target"`
	Format  string          `json:"format,omitempty" yaml:"format,omitempty"`
	Enabled bool            `json:"enabled" yaml:"enabled"`
}

// Options controls how the digest is produced for one task.
type Options struct {
	// Lookback is the window of source content to cover, ending at fire time.
	Lookback time.Duration `json:"lookback" yaml:"lookback"`

	// MinItems is the minimum number of source items required to produce
	// a digest. Below this the producer reports insufficient content.
	MinItems int `json:"min_items,omitempty" yaml:"min_items,omitempty"`

	// Style is a free-form hint passed through to the producer.
	Style string `json:"style,omitempty" yaml:"style,omitempty"`
}

// Task is the identity and scheduling contract for one recurring job.
type Task struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	SourceRef    string         `json:"source_ref"`
	Rule         RecurrenceRule `json:"rule"`
	Destinations []Destination  `json:"destinations"`
	Options      Options        `json:"options"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by,omitempty"`

	LastRun *time.Time `json:"last_run,omitempty"`
	NextRun *time.Time `json:"next_run,omitempty"`

	RunCount     int           `json:"run_count"`
	FailureCount int           `json:"failure_count"`
	MaxFailures  int           `json:"max_failures"`
	RetryDelay   time.Duration `json:"retry_delay"`
}

// NextFire computes the task's next fire time from now. It returns false
// when the task will never fire again: a one-shot task that has already
// run is done regardless of its rule.
func (t *Task) NextFire(now time.Time) (time.Time, bool) {
	if t.Rule.Kind == Once && t.RunCount > 0 {
		return time.Time{}, false
	}
	return t.Rule.Next(now)
}

// Validate checks the task is schedulable: a valid rule and at least one
// destination of a known kind. Read-only; call Rule.Normalize first if the
// weekday set may contain duplicates.
func (t *Task) Validate() error {
	if err := t.Rule.Validate(); err != nil {
		return err
	}
	if len(t.Destinations) == 0 {
		return ErrNoDestinations
	}
	for _, d := range t.Destinations {
		switch d.Kind {
		case DestChannel, DestWebhook, DestEmail, DestFile:
		default:
			return fmt.Errorf("%w: %q", ErrUnknownDestination, d.Kind)
		}
	}
	return nil
}

// EnabledDestinations returns the destinations that should receive deliveries,
// preserving order.
func (t *Task) EnabledDestinations() []Destination {
	var out []Destination
	for _, d := range t.Destinations {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}
