// Package channel implements the chat-channel delivery sink. The concrete
// platform transport stays outside the scheduling core: this sink forwards
// to an injected Sender.
package channel

import (
	"context"
	"fmt"

	"github.com/briefwire/briefwire/internal/producer"
	"github.com/briefwire/briefwire/internal/sink"
	"github.com/briefwire/briefwire/internal/task"
)

// Sender posts one message to a platform channel. Implemented by the chat
// front-end that embeds the scheduling core.
type Sender interface {
	SendMessage(ctx context.Context, channelRef, text, format string) error
}

// Sink forwards digests to a platform channel through a Sender.
type Sink struct {
	sender Sender
}

// Compile-time interface check.
var _ sink.Sink = (*Sink)(nil)

// New creates a channel sink around the given sender.
func New(sender Sender) *Sink {
	return &Sink{sender: sender}
}

// Kind implements sink.Sink.
func (s *Sink) Kind() task.DestinationKind { return task.DestChannel }

// Deliver implements sink.Sink.
func (s *Sink) Deliver(ctx context.Context, a producer.Artifact, dest task.Destination) sink.Outcome {
	if s.sender == nil {
		return sink.Outcome{Message: "no channel sender configured"}
	}

	text := a.Body
	if a.Title != "" {
		text = a.Title + "\n\n" + a.Body
	}

	if err := s.sender.SendMessage(ctx, dest.Target, text, dest.Format); err != nil {
		return sink.Outcome{Message: fmt.Sprintf("send: %v", err)}
	}
	return sink.Outcome{Success: true, Message: "posted to " + dest.Target}
}
