package channel

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/briefwire/briefwire/internal/producer"
	"github.com/briefwire/briefwire/internal/task"
)

type fakeSender struct {
	err      error
	lastRef  string
	lastText string
}

func (f *fakeSender) SendMessage(_ context.Context, channelRef, text, _ string) error {
	f.lastRef = channelRef
	f.lastText = text
	return f.err
}

func TestDeliver_ForwardsToSender(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	s := New(sender)

	out := s.Deliver(context.Background(),
		producer.Artifact{Title: "Daily", Body: "body"},
		task.Destination{Kind: task.DestChannel, Target: "general"})

	if !out.Success {
		t.Fatalf("outcome = %+v, want success", out)
	}
	if sender.lastRef != "general" {
		t.Errorf("channel ref = %q", sender.lastRef)
	}
	if !strings.HasPrefix(sender.lastText, "Daily\n\n") {
		t.Errorf("text = %q, want title prefix", sender.lastText)
	}
}

func TestDeliver_SenderError(t *testing.T) {
	t.Parallel()

	s := New(&fakeSender{err: errors.New("channel archived")})
	out := s.Deliver(context.Background(), producer.Artifact{Body: "x"},
		task.Destination{Kind: task.DestChannel, Target: "general"})

	if out.Success {
		t.Error("sender error should be a failed delivery")
	}
}

func TestDeliver_NilSender(t *testing.T) {
	t.Parallel()

	s := New(nil)
	out := s.Deliver(context.Background(), producer.Artifact{}, task.Destination{Kind: task.DestChannel})
	if out.Success {
		t.Error("nil sender should fail deliveries, not panic")
	}
}
