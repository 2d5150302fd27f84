// Package webhook implements the webhook delivery sink: one JSON POST per
// digest to the destination URL.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/briefwire/briefwire/internal/producer"
	"github.com/briefwire/briefwire/internal/sink"
	"github.com/briefwire/briefwire/internal/task"
)

const maxResponseBytes = 1 << 20 // response bodies are only read for error text

// Config controls the webhook sink.
type Config struct {
	// Timeout bounds one delivery attempt. Default 30 s.
	Timeout time.Duration

	// RatePerSecond throttles outbound posts across all destinations.
	// Zero means no throttle.
	RatePerSecond float64

	// Burst is the rate limiter burst size. Default 1 when throttled.
	Burst int
}

// Sink delivers digests by POSTing JSON to the destination target URL.
type Sink struct {
	http    *http.Client
	limiter *rate.Limiter
}

// Compile-time interface check.
var _ sink.Sink = (*Sink)(nil)

// New creates a webhook sink.
func New(cfg Config) *Sink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	s := &Sink{
		http: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return s
}

// Kind implements sink.Sink.
func (s *Sink) Kind() task.DestinationKind { return task.DestWebhook }

// payload is the wire shape posted to the destination.
type payload struct {
	Ref       string `json:"ref"`
	Title     string `json:"title,omitempty"`
	Body      string `json:"body"`
	ItemCount int    `json:"item_count"`
	Format    string `json:"format,omitempty"`
}

// Deliver implements sink.Sink.
func (s *Sink) Deliver(ctx context.Context, a producer.Artifact, dest task.Destination) sink.Outcome {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return sink.Outcome{Message: fmt.Sprintf("rate limit wait: %v", err)}
		}
	}

	data, err := json.Marshal(payload{
		Ref:       a.Ref,
		Title:     a.Title,
		Body:      a.Body,
		ItemCount: a.ItemCount,
		Format:    dest.Format,
	})
	if err != nil {
		return sink.Outcome{Message: fmt.Sprintf("marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.Target, bytes.NewReader(data))
	if err != nil {
		return sink.Outcome{Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return sink.Outcome{Message: fmt.Sprintf("post: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		return sink.Outcome{Message: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(body), 200))}
	}

	return sink.Outcome{Success: true, Message: fmt.Sprintf("status %d", resp.StatusCode)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
