// Package feed implements a ContentSource backed by an HTTP JSON feed.
// The endpoint is expected to return {"items": [...]} filtered by the
// ref/since/until query parameters.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/briefwire/briefwire/internal/source"
)

// Config holds the feed client settings.
type Config struct {
	// URL is the feed endpoint.
	URL string

	// Token is sent as a bearer token when set.
	Token string

	// Timeout bounds one request. Default 30 s.
	Timeout time.Duration

	// Client is injectable for testing. Defaults to a dedicated client.
	Client *http.Client
}

// Source fetches items from an HTTP JSON feed.
type Source struct {
	cfg    Config
	client *http.Client
}

// Compile-time interface check.
var _ source.ContentSource = (*Source)(nil)

// New creates a feed Source.
func New(cfg Config) (*Source, error) {
	if cfg.URL == "" {
		return nil, errors.New("feed: empty URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Source{cfg: cfg, client: client}, nil
}

// envelope is the feed's response body.
type envelope struct {
	Items []source.Item `json:"items"`
}

// Fetch implements source.ContentSource.
func (s *Source) Fetch(ctx context.Context, sourceRef string, start, end time.Time) ([]source.Item, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("feed: parse url: %w", err)
	}
	q := u.Query()
	q.Set("ref", sourceRef)
	q.Set("since", start.UTC().Format(time.RFC3339))
	q.Set("until", end.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("feed: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed: fetch %s: %w", sourceRef, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("feed: %s: %w", sourceRef, source.ErrAccessDenied)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("feed: %s: %w", sourceRef, source.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("feed: %s: unexpected status %d", sourceRef, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("feed: decode response: %w", err)
	}
	return env.Items, nil
}
