// Package gateway provides the HTTP admin surface: the scheduling API,
// a health endpoint, and prometheus metrics. It binds to loopback by
// default and carries no business logic of its own.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/briefwire/briefwire/internal/scheduler"
	"github.com/briefwire/briefwire/internal/store"
)

// Config holds the HTTP server settings.
type Config struct {
	// Listen is the bind address. Default "127.0.0.1:8080".
	Listen string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}

// Gateway is the HTTP admin server. Construct with New, then Start.
type Gateway struct {
	cfg       Config
	sched     *scheduler.Scheduler
	tasks     store.Store
	registry  *prometheus.Registry
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a Gateway. registry may be nil, which disables /metrics.
func New(sched *scheduler.Scheduler, tasks store.Store, registry *prometheus.Registry,
	logger *slog.Logger, cfg Config) (*Gateway, error) {
	if sched == nil {
		return nil, errors.New("gateway: nil scheduler")
	}
	if tasks == nil {
		return nil, errors.New("gateway: nil store")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Gateway{
		cfg:      cfg.withDefaults(),
		sched:    sched,
		tasks:    tasks,
		registry: registry,
		logger:   logger.With("component", "gateway"),
	}, nil
}

// Start binds the listen address and serves in the background.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:         g.cfg.Listen,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.cfg.ReadTimeout,
		WriteTimeout: g.cfg.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.cfg.Listen)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.cfg.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
