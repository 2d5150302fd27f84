// Package executor runs one task to completion: fetch source content,
// produce the digest, fan it out to every enabled destination, and report
// an aggregated result. Delivery failures stay isolated per destination;
// the run itself succeeds as soon as the digest is produced.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/briefwire/briefwire/internal/metrics"
	"github.com/briefwire/briefwire/internal/producer"
	"github.com/briefwire/briefwire/internal/sink"
	"github.com/briefwire/briefwire/internal/source"
	"github.com/briefwire/briefwire/internal/store"
	"github.com/briefwire/briefwire/internal/task"
)

// Config holds executor tuning. Zero values get sensible defaults.
type Config struct {
	// FetchTimeout bounds the content fetch. Default 2 m.
	FetchTimeout time.Duration

	// ProduceTimeout bounds digest production. Default 5 m.
	ProduceTimeout time.Duration

	// DefaultLookback is the summarize window for tasks that do not set
	// one. Default 24 h.
	DefaultLookback time.Duration

	// ResultRetention is how long execution history is kept before
	// RunCleanup purges it. Default 30 days.
	ResultRetention time.Duration

	Logger *slog.Logger

	// Now is injectable for testing. Defaults to time.Now.
	Now func() time.Time

	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer
}

func (c Config) withDefaults() Config {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 2 * time.Minute
	}
	if c.ProduceTimeout <= 0 {
		c.ProduceTimeout = 5 * time.Minute
	}
	if c.DefaultLookback <= 0 {
		c.DefaultLookback = 24 * time.Hour
	}
	if c.ResultRetention <= 0 {
		c.ResultRetention = 30 * 24 * time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer("briefwire/executor")
	}
	return c
}

// Executor runs tasks. Safe for concurrent use; every collaborator it
// touches is required to be.
type Executor struct {
	src     source.ContentSource
	prod    producer.Producer
	sinks   *sink.Registry
	history store.Store
	metrics *metrics.Metrics
	cfg     Config
	logger  *slog.Logger
}

// New creates an Executor. All collaborators except metrics are required.
func New(src source.ContentSource, prod producer.Producer, sinks *sink.Registry,
	history store.Store, m *metrics.Metrics, cfg Config) (*Executor, error) {
	if src == nil {
		return nil, errors.New("executor: nil content source")
	}
	if prod == nil {
		return nil, errors.New("executor: nil producer")
	}
	if sinks == nil {
		return nil, errors.New("executor: nil sink registry")
	}
	if history == nil {
		return nil, errors.New("executor: nil store")
	}

	cfg = cfg.withDefaults()
	return &Executor{
		src:     src,
		prod:    prod,
		sinks:   sinks,
		history: history,
		metrics: m,
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "executor"),
	}, nil
}

// Run executes one task and returns the aggregated result. It never
// returns an error: every failure mode is folded into the result so the
// scheduler has a single bookkeeping path.
func (e *Executor) Run(ctx context.Context, t *task.Task) (res task.ExecutionResult) {
	start := e.cfg.Now()
	res = task.ExecutionResult{
		TaskID:      t.ID,
		ExecutionID: uuid.NewString(),
		StartedAt:   start,
	}

	ctx, span := e.cfg.Tracer.Start(ctx, "task.run", trace.WithAttributes(
		attribute.String("task.id", t.ID),
		attribute.String("task.name", t.Name),
	))
	defer func() {
		res.Duration = e.cfg.Now().Sub(start)
		if res.Success {
			span.SetStatus(codes.Ok, "")
		} else {
			span.SetStatus(codes.Error, res.ErrMessage)
		}
		span.End()
		e.metrics.RecordExecution(res.Success, res.Duration)
	}()

	// A panicking collaborator fails the run, never the scheduler.
	defer func() {
		if rec := recover(); rec != nil {
			res.Success = false
			res.ErrKind = task.ErrKindInternal
			res.ErrMessage = fmt.Sprintf("panic: %v", rec)
			e.logger.Error("execution panicked", "task_id", t.ID, "panic", rec)
		}
	}()

	items, err := e.fetch(ctx, t, start)
	if err != nil {
		res.ErrKind, res.ErrMessage = classifyFetch(err)
		e.logger.Warn("content fetch failed", "task_id", t.ID, "error", err)
		return res
	}

	artifact, err := e.produce(ctx, items, t.Options)
	if err != nil {
		res.ErrKind, res.ErrMessage = classifyProduce(err)
		if res.ErrKind == task.ErrKindInsufficientContent {
			e.logger.Info("not enough content for a digest",
				"task_id", t.ID, "items", len(items), "min_items", t.Options.MinItems)
		} else {
			e.logger.Warn("digest production failed", "task_id", t.ID, "error", err)
		}
		return res
	}

	// The run is a success once the digest exists; deliveries are
	// tracked per destination and never flip the run to failed.
	res.Success = true
	res.ArtifactRef = artifact.Ref
	res.Deliveries = e.fanOut(ctx, artifact, t)

	if n := res.DeliveryFailures(); n > 0 {
		e.logger.Warn("digest delivered with failures",
			"task_id", t.ID, "failed", n, "total", len(res.Deliveries))
	}
	return res
}

// RunCleanup purges the task's execution history older than the retention
// window. Same result shape as Run, no deliveries.
func (e *Executor) RunCleanup(ctx context.Context, t *task.Task) task.ExecutionResult {
	start := e.cfg.Now()
	res := task.ExecutionResult{
		TaskID:      t.ID,
		ExecutionID: uuid.NewString(),
		StartedAt:   start,
	}

	n, err := e.history.PruneResults(ctx, t.ID, e.cfg.ResultRetention)
	res.Duration = e.cfg.Now().Sub(start)
	if err != nil {
		res.ErrKind = task.ErrKindInternal
		res.ErrMessage = err.Error()
		return res
	}

	res.Success = true
	res.ArtifactRef = fmt.Sprintf("pruned:%d", n)
	if n > 0 {
		e.logger.Info("pruned execution history", "task_id", t.ID, "removed", n)
	}
	return res
}

func (e *Executor) fetch(ctx context.Context, t *task.Task, now time.Time) ([]source.Item, error) {
	lookback := t.Options.Lookback
	if lookback <= 0 {
		lookback = e.cfg.DefaultLookback
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	ctx, span := e.cfg.Tracer.Start(ctx, "task.fetch")
	defer span.End()

	items, err := e.src.Fetch(ctx, t.SourceRef, now.Add(-lookback), now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("items", len(items)))
	return items, nil
}

func (e *Executor) produce(ctx context.Context, items []source.Item, opts task.Options) (producer.Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ProduceTimeout)
	defer cancel()

	ctx, span := e.cfg.Tracer.Start(ctx, "task.produce")
	defer span.End()

	a, err := e.prod.Produce(ctx, items, opts)
	if err != nil {
		span.RecordError(err)
		return producer.Artifact{}, err
	}
	return a, nil
}

// fanOut delivers to every enabled destination independently, preserving
// destination order in the outcomes.
func (e *Executor) fanOut(ctx context.Context, a producer.Artifact, t *task.Task) []task.DeliveryOutcome {
	enabled := t.EnabledDestinations()
	if len(enabled) == 0 {
		return nil
	}

	ctx, span := e.cfg.Tracer.Start(ctx, "task.deliver",
		trace.WithAttributes(attribute.Int("destinations", len(enabled))))
	defer span.End()

	outcomes := make([]task.DeliveryOutcome, 0, len(enabled))
	for _, dest := range enabled {
		out := e.sinks.Deliver(ctx, a, dest)
		e.metrics.RecordDelivery(string(dest.Kind), out.Success)
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// classifyFetch maps a fetch error onto the result taxonomy.
func classifyFetch(err error) (task.ErrorKind, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return task.ErrKindTimeout, err.Error()
	}
	if errors.Is(err, source.ErrAccessDenied) || errors.Is(err, source.ErrNotFound) {
		return task.ErrKindFetch, err.Error()
	}
	return task.ErrKindFetch, err.Error()
}

// classifyProduce maps a producer error onto the result taxonomy.
func classifyProduce(err error) (task.ErrorKind, string) {
	switch {
	case producer.IsInsufficient(err):
		return task.ErrKindInsufficientContent, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return task.ErrKindTimeout, err.Error()
	default:
		return task.ErrKindProduce, err.Error()
	}
}
