// Package scheduler owns the set of active tasks. It keeps one timer per
// task, loads persisted state at startup, hands due tasks to a bounded
// worker pool, and applies the failure policy to each result before
// writing the task back to the store.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/briefwire/briefwire/internal/metrics"
	"github.com/briefwire/briefwire/internal/policy"
	"github.com/briefwire/briefwire/internal/store"
	"github.com/briefwire/briefwire/internal/task"
)

// Runner executes one task. Satisfied by executor.Executor.
type Runner interface {
	Run(ctx context.Context, t *task.Task) task.ExecutionResult
	RunCleanup(ctx context.Context, t *task.Task) task.ExecutionResult
}

// Config holds scheduler tuning. Zero values get sensible defaults.
type Config struct {
	// Workers is the number of concurrent executions. Default 4.
	Workers int

	// QueueSize bounds the due-task queue. A full queue drops the tick;
	// the task fires again at its next regular slot. Default 64.
	QueueSize int

	// UpcomingLimit caps the fire times reported by Stats. Default 5.
	UpcomingLimit int

	// TaskRetention is how long inactive tasks are kept before the
	// housekeeping pass purges them. Default 30 days.
	TaskRetention time.Duration

	// CleanupInterval is how often housekeeping runs. Default 6 h;
	// negative disables it.
	CleanupInterval time.Duration

	Policy policy.Policy
	Logger *slog.Logger

	// Now is injectable for testing. Defaults to time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.UpcomingLimit <= 0 {
		c.UpcomingLimit = 5
	}
	if c.TaskRetention <= 0 {
		c.TaskRetention = 30 * 24 * time.Hour
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = 6 * time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// entry is the per-task runtime state: the armed timer and the mutex that
// keeps a task from overlapping itself.
type entry struct {
	timer *time.Timer
	run   *sync.Mutex
}

// Scheduler drives task execution. Construct with New, then Start.
// All methods are safe for concurrent use.
type Scheduler struct {
	tasks   store.Store
	runner  Runner
	metrics *metrics.Metrics
	cfg     Config
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	entries map[string]*entry
	queue   chan string
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a stopped Scheduler. metrics may be nil.
func New(tasks store.Store, runner Runner, m *metrics.Metrics, cfg Config) (*Scheduler, error) {
	if tasks == nil {
		return nil, fmt.Errorf("scheduler: nil store")
	}
	if runner == nil {
		return nil, fmt.Errorf("scheduler: nil runner")
	}

	cfg = cfg.withDefaults()
	return &Scheduler{
		tasks:   tasks,
		runner:  runner,
		metrics: m,
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "scheduler"),
		entries: make(map[string]*entry),
	}, nil
}

// Start loads every persisted task, re-arms its trigger, and begins
// firing. Stale next-run times from a downtime window are recomputed, not
// fired retroactively. Idempotent if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.queue = make(chan string, s.cfg.QueueSize)
	s.running = true

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(runCtx)
	}
	if s.cfg.CleanupInterval > 0 {
		s.wg.Add(1)
		go s.housekeeping(runCtx)
	}
	s.mu.Unlock()

	loaded, err := s.tasks.LoadAll(ctx)
	if err != nil {
		s.Stop()
		return fmt.Errorf("scheduler: load tasks: %w", err)
	}

	now := s.cfg.Now()
	active := 0
	for _, t := range loaded {
		if !t.Active {
			continue
		}
		if err := s.rearm(ctx, t, now); err != nil {
			s.logger.Warn("could not arm task", "task_id", t.ID, "error", err)
			continue
		}
		active++
	}

	s.metrics.SetActiveTasks(active)
	s.logger.Info("scheduler started", "tasks", len(loaded), "armed", active, "workers", s.cfg.Workers)
	return nil
}

// Stop cancels every trigger and shuts the workers down. Task records are
// not mutated. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	for id, e := range s.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.entries, id)
	}
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// rearm recomputes the task's next fire time when missing or stale and
// arms a timer for it. The caller holds no lock.
func (s *Scheduler) rearm(ctx context.Context, t *task.Task, now time.Time) error {
	next := time.Time{}
	if t.NextRun != nil && t.NextRun.After(now) {
		next = *t.NextRun
	} else {
		n, ok := t.NextFire(now)
		if !ok {
			// Completed one-time task: nothing left to fire.
			t.NextRun = nil
			if err := s.tasks.Update(ctx, t); err != nil {
				return err
			}
			return nil
		}
		next = n
		t.NextRun = &next
		if err := s.tasks.Update(ctx, t); err != nil {
			return err
		}
	}

	s.armAt(t.ID, next)
	return nil
}

// armAt registers the task's timer, replacing any previous one.
func (s *Scheduler) armAt(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	e, ok := s.entries[id]
	if !ok {
		e = &entry{run: &sync.Mutex{}}
		s.entries[id] = e
	}
	if e.timer != nil {
		e.timer.Stop()
	}

	delay := at.Sub(s.cfg.Now())
	if delay < 0 {
		delay = 0
	}
	e.timer = time.AfterFunc(delay, func() { s.enqueue(id) })
}

// disarm removes the task's timer and entry. Reports whether one existed.
func (s *Scheduler) disarm(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(s.entries, id)
	return true
}

func (s *Scheduler) enqueue(id string) {
	s.mu.Lock()
	q := s.queue
	running := s.running
	s.mu.Unlock()

	if !running || q == nil {
		return
	}
	select {
	case q <- id:
		s.metrics.SetQueueDepth(len(q))
	default:
		s.logger.Warn("queue full, dropping tick", "task_id", id, "queue_cap", cap(q))
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			s.metrics.SetQueueDepth(len(s.queue))
			s.fire(ctx, id)
		}
	}
}

// fire runs one due task end to end. Every failure mode is contained
// here; nothing escalates past the worker loop.
func (s *Scheduler) fire(ctx context.Context, id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		// Cancelled between tick and dequeue.
		return
	}

	// TryLock keeps a task from overlapping itself. A tick that arrives
	// while the previous run is still in flight is skipped; the run's
	// write-back re-arms the next slot.
	if !e.run.TryLock() {
		s.logger.Warn("task still running, skipping tick", "task_id", id)
		return
	}
	defer e.run.Unlock()

	t, err := s.tasks.Load(ctx, id)
	if err != nil {
		s.logger.Warn("due task vanished", "task_id", id, "error", err)
		s.disarm(id)
		return
	}
	if !t.Active {
		// Paused after the timer was armed. Stay registered, do not fire.
		return
	}

	s.logger.Debug("task fired", "task_id", id, "name", t.Name)
	res := s.runner.Run(ctx, t)
	s.afterRun(ctx, t, res)
}

// afterRun persists the result, applies the failure policy against the
// freshest task record, and arms the next trigger. A task cancelled or
// paused while executing is respected: existence and activity are
// re-checked before any write-back.
func (s *Scheduler) afterRun(ctx context.Context, ran *task.Task, res task.ExecutionResult) {
	if err := s.tasks.SaveResult(ctx, res); err != nil {
		s.logger.Error("could not persist execution result", "task_id", ran.ID, "error", err)
	}

	fresh, err := s.tasks.Load(ctx, ran.ID)
	if err != nil {
		// Cancelled mid-run. The in-flight run finished, nothing to
		// write back.
		s.disarm(ran.ID)
		return
	}

	now := s.cfg.Now()
	decision := s.cfg.Policy.Apply(fresh, res.Success, now)

	var next time.Time
	var hasNext bool
	switch decision {
	case policy.Reschedule:
		next, hasNext = fresh.NextFire(now)
	case policy.Retry:
		next, hasNext = s.cfg.Policy.RetryAt(fresh, now), true
		s.logger.Info("execution failed, retry scheduled",
			"task_id", fresh.ID, "failures", fresh.FailureCount, "retry_at", next)
	case policy.Disable:
		hasNext = false
		s.logger.Warn("failure budget exhausted, task disabled",
			"task_id", fresh.ID, "failures", fresh.FailureCount)
	}

	if hasNext && fresh.Active {
		fresh.NextRun = &next
	} else {
		fresh.NextRun = nil
	}

	if err := s.tasks.Update(ctx, fresh); err != nil {
		s.logger.Error("could not write task back", "task_id", fresh.ID, "error", err)
		return
	}

	if fresh.NextRun != nil {
		s.armAt(fresh.ID, *fresh.NextRun)
	} else {
		s.disarm(fresh.ID)
	}
}

// housekeeping periodically purges long-inactive tasks and per-task
// execution history beyond retention.
func (s *Scheduler) housekeeping(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runHousekeeping(ctx)
		}
	}
}

func (s *Scheduler) runHousekeeping(ctx context.Context) {
	removed, err := s.tasks.CleanupOlderThan(ctx, s.cfg.TaskRetention)
	if err != nil {
		s.logger.Error("task cleanup failed", "error", err)
	} else if removed > 0 {
		s.logger.Info("purged inactive tasks", "count", removed)
	}

	remaining, err := s.tasks.LoadAll(ctx)
	if err != nil {
		s.logger.Error("could not enumerate tasks for history cleanup", "error", err)
		return
	}
	for _, t := range remaining {
		if res := s.runner.RunCleanup(ctx, t); !res.Success {
			s.logger.Warn("history cleanup failed", "task_id", t.ID, "error", res.ErrMessage)
		}
	}
}
