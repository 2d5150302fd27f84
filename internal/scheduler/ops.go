package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/briefwire/briefwire/internal/store"
	"github.com/briefwire/briefwire/internal/task"
)

// Schedule validates, persists, and arms a new task, returning its id.
// The rule is normalized in place; a rule that can never fire is rejected
// here, not at fire time.
func (s *Scheduler) Schedule(ctx context.Context, t *task.Task) (string, error) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return "", ErrNotRunning
	}

	t.Rule.Normalize()
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("scheduler: %w", err)
	}

	now := s.cfg.Now()
	next, ok := t.NextFire(now)
	if !ok {
		return "", ErrNeverFires
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.Active = true
	t.NextRun = &next

	if err := s.tasks.Save(ctx, t); err != nil {
		return "", fmt.Errorf("scheduler: persist task: %w", err)
	}

	s.armAt(t.ID, next)
	s.refreshGauges()
	s.logger.Info("task scheduled", "task_id", t.ID, "name", t.Name, "next_run", next)
	return t.ID, nil
}

// Cancel removes the task's trigger and its persisted record. An execution
// already in flight completes but writes nothing back. Reports whether the
// task was known.
func (s *Scheduler) Cancel(ctx context.Context, id string) (bool, error) {
	armed := s.disarm(id)

	existed, err := s.tasks.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("scheduler: delete task: %w", err)
	}
	if existed || armed {
		s.refreshGauges()
		s.logger.Info("task cancelled", "task_id", id)
	}
	return existed || armed, nil
}

// Pause deactivates the task. Its trigger stays registered but a fire on a
// paused task is a no-op. Reports whether the task was known.
func (s *Scheduler) Pause(ctx context.Context, id string) (bool, error) {
	return s.setActive(ctx, id, false)
}

// Resume reactivates a paused or disabled task and arms its next fire
// time. The failure counter is left as is; a caller re-enabling a task
// that exhausted its budget should call ResetFailures explicitly.
func (s *Scheduler) Resume(ctx context.Context, id string) (bool, error) {
	return s.setActive(ctx, id, true)
}

func (s *Scheduler) setActive(ctx context.Context, id string, active bool) (bool, error) {
	t, err := s.tasks.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("scheduler: load task: %w", err)
	}

	t.Active = active
	if active {
		now := s.cfg.Now()
		if next, ok := t.NextFire(now); ok {
			t.NextRun = &next
		} else {
			t.NextRun = nil
		}
	}

	if err := s.tasks.Update(ctx, t); err != nil {
		return false, fmt.Errorf("scheduler: update task: %w", err)
	}

	if active && t.NextRun != nil {
		s.armAt(id, *t.NextRun)
		s.logger.Info("task resumed", "task_id", id, "next_run", *t.NextRun)
	} else if !active {
		s.logger.Info("task paused", "task_id", id)
	}
	s.refreshGauges()
	return true, nil
}

// ResetFailures clears the task's failure counter. Reports whether the
// task was known.
func (s *Scheduler) ResetFailures(ctx context.Context, id string) (bool, error) {
	t, err := s.tasks.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("scheduler: load task: %w", err)
	}

	t.FailureCount = 0
	if err := s.tasks.Update(ctx, t); err != nil {
		return false, fmt.Errorf("scheduler: update task: %w", err)
	}
	return true, nil
}

// RunNow queues the task for immediate execution, outside its regular
// schedule. Reports whether the task was known and active.
func (s *Scheduler) RunNow(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	running := s.running
	_, armed := s.entries[id]
	s.mu.Unlock()
	if !running {
		return false, ErrNotRunning
	}

	t, err := s.tasks.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("scheduler: load task: %w", err)
	}
	if !t.Active {
		return false, nil
	}

	if !armed {
		// Make sure fire finds an entry to lock.
		s.armAt(id, s.cfg.Now())
		return true, nil
	}
	s.enqueue(id)
	return true, nil
}

// Status is one task's observable state.
type Status struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Active       bool       `json:"active"`
	RunCount     int        `json:"run_count"`
	FailureCount int        `json:"failure_count"`
	LastError    string     `json:"last_error,omitempty"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
}

// Status reports the task's counters, last error, and next fire time, or
// nil if the task is unknown.
func (s *Scheduler) Status(ctx context.Context, id string) (*Status, error) {
	t, err := s.tasks.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scheduler: load task: %w", err)
	}

	st := &Status{
		ID:           t.ID,
		Name:         t.Name,
		Active:       t.Active,
		RunCount:     t.RunCount,
		FailureCount: t.FailureCount,
		LastRun:      t.LastRun,
		NextRun:      t.NextRun,
	}

	recent, err := s.tasks.LoadResults(ctx, id, 1)
	if err == nil && len(recent) > 0 && !recent[0].Success {
		st.LastError = recent[0].ErrMessage
	}
	return st, nil
}

// Upcoming is one future fire time.
type Upcoming struct {
	TaskID string    `json:"task_id"`
	Name   string    `json:"name"`
	At     time.Time `json:"at"`
}

// Stats is the scheduler-wide observability snapshot.
type Stats struct {
	Running     bool       `json:"running"`
	TotalTasks  int        `json:"total_tasks"`
	ActiveTasks int        `json:"active_tasks"`
	QueueDepth  int        `json:"queue_depth"`
	Upcoming    []Upcoming `json:"upcoming"`
}

// Stats reports the running flag, task counts, and the next few fire
// times across all tasks, soonest first.
func (s *Scheduler) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	st := Stats{Running: s.running}
	if s.queue != nil {
		st.QueueDepth = len(s.queue)
	}
	s.mu.Unlock()

	all, err := s.tasks.LoadAll(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("scheduler: load tasks: %w", err)
	}

	st.TotalTasks = len(all)
	for _, t := range all {
		if !t.Active {
			continue
		}
		st.ActiveTasks++
		if t.NextRun != nil {
			st.Upcoming = append(st.Upcoming, Upcoming{TaskID: t.ID, Name: t.Name, At: *t.NextRun})
		}
	}

	sort.Slice(st.Upcoming, func(i, j int) bool { return st.Upcoming[i].At.Before(st.Upcoming[j].At) })
	if len(st.Upcoming) > s.cfg.UpcomingLimit {
		st.Upcoming = st.Upcoming[:s.cfg.UpcomingLimit]
	}
	return st, nil
}

// refreshGauges recounts the armed entries into the active-tasks gauge.
func (s *Scheduler) refreshGauges() {
	s.mu.Lock()
	n := len(s.entries)
	s.mu.Unlock()
	s.metrics.SetActiveTasks(n)
}
