package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/briefwire/briefwire/internal/policy"
	"github.com/briefwire/briefwire/internal/store/sqlite"
	"github.com/briefwire/briefwire/internal/task"
)

// stubRunner is a controllable Runner.
type stubRunner struct {
	mu       sync.Mutex
	runs     int
	cleanups int
	fail     bool
	block    chan struct{} // when set, Run waits for it to close
}

func (r *stubRunner) Run(_ context.Context, t *task.Task) task.ExecutionResult {
	r.mu.Lock()
	r.runs++
	fail := r.fail
	block := r.block
	r.mu.Unlock()

	if block != nil {
		<-block
	}

	res := task.ExecutionResult{
		TaskID:      t.ID,
		ExecutionID: "x",
		Success:     !fail,
		StartedAt:   time.Now(),
	}
	if fail {
		res.ErrKind = task.ErrKindFetch
		res.ErrMessage = "source unavailable"
	} else {
		res.ArtifactRef = "digest"
	}
	return res
}

func (r *stubRunner) RunCleanup(_ context.Context, t *task.Task) task.ExecutionResult {
	r.mu.Lock()
	r.cleanups++
	r.mu.Unlock()
	return task.ExecutionResult{TaskID: t.ID, Success: true}
}

func (r *stubRunner) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *stubRunner, *sqlite.Store) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "sched.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	runner := &stubRunner{}
	cfg.Logger = logger
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = -1
	}
	s, err := New(st, runner, nil, cfg)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, runner, st
}

func onceTask(id string, at time.Time) *task.Task {
	return &task.Task{
		ID:        id,
		Name:      "once " + id,
		SourceRef: "room-1",
		Rule:      task.RecurrenceRule{Kind: task.Once, Once: at},
		Destinations: []task.Destination{
			{Kind: task.DestChannel, Target: "general", Enabled: true},
		},
	}
}

func dailyTask(id string) *task.Task {
	t := onceTask(id, time.Time{})
	t.Name = "daily " + id
	t.Rule = task.RecurrenceRule{Kind: task.Daily, At: "09:00"}
	return t
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestScheduleRequiresRunning(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestScheduler(t, Config{})
	_, err := s.Schedule(context.Background(), dailyTask("t-1"))
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("err = %v, want ErrNotRunning", err)
	}
}

func TestScheduleRejectsInvalidRule(t *testing.T) {
	t.Parallel()

	s, _, st := newTestScheduler(t, Config{})
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	bad := dailyTask("t-1")
	bad.Rule = task.RecurrenceRule{Kind: task.Weekly, At: "09:00"}
	if _, err := s.Schedule(ctx, bad); !errors.Is(err, task.ErrNoWeekdays) {
		t.Errorf("err = %v, want ErrNoWeekdays", err)
	}

	// Rejected tasks are never persisted.
	if all, _ := st.LoadAll(ctx); len(all) != 0 {
		t.Errorf("store has %d tasks, want 0", len(all))
	}
}

func TestScheduleRejectsRuleThatNeverFires(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestScheduler(t, Config{})
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	past := onceTask("t-1", time.Now().Add(-time.Hour))
	if _, err := s.Schedule(ctx, past); !errors.Is(err, ErrNeverFires) {
		t.Errorf("err = %v, want ErrNeverFires", err)
	}
}

func TestOnceTaskFiresAndCompletes(t *testing.T) {
	t.Parallel()

	s, runner, st := newTestScheduler(t, Config{})
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	id, err := s.Schedule(ctx, onceTask("t-1", time.Now().Add(30*time.Millisecond)))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	waitFor(t, 2*time.Second, "the run to complete", func() bool {
		got, err := st.Load(ctx, id)
		return err == nil && got.RunCount == 1
	})

	got, err := st.Load(ctx, id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.NextRun != nil {
		t.Errorf("NextRun = %v, want nil for a completed one-time task", got.NextRun)
	}
	if got.FailureCount != 0 {
		t.Errorf("FailureCount = %d, want 0", got.FailureCount)
	}
	if runner.Runs() != 1 {
		t.Errorf("runs = %d, want 1", runner.Runs())
	}

	results, err := st.LoadResults(ctx, id, 10)
	if err != nil || len(results) != 1 {
		t.Fatalf("results = %v (err %v), want exactly one", results, err)
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()

	s, _, st := newTestScheduler(t, Config{})
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	if ok, err := s.Cancel(ctx, "unknown"); err != nil || ok {
		t.Errorf("cancel unknown = (%v, %v), want (false, nil)", ok, err)
	}

	id, err := s.Schedule(ctx, dailyTask("t-1"))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if ok, err := s.Cancel(ctx, id); err != nil || !ok {
		t.Fatalf("cancel known = (%v, %v), want (true, nil)", ok, err)
	}

	if _, err := st.Load(ctx, id); err == nil {
		t.Error("task still in store after cancel")
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.ActiveTasks != 0 {
		t.Errorf("ActiveTasks = %d, want 0", stats.ActiveTasks)
	}
}

func TestPauseSuppressesFire(t *testing.T) {
	t.Parallel()

	s, runner, st := newTestScheduler(t, Config{})
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	id, err := s.Schedule(ctx, onceTask("t-1", time.Now().Add(40*time.Millisecond)))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if ok, err := s.Pause(ctx, id); err != nil || !ok {
		t.Fatalf("pause = (%v, %v), want (true, nil)", ok, err)
	}

	time.Sleep(150 * time.Millisecond)
	if runner.Runs() != 0 {
		t.Errorf("paused task ran %d times", runner.Runs())
	}
	got, err := st.Load(ctx, id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Active {
		t.Error("task still active after pause")
	}
}

func TestResumeArmsNextFire(t *testing.T) {
	t.Parallel()

	s, _, st := newTestScheduler(t, Config{})
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	id, err := s.Schedule(ctx, dailyTask("t-1"))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := s.Pause(ctx, id); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// Resume does not touch the failure counter.
	seed, _ := st.Load(ctx, id)
	seed.FailureCount = 2
	if err := st.Update(ctx, seed); err != nil {
		t.Fatalf("seed update: %v", err)
	}

	if ok, err := s.Resume(ctx, id); err != nil || !ok {
		t.Fatalf("resume = (%v, %v), want (true, nil)", ok, err)
	}

	got, err := st.Load(ctx, id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Active {
		t.Error("task inactive after resume")
	}
	if got.NextRun == nil || !got.NextRun.After(time.Now()) {
		t.Errorf("NextRun = %v, want a future time", got.NextRun)
	}
	if got.FailureCount != 2 {
		t.Errorf("FailureCount = %d, resume must not clear it", got.FailureCount)
	}

	if ok, err := s.ResetFailures(ctx, id); err != nil || !ok {
		t.Fatalf("reset failures = (%v, %v), want (true, nil)", ok, err)
	}
	got, _ = st.Load(ctx, id)
	if got.FailureCount != 0 {
		t.Errorf("FailureCount = %d after explicit reset, want 0", got.FailureCount)
	}
}

func TestFailuresDisableTaskAtBudget(t *testing.T) {
	t.Parallel()

	s, runner, st := newTestScheduler(t, Config{
		Policy: policy.Policy{BaseDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond},
	})
	runner.fail = true
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	tk := onceTask("t-1", time.Now().Add(20*time.Millisecond))
	tk.MaxFailures = 2
	tk.RetryDelay = 5 * time.Millisecond
	id, err := s.Schedule(ctx, tk)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	waitFor(t, 3*time.Second, "the task to be disabled", func() bool {
		got, err := st.Load(ctx, id)
		return err == nil && !got.Active
	})

	got, err := st.Load(ctx, id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.FailureCount != 2 {
		t.Errorf("FailureCount = %d, want 2", got.FailureCount)
	}
	if got.NextRun != nil {
		t.Errorf("NextRun = %v, want nil for a disabled task", got.NextRun)
	}

	// Disabled is terminal: no further fires.
	runs := runner.Runs()
	time.Sleep(100 * time.Millisecond)
	if runner.Runs() != runs {
		t.Errorf("disabled task kept firing: %d -> %d", runs, runner.Runs())
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	s, _, st := newTestScheduler(t, Config{})
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	id, err := s.Schedule(ctx, dailyTask("t-1"))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	seed, _ := st.Load(ctx, id)
	seed.FailureCount = 2
	if err := st.Update(ctx, seed); err != nil {
		t.Fatalf("seed update: %v", err)
	}

	if ok, err := s.RunNow(ctx, id); err != nil || !ok {
		t.Fatalf("run now = (%v, %v), want (true, nil)", ok, err)
	}
	waitFor(t, 2*time.Second, "the run to complete", func() bool {
		got, err := st.Load(ctx, id)
		return err == nil && got.RunCount == 1
	})

	got, _ := st.Load(ctx, id)
	if got.FailureCount != 0 {
		t.Errorf("FailureCount = %d after success, want 0", got.FailureCount)
	}
	if got.NextRun == nil || !got.NextRun.After(time.Now()) {
		t.Errorf("NextRun = %v, want a future time", got.NextRun)
	}
	if got.LastRun == nil {
		t.Error("LastRun not set")
	}
}

func TestStartRearmsPersistedTasks(t *testing.T) {
	t.Parallel()

	s, _, st := newTestScheduler(t, Config{})
	ctx := context.Background()

	// A task persisted with a stale next run, as after downtime.
	stale := dailyTask("t-1")
	stale.Active = true
	past := time.Now().Add(-time.Hour)
	stale.NextRun = &past
	if err := st.Save(ctx, stale); err != nil {
		t.Fatalf("save: %v", err)
	}
	inactive := dailyTask("t-2")
	inactive.Active = false
	if err := st.Save(ctx, inactive); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Idempotent.
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}

	got, err := st.Load(ctx, "t-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.NextRun == nil || !got.NextRun.After(time.Now()) {
		t.Errorf("stale NextRun not recomputed: %v", got.NextRun)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !stats.Running {
		t.Error("stats reports not running")
	}
	if stats.TotalTasks != 2 || stats.ActiveTasks != 1 {
		t.Errorf("stats = %+v, want 2 total / 1 active", stats)
	}
	if len(stats.Upcoming) != 1 || stats.Upcoming[0].TaskID != "t-1" {
		t.Errorf("upcoming = %+v, want t-1 only", stats.Upcoming)
	}
}

func TestStatusReportsLastError(t *testing.T) {
	t.Parallel()

	s, runner, st := newTestScheduler(t, Config{})
	runner.fail = true
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	if got, err := s.Status(ctx, "unknown"); err != nil || got != nil {
		t.Errorf("status unknown = (%v, %v), want (nil, nil)", got, err)
	}

	id, err := s.Schedule(ctx, dailyTask("t-1"))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := s.RunNow(ctx, id); err != nil {
		t.Fatalf("run now: %v", err)
	}
	waitFor(t, 2*time.Second, "the failed run", func() bool {
		got, err := st.Load(ctx, id)
		return err == nil && got.RunCount == 1
	})

	got, err := s.Status(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("status = (%v, %v)", got, err)
	}
	if got.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1", got.FailureCount)
	}
	if got.LastError != "source unavailable" {
		t.Errorf("LastError = %q", got.LastError)
	}
	if got.NextRun == nil {
		t.Error("NextRun empty, want the retry time")
	}
}

func TestTaskNeverOverlapsItself(t *testing.T) {
	t.Parallel()

	s, runner, _ := newTestScheduler(t, Config{Workers: 4})
	release := make(chan struct{})
	runner.block = release
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	id, err := s.Schedule(ctx, dailyTask("t-1"))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	if _, err := s.RunNow(ctx, id); err != nil {
		t.Fatalf("run now: %v", err)
	}
	waitFor(t, time.Second, "the first run to start", func() bool { return runner.Runs() == 1 })

	// A second tick while the first run is still in flight is skipped.
	if _, err := s.RunNow(ctx, id); err != nil {
		t.Fatalf("second run now: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if runner.Runs() != 1 {
		t.Errorf("runs = %d while first still in flight, want 1", runner.Runs())
	}
	close(release)
}

func TestHousekeepingPrunesHistory(t *testing.T) {
	t.Parallel()

	s, runner, st := newTestScheduler(t, Config{CleanupInterval: 30 * time.Millisecond})
	ctx := context.Background()
	if err := st.Save(ctx, dailyTask("t-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, 2*time.Second, "a housekeeping pass", func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return runner.cleanups > 0
	})
}
