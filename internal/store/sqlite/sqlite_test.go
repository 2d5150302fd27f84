package sqlite

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/briefwire/briefwire/internal/store"
	"github.com/briefwire/briefwire/internal/task"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "tasks.db"), slog.Default())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleTask(id string) *task.Task {
	created := time.Date(2024, time.February, 1, 8, 30, 0, 0, time.UTC)
	next := created.Add(24 * time.Hour)
	return &task.Task{
		ID:        id,
		Name:      "morning digest",
		SourceRef: "general",
		Rule: task.RecurrenceRule{
			Kind:     task.Weekly,
			At:       "09:00",
			Weekdays: []time.Weekday{time.Monday, time.Friday},
		},
		Destinations: []task.Destination{
			{Kind: task.DestChannel, Target: "general", Format: "markdown", Enabled: true},
			{Kind: task.DestWebhook, Target: "https://example.test/hook", Enabled: false},
		},
		Options:     task.Options{Lookback: 24 * time.Hour, MinItems: 5, Style: "brief"},
		Active:      true,
		CreatedAt:   created,
		CreatedBy:   "u-1",
		NextRun:     &next,
		RunCount:    3,
		MaxFailures: 5,
		RetryDelay:  2 * time.Minute,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	want := sampleTask("t-1")
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load(ctx, "t-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got.ID != want.ID || got.Name != want.Name || got.SourceRef != want.SourceRef {
		t.Errorf("identity fields differ: got %+v", got)
	}
	if got.Rule.Kind != want.Rule.Kind || got.Rule.At != want.Rule.At {
		t.Errorf("rule = %+v, want %+v", got.Rule, want.Rule)
	}
	if len(got.Rule.Weekdays) != 2 || got.Rule.Weekdays[0] != time.Monday {
		t.Errorf("weekdays = %v", got.Rule.Weekdays)
	}
	if len(got.Destinations) != 2 || got.Destinations[0].Kind != task.DestChannel ||
		got.Destinations[1].Enabled {
		t.Errorf("destinations = %+v", got.Destinations)
	}
	if got.Options != want.Options {
		t.Errorf("options = %+v, want %+v", got.Options, want.Options)
	}
	if !got.Active || got.RunCount != 3 || got.MaxFailures != 5 {
		t.Errorf("counters differ: %+v", got)
	}
	if got.RetryDelay != want.RetryDelay {
		t.Errorf("retry delay = %v, want %v", got.RetryDelay, want.RetryDelay)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	if got.NextRun == nil || !got.NextRun.Equal(*want.NextRun) {
		t.Errorf("next_run = %v, want %v", got.NextRun, want.NextRun)
	}
	if got.LastRun != nil {
		t.Errorf("last_run = %v, want nil", got.LastRun)
	}
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if _, err := s.Load(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateMissing(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := s.Update(context.Background(), sampleTask("ghost")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLoadAllSkipsCorruptRecords(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Save(ctx, sampleTask(id)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	// Corrupt one record's rule column directly.
	if _, err := s.db.ExecContext(ctx, "UPDATE tasks SET rule = 'not json' WHERE id = 'b'"); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	tasks, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("len = %d, want 2 (corrupt record skipped)", len(tasks))
	}
	for _, tk := range tasks {
		if tk.ID == "b" {
			t.Error("corrupt record should not be returned")
		}
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, sampleTask("t-1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	ok, err := s.Delete(ctx, "t-1")
	if err != nil || !ok {
		t.Fatalf("delete known id = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = s.Delete(ctx, "t-1")
	if err != nil || ok {
		t.Fatalf("delete unknown id = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestListBySource(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	a := sampleTask("a")
	b := sampleTask("b")
	b.SourceRef = "random"
	c := sampleTask("c")

	for _, tk := range []*task.Task{a, b, c} {
		if err := s.Save(ctx, tk); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := s.ListBySource(ctx, "general")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestResultsHistory(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := task.ExecutionResult{
			TaskID:      "t-1",
			ExecutionID: string(rune('a' + i)),
			Success:     i%2 == 0,
			ArtifactRef: "digest",
			StartedAt:   base.Add(time.Duration(i) * time.Hour),
			Duration:    1500 * time.Millisecond,
			Deliveries: []task.DeliveryOutcome{
				{Kind: task.DestChannel, Target: "general", Success: true},
			},
		}
		if err := s.SaveResult(ctx, r); err != nil {
			t.Fatalf("save result: %v", err)
		}
	}

	got, err := s.LoadResults(ctx, "t-1", 3)
	if err != nil {
		t.Fatalf("load results: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// Newest first.
	if !got[0].StartedAt.After(got[1].StartedAt) {
		t.Errorf("results not sorted newest first: %v, %v", got[0].StartedAt, got[1].StartedAt)
	}
	if len(got[0].Deliveries) != 1 || got[0].Deliveries[0].Kind != task.DestChannel {
		t.Errorf("deliveries = %+v", got[0].Deliveries)
	}
	if got[0].Duration != 1500*time.Millisecond {
		t.Errorf("duration = %v", got[0].Duration)
	}
}

func TestPruneResults(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	old := task.ExecutionResult{
		TaskID: "t-1", ExecutionID: "old", StartedAt: time.Now().Add(-48 * time.Hour),
	}
	fresh := task.ExecutionResult{
		TaskID: "t-1", ExecutionID: "fresh", StartedAt: time.Now(),
	}
	for _, r := range []task.ExecutionResult{old, fresh} {
		if err := s.SaveResult(ctx, r); err != nil {
			t.Fatalf("save result: %v", err)
		}
	}

	n, err := s.PruneResults(ctx, "t-1", 24*time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}

	left, err := s.LoadResults(ctx, "t-1", 10)
	if err != nil {
		t.Fatalf("load results: %v", err)
	}
	if len(left) != 1 || left[0].ExecutionID != "fresh" {
		t.Errorf("remaining = %+v, want only the fresh result", left)
	}
}

func TestCleanupOlderThan_SparesActiveTasks(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	stale := time.Now().Add(-90 * 24 * time.Hour)

	activeOld := sampleTask("active-old")
	activeOld.CreatedAt = stale
	activeOld.LastRun = &stale

	inactiveOld := sampleTask("inactive-old")
	inactiveOld.Active = false
	inactiveOld.CreatedAt = stale
	inactiveOld.LastRun = &stale

	inactiveFresh := sampleTask("inactive-fresh")
	inactiveFresh.Active = false
	inactiveFresh.CreatedAt = time.Now()

	for _, tk := range []*task.Task{activeOld, inactiveOld, inactiveFresh} {
		if err := s.Save(ctx, tk); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	n, err := s.CleanupOlderThan(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}

	if _, err := s.Load(ctx, "active-old"); err != nil {
		t.Errorf("active task must survive cleanup regardless of age: %v", err)
	}
	if _, err := s.Load(ctx, "inactive-fresh"); err != nil {
		t.Errorf("fresh inactive task must survive cleanup: %v", err)
	}
	if _, err := s.Load(ctx, "inactive-old"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("stale inactive task should be gone, got err = %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	t.Parallel()

	src := newTestStore(t)
	dst := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := src.Save(ctx, sampleTask(id)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := src.SaveResult(ctx, task.ExecutionResult{
		TaskID: "a", ExecutionID: "e1", Success: true, StartedAt: time.Now(),
	}); err != nil {
		t.Fatalf("save result: %v", err)
	}

	path := filepath.Join(t.TempDir(), "bundle.json")
	if err := src.Export(ctx, path); err != nil {
		t.Fatalf("export: %v", err)
	}

	n, err := dst.Import(ctx, path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 2 {
		t.Errorf("imported = %d, want 2", n)
	}

	got, err := dst.Load(ctx, "a")
	if err != nil {
		t.Fatalf("load imported: %v", err)
	}
	if got.Name != "morning digest" {
		t.Errorf("name = %q", got.Name)
	}
	results, err := dst.LoadResults(ctx, "a", 10)
	if err != nil || len(results) != 1 {
		t.Errorf("history = (%v, %v), want 1 result", results, err)
	}
}

func TestImport_SkipsMalformedRecords(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "bundle.json")
	data := `{
		"exported_at": "2024-03-01T00:00:00Z",
		"count": 3,
		"tasks": [
			{"task": {"id": "good-1", "name": "n", "source_ref": "s", "rule": {"kind": "daily", "at": "09:00"}, "active": true, "created_at": "2024-03-01T00:00:00Z"}},
			{"task": "this is not a task"},
			{"task": {"id": "good-2", "name": "n", "source_ref": "s", "rule": {"kind": "daily", "at": "10:00"}, "active": true, "created_at": "2024-03-01T00:00:00Z"}}
		]
	}`
	if err := writeFile(path, data); err != nil {
		t.Fatalf("write bundle: %v", err)
	}

	n, err := s.Import(ctx, path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 2 {
		t.Errorf("imported = %d, want 2 (malformed record skipped)", n)
	}
}

func TestImport_RejectsUnparseableBundle(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	path := filepath.Join(t.TempDir(), "bundle.json")
	if err := writeFile(path, "{{{"); err != nil {
		t.Fatalf("write bundle: %v", err)
	}

	if _, err := s.Import(context.Background(), path); !errors.Is(err, store.ErrBadBundle) {
		t.Errorf("err = %v, want ErrBadBundle", err)
	}
}

func writeFile(path, data string) error {
	return os.WriteFile(path, []byte(data), 0o600)
}
