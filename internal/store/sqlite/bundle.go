package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briefwire/briefwire/internal/store"
	"github.com/briefwire/briefwire/internal/task"
)

// recentResultsPerTask bounds the history embedded in an export bundle.
const recentResultsPerTask = 20

// bundle is the on-disk export format.
type bundle struct {
	ExportedAt time.Time         `json:"exported_at"`
	Count      int               `json:"count"`
	Tasks      []json.RawMessage `json:"tasks"`
}

// bundleRecord pairs a task with its recent execution history.
type bundleRecord struct {
	Task    *task.Task             `json:"task"`
	Results []task.ExecutionResult `json:"recent_results,omitempty"`
}

// Export writes all tasks and their recent history to a JSON bundle at path.
// The file is written to a temp name and renamed so a crash never leaves a
// truncated bundle behind.
func (s *Store) Export(ctx context.Context, path string) error {
	tasks, err := s.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: export: %w", err)
	}

	b := bundle{ExportedAt: time.Now().UTC(), Count: len(tasks)}
	for _, t := range tasks {
		results, err := s.LoadResults(ctx, t.ID, recentResultsPerTask)
		if err != nil {
			return fmt.Errorf("sqlite: export history for %s: %w", t.ID, err)
		}
		raw, err := json.Marshal(bundleRecord{Task: t, Results: results})
		if err != nil {
			return fmt.Errorf("sqlite: marshal record %s: %w", t.ID, err)
		}
		b.Tasks = append(b.Tasks, raw)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("sqlite: marshal bundle: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("sqlite: write bundle: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("sqlite: finalize bundle: %w", err)
	}

	s.logger.Info("exported tasks", "count", len(tasks), "path", path)
	return nil
}

// Import reads a bundle written by Export and applies each record
// independently: a malformed record is logged and skipped, the rest are
// still imported. Returns the number of tasks imported.
func (s *Store) Import(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("sqlite: read bundle %s: %w", path, err)
	}

	var b bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrBadBundle, err)
	}

	imported := 0
	for i, raw := range b.Tasks {
		var rec bundleRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.Warn("skipping malformed bundle record", "index", i, "error", err)
			continue
		}
		if rec.Task == nil || rec.Task.ID == "" {
			s.logger.Warn("skipping bundle record without task id", "index", i)
			continue
		}

		if err := s.Save(ctx, rec.Task); err != nil {
			s.logger.Warn("skipping unimportable task", "task_id", rec.Task.ID, "error", err)
			continue
		}
		for _, r := range rec.Results {
			if err := s.SaveResult(ctx, r); err != nil {
				s.logger.Warn("skipping unimportable result",
					"task_id", rec.Task.ID, "execution_id", r.ExecutionID, "error", err)
			}
		}
		imported++
	}

	s.logger.Info("imported tasks", "count", imported, "path", path)
	return imported, nil
}
