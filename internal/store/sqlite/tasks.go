package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/briefwire/briefwire/internal/store"
	"github.com/briefwire/briefwire/internal/task"
)

const taskColumns = `id, name, source_ref, rule, destinations, options, active,
	created_at, created_by, last_run, next_run,
	run_count, failure_count, max_failures, retry_delay_ms`

// Save persists a task, replacing any existing record with the same id.
// A single INSERT OR REPLACE keeps the write atomic: readers either see
// the old record or the new one, never a blend.
func (s *Store) Save(ctx context.Context, t *task.Task) error {
	ruleJSON, destJSON, optJSON, err := encodeTask(t)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.SourceRef, ruleJSON, destJSON, optJSON, boolInt(t.Active),
		t.CreatedAt.Format(time.RFC3339Nano), t.CreatedBy,
		nullableTime(t.LastRun), nullableTime(t.NextRun),
		t.RunCount, t.FailureCount, t.MaxFailures, t.RetryDelay.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save task %s: %w", t.ID, err)
	}
	return nil
}

// Update rewrites an existing task record.
func (s *Store) Update(ctx context.Context, t *task.Task) error {
	ruleJSON, destJSON, optJSON, err := encodeTask(t)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			name = ?, source_ref = ?, rule = ?, destinations = ?, options = ?,
			active = ?, created_at = ?, created_by = ?, last_run = ?, next_run = ?,
			run_count = ?, failure_count = ?, max_failures = ?, retry_delay_ms = ?
		WHERE id = ?`,
		t.Name, t.SourceRef, ruleJSON, destJSON, optJSON,
		boolInt(t.Active), t.CreatedAt.Format(time.RFC3339Nano), t.CreatedBy,
		nullableTime(t.LastRun), nullableTime(t.NextRun),
		t.RunCount, t.FailureCount, t.MaxFailures, t.RetryDelay.Milliseconds(),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update task %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Load returns one task by id.
func (s *Store) Load(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load task %s: %w", id, err)
	}
	return t, nil
}

// LoadAll returns every readable task. A corrupt row is logged and skipped
// so one bad record cannot take the whole scheduler down at boot.
func (s *Store) LoadAll(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("sqlite: load all tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			s.logger.Warn("skipping corrupt task record", "error", err)
			continue
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scan tasks: %w", err)
	}
	return tasks, nil
}

// ListBySource returns all tasks bound to the given source reference.
func (s *Store) ListBySource(ctx context.Context, sourceRef string) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE source_ref = ? ORDER BY created_at", sourceRef)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tasks by source: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			s.logger.Warn("skipping corrupt task record", "error", err)
			continue
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scan tasks: %w", err)
	}
	return tasks, nil
}

// Delete removes a task and its execution history.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("sqlite: delete task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM results WHERE task_id = ?", id); err != nil {
		return true, fmt.Errorf("sqlite: delete task history %s: %w", id, err)
	}
	return true, nil
}

// CleanupOlderThan removes tasks that are both inactive and idle longer
// than age, along with their history. Active tasks are never purged.
func (s *Store) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age).Format(time.RFC3339Nano)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM tasks
		WHERE active = 0 AND COALESCE(last_run, created_at) < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: select stale tasks: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("sqlite: scan stale task id: %w", err)
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("sqlite: scan stale tasks: %w", err)
	}

	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id); err != nil {
			return 0, fmt.Errorf("sqlite: cleanup task %s: %w", id, err)
		}
		if _, err := s.db.ExecContext(ctx, "DELETE FROM results WHERE task_id = ?", id); err != nil {
			return 0, fmt.Errorf("sqlite: cleanup history %s: %w", id, err)
		}
	}
	return len(ids), nil
}

// encodeTask marshals the task's structured fields to JSON columns.
func encodeTask(t *task.Task) (rule, dests, opts string, err error) {
	ruleJSON, err := json.Marshal(t.Rule)
	if err != nil {
		return "", "", "", fmt.Errorf("sqlite: marshal rule: %w", err)
	}
	destJSON, err := json.Marshal(t.Destinations)
	if err != nil {
		return "", "", "", fmt.Errorf("sqlite: marshal destinations: %w", err)
	}
	optJSON, err := json.Marshal(t.Options)
	if err != nil {
		return "", "", "", fmt.Errorf("sqlite: marshal options: %w", err)
	}
	return string(ruleJSON), string(destJSON), string(optJSON), nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t                task.Task
		ruleJSON         string
		destJSON         string
		optJSON          string
		active           int
		createdAtStr     string
		lastRun, nextRun sql.NullString
		retryDelayMillis int64
	)

	err := row.Scan(&t.ID, &t.Name, &t.SourceRef, &ruleJSON, &destJSON, &optJSON,
		&active, &createdAtStr, &t.CreatedBy, &lastRun, &nextRun,
		&t.RunCount, &t.FailureCount, &t.MaxFailures, &retryDelayMillis)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(ruleJSON), &t.Rule); err != nil {
		return nil, fmt.Errorf("task %s: unmarshal rule: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(destJSON), &t.Destinations); err != nil {
		return nil, fmt.Errorf("task %s: unmarshal destinations: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(optJSON), &t.Options); err != nil {
		return nil, fmt.Errorf("task %s: unmarshal options: %w", t.ID, err)
	}

	t.Active = active != 0
	t.RetryDelay = time.Duration(retryDelayMillis) * time.Millisecond

	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
		return nil, fmt.Errorf("task %s: parse created_at %q: %w", t.ID, createdAtStr, err)
	}
	if t.LastRun, err = parseNullableTime(lastRun); err != nil {
		return nil, fmt.Errorf("task %s: parse last_run: %w", t.ID, err)
	}
	if t.NextRun, err = parseNullableTime(nextRun); err != nil {
		return nil, fmt.Errorf("task %s: parse next_run: %w", t.ID, err)
	}

	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
