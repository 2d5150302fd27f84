package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/briefwire/briefwire/internal/task"
)

// SaveResult appends one execution result to the history table.
func (s *Store) SaveResult(ctx context.Context, r task.ExecutionResult) error {
	deliveries, err := json.Marshal(r.Deliveries)
	if err != nil {
		return fmt.Errorf("sqlite: marshal deliveries: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO results
			(execution_id, task_id, success, artifact_ref, err_kind, err_message,
			 deliveries, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ExecutionID, r.TaskID, boolInt(r.Success), r.ArtifactRef,
		string(r.ErrKind), r.ErrMessage, string(deliveries),
		r.StartedAt.Format(time.RFC3339Nano), r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save result %s: %w", r.ExecutionID, err)
	}
	return nil
}

// LoadResults returns the task's most recent results, newest first.
func (s *Store) LoadResults(ctx context.Context, taskID string, limit int) ([]task.ExecutionResult, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, task_id, success, artifact_ref, err_kind, err_message,
		       deliveries, started_at, duration_ms
		FROM results
		WHERE task_id = ?
		ORDER BY started_at DESC
		LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load results for %s: %w", taskID, err)
	}
	defer func() { _ = rows.Close() }()

	var results []task.ExecutionResult
	for rows.Next() {
		var (
			r              task.ExecutionResult
			success        int
			errKind        string
			deliveriesJSON string
			startedStr     string
			durationMillis int64
		)
		if err := rows.Scan(&r.ExecutionID, &r.TaskID, &success, &r.ArtifactRef,
			&errKind, &r.ErrMessage, &deliveriesJSON, &startedStr, &durationMillis); err != nil {
			return nil, fmt.Errorf("sqlite: scan result: %w", err)
		}

		r.Success = success != 0
		r.ErrKind = task.ErrorKind(errKind)
		r.Duration = time.Duration(durationMillis) * time.Millisecond

		if deliveriesJSON != "" && deliveriesJSON != "[]" && deliveriesJSON != "null" {
			if err := json.Unmarshal([]byte(deliveriesJSON), &r.Deliveries); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal deliveries: %w", err)
			}
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, startedStr); err != nil {
			return nil, fmt.Errorf("sqlite: parse started_at %q: %w", startedStr, err)
		}

		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scan results: %w", err)
	}
	return results, nil
}

// PruneResults deletes the task's results older than the given age.
func (s *Store) PruneResults(ctx context.Context, taskID string, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM results WHERE task_id = ? AND started_at < ?", taskID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune results for %s: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(n), nil
}
