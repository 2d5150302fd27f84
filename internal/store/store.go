// Package store defines durable persistence for tasks and their execution
// history. The SQLite implementation lives in store/sqlite.
package store

import (
	"context"
	"time"

	"github.com/briefwire/briefwire/internal/task"
)

// Store is the durable task and result repository.
//
// Implementations must serialize writes to the same task id so a retry
// write cannot race a manual pause or cancel into a lost update. Reads may
// be concurrent. Writes are atomic per task: a crash mid-write must never
// leave a half-written record readable as valid.
type Store interface {
	// Save persists a new task. Overwrites an existing record with the same id.
	Save(ctx context.Context, t *task.Task) error

	// Load returns the task with the given id, or ErrNotFound.
	Load(ctx context.Context, id string) (*task.Task, error)

	// LoadAll returns every readable task. Individually corrupt records
	// are skipped and logged, never abort the whole load.
	LoadAll(ctx context.Context) ([]*task.Task, error)

	// Update rewrites an existing task record. ErrNotFound if absent.
	Update(ctx context.Context, t *task.Task) error

	// Delete removes a task and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// ListBySource returns all tasks bound to the given source reference.
	ListBySource(ctx context.Context, sourceRef string) ([]*task.Task, error)

	// SaveResult appends one execution result to the task's history.
	SaveResult(ctx context.Context, r task.ExecutionResult) error

	// LoadResults returns the task's most recent results, newest first,
	// capped at limit.
	LoadResults(ctx context.Context, taskID string, limit int) ([]task.ExecutionResult, error)

	// PruneResults deletes the task's results older than the given age
	// and returns how many were removed.
	PruneResults(ctx context.Context, taskID string, olderThan time.Duration) (int, error)

	// CleanupOlderThan removes tasks that are both inactive and idle for
	// longer than the given age. Active tasks are never purged.
	CleanupOlderThan(ctx context.Context, age time.Duration) (int, error)

	// Export writes all tasks and their recent history to a JSON bundle.
	Export(ctx context.Context, path string) error

	// Import reads a bundle written by Export and applies each record
	// independently; one malformed record does not block the rest.
	// Returns the number of tasks imported.
	Import(ctx context.Context, path string) (int, error)
}
