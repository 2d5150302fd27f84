package scheduler

import "errors"

var (
	// ErrNotRunning is returned when a task is scheduled before Start.
	ErrNotRunning = errors.New("scheduler: not running")

	// ErrNeverFires is returned when a new task's rule yields no future
	// fire time, such as a one-time rule pointing into the past.
	ErrNeverFires = errors.New("scheduler: rule never fires")
)
