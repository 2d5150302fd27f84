package task

import "errors"

// Sentinel errors for rule and task validation. All are raised at schedule
// time; a rule that validates never fails inside Next.
var (
	// ErrUnknownKind indicates a recurrence kind outside the supported set.
	ErrUnknownKind = errors.New("task: unknown recurrence kind")

	// ErrNoWeekdays indicates a weekly rule with an empty weekday set.
	ErrNoWeekdays = errors.New("task: weekly rule requires at least one weekday")

	// ErrNoCron indicates a custom rule without a cron expression.
	ErrNoCron = errors.New("task: custom rule requires a cron expression")

	// ErrBadCron indicates a cron expression that does not parse.
	ErrBadCron = errors.New("task: invalid cron expression")

	// ErrBadClock indicates a time-of-day outside HH:MM.
	ErrBadClock = errors.New("task: invalid time of day")

	// ErrNoOnceTime indicates a one-shot rule without a target timestamp.
	ErrNoOnceTime = errors.New("task: once rule requires a target time")

	// ErrNoDestinations indicates a task without any destination.
	ErrNoDestinations = errors.New("task: at least one destination required")

	// ErrUnknownDestination indicates a destination kind outside the
	// supported set.
	ErrUnknownDestination = errors.New("task: unknown destination kind")
)
