// Package policy implements the failure policy shared by the scheduler and
// executor: exponential retry backoff with jitter and the automatic-disable
// rule for tasks that keep failing.
package policy

import (
	"math/rand"
	"time"

	"github.com/briefwire/briefwire/internal/task"
)

// Decision is what the scheduler should do with a task after an execution.
type Decision int

const (
	// Reschedule means compute the next regular fire time.
	Reschedule Decision = iota

	// Retry means fire again after a backoff delay.
	Retry

	// Disable means the task hit its failure budget and has been
	// deactivated. Terminal until an external actor re-enables it.
	Disable
)

// Policy holds the retry and disable parameters. The zero value is usable;
// defaults are applied on first use.
type Policy struct {
	// MaxFailures disables a task after this many consecutive failures.
	// Used when the task itself does not carry a limit.
	MaxFailures int

	// BaseDelay is the first retry delay. Doubles per consecutive failure.
	BaseDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// Jitter spreads delays by ±Jitter (0.2 = ±20%) so tasks that fail
	// together do not retry together.
	Jitter float64

	// Rand is injectable for deterministic tests. Defaults to rand.Float64.
	Rand func() float64
}

func (p Policy) withDefaults() Policy {
	if p.MaxFailures <= 0 {
		p.MaxFailures = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Minute
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Minute
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Rand == nil {
		p.Rand = rand.Float64
	}
	return p
}

// NextDelay returns the backoff delay after the given number of consecutive
// failures (1 = first retry). Exponential, capped at MaxDelay, jittered.
func (p Policy) NextDelay(failures int) time.Duration {
	p = p.withDefaults()

	d := p.BaseDelay
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}

	if p.Jitter > 0 {
		r := (p.Rand()*2 - 1) * p.Jitter
		d = time.Duration(float64(d) * (1 + r))
		if d < 0 {
			d = 0
		}
		if d > p.MaxDelay {
			d = p.MaxDelay
		}
	}
	return d
}

// Apply updates the task's run bookkeeping after one execution attempt and
// returns what the scheduler should do next. A success resets the failure
// counter; a failure increments it and deactivates the task the moment the
// budget is exhausted.
//
// Delivery failures do not reach this path: the executor marks a run
// successful as soon as the digest is produced.
func (p Policy) Apply(t *task.Task, succeeded bool, now time.Time) Decision {
	p = p.withDefaults()

	ran := now
	t.LastRun = &ran
	t.RunCount++

	if succeeded {
		t.FailureCount = 0
		return Reschedule
	}

	t.FailureCount++
	limit := t.MaxFailures
	if limit <= 0 {
		limit = p.MaxFailures
	}
	if t.FailureCount >= limit {
		t.Active = false
		return Disable
	}
	return Retry
}

// RetryAt returns the instant of the next retry attempt for the task,
// honouring a per-task base delay when set.
func (p Policy) RetryAt(t *task.Task, now time.Time) time.Time {
	if t.RetryDelay > 0 {
		sub := p
		sub.BaseDelay = t.RetryDelay
		return now.Add(sub.NextDelay(t.FailureCount))
	}
	return now.Add(p.NextDelay(t.FailureCount))
}
