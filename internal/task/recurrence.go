package task

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// RecurrenceKind enumerates the supported recurrence rule variants.
type RecurrenceKind string

// Supported recurrence kinds.
const (
	Once    RecurrenceKind = "once"
	Daily   RecurrenceKind = "daily"
	Weekly  RecurrenceKind = "weekly"
	Monthly RecurrenceKind = "monthly"
	Custom  RecurrenceKind = "custom"
)

// cronParser accepts the standard five-field syntax:
// minute, hour, day-of-month, month, day-of-week.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// RecurrenceRule declares when a task fires. Exactly one variant is active,
// selected by Kind; the other fields are ignored for that variant.
type RecurrenceRule struct {
	Kind RecurrenceKind `json:"kind" yaml:"kind"`

	// At is the time of day in "HH:MM" (24-hour). Used by daily, weekly,
	// and monthly rules.
	At string `json:"at,omitempty" yaml:"at,omitempty"`

	// Weekdays is the firing day set for weekly rules. Kept sorted and
	// unique; Normalize enforces this.
	Weekdays []time.Weekday `json:"weekdays,omitempty" yaml:"weekdays,omitempty"`

	// Cron is the five-field cron expression for custom rules.
	Cron string `json:"cron,omitempty" yaml:"cron,omitempty"`

	// Once is the explicit target instant for one-shot rules.
	Once time.Time `json:"once,omitempty" yaml:"once,omitempty"`
}

// Normalize sorts and deduplicates the weekday set. Safe on any rule.
func (r *RecurrenceRule) Normalize() {
	if len(r.Weekdays) == 0 {
		return
	}
	slices.Sort(r.Weekdays)
	r.Weekdays = slices.Compact(r.Weekdays)
}

// Validate checks the rule is complete for its kind. Read-only.
func (r RecurrenceRule) Validate() error {
	switch r.Kind {
	case Once:
		if r.Once.IsZero() {
			return ErrNoOnceTime
		}
	case Daily, Monthly:
		if _, _, err := parseClock(r.At); err != nil {
			return err
		}
	case Weekly:
		if len(r.Weekdays) == 0 {
			return ErrNoWeekdays
		}
		for _, d := range r.Weekdays {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("%w: weekday %d out of range", ErrNoWeekdays, d)
			}
		}
		if _, _, err := parseClock(r.At); err != nil {
			return err
		}
	case Custom:
		if r.Cron == "" {
			return ErrNoCron
		}
		if _, err := cronParser.Parse(r.Cron); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrBadCron, r.Cron, err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}
	return nil
}

// Next returns the earliest instant strictly after now at which the rule
// fires, or false if it never fires again. Pure: no I/O, no clock reads.
// Assumes the rule has passed Validate; an invalid rule returns false.
func (r RecurrenceRule) Next(now time.Time) (time.Time, bool) {
	switch r.Kind {
	case Once:
		if r.Once.After(now) {
			return r.Once, true
		}
		return time.Time{}, false

	case Daily:
		hour, minute, err := parseClock(r.At)
		if err != nil {
			return time.Time{}, false
		}
		next := at(now, hour, minute)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next, true

	case Weekly:
		hour, minute, err := parseClock(r.At)
		if err != nil || len(r.Weekdays) == 0 {
			return time.Time{}, false
		}
		// Walk at most a full week ahead; day 0 is today, which only
		// counts if today's slot has not passed yet.
		for offset := 0; offset <= 7; offset++ {
			cand := at(now.AddDate(0, 0, offset), hour, minute)
			if cand.After(now) && slices.Contains(r.Weekdays, cand.Weekday()) {
				return cand, true
			}
		}
		return time.Time{}, false

	case Monthly:
		hour, minute, err := parseClock(r.At)
		if err != nil {
			return time.Time{}, false
		}
		// Same day-of-month next month, clamped to that month's length
		// (day 31 from January lands on February 28/29).
		year, month, day := now.Date()
		target := time.Date(year, month+1, 1, hour, minute, 0, 0, now.Location())
		if last := daysIn(target.Year(), target.Month()); day > last {
			day = last
		}
		return time.Date(target.Year(), target.Month(), day, hour, minute, 0, 0, now.Location()), true

	case Custom:
		sched, err := cronParser.Parse(r.Cron)
		if err != nil {
			return time.Time{}, false
		}
		next := sched.Next(now)
		if next.IsZero() {
			return time.Time{}, false
		}
		return next, true
	}
	return time.Time{}, false
}

// at returns the instant on day's date at hour:minute in day's location.
func at(day time.Time, hour, minute int) time.Time {
	year, month, d := day.Date()
	return time.Date(year, month, d, hour, minute, 0, 0, day.Location())
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// parseClock parses "HH:MM" (24-hour) into hour and minute.
func parseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q, expected HH:MM", ErrBadClock, s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: bad hour in %q", ErrBadClock, s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: bad minute in %q", ErrBadClock, s)
	}
	return hour, minute, nil
}
