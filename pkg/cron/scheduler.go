package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// NextRun calculates the first run time of schedule strictly after now.
// An "at" schedule in the past has no next run and returns the zero time.
func NextRun(schedule Schedule, now time.Time) (time.Time, error) {
	switch schedule.Kind {
	case ScheduleKindAt:
		return calculateAtSchedule(schedule, now)
	case ScheduleKindEvery:
		return calculateEverySchedule(schedule, now)
	case ScheduleKindCron:
		return calculateCronSchedule(schedule, now)
	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind: %s", schedule.Kind)
	}
}

// Validate reports whether schedule can produce run times.
func Validate(schedule Schedule) error {
	_, err := NextRun(schedule, time.Now())
	return err
}

// calculateAtSchedule calculates next run for "at" schedule
func calculateAtSchedule(schedule Schedule, now time.Time) (time.Time, error) {
	if schedule.At == "" {
		return time.Time{}, fmt.Errorf("'at' schedule requires 'at' field")
	}

	// Parse ISO 8601 timestamp
	t, err := time.Parse(time.RFC3339, schedule.At)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	if !t.After(now) {
		return time.Time{}, nil
	}

	return t, nil
}

// calculateEverySchedule calculates next run for "every" schedule
func calculateEverySchedule(schedule Schedule, now time.Time) (time.Time, error) {
	if schedule.Every <= 0 {
		return time.Time{}, fmt.Errorf("'every' schedule requires a positive interval")
	}

	// Without anchor: next run is now + interval
	if schedule.Anchor == nil {
		return now.Add(schedule.Every), nil
	}

	// With anchor: next aligned time
	anchor := *schedule.Anchor
	if anchor.After(now) {
		return anchor, nil
	}

	periods := now.Sub(anchor) / schedule.Every
	return anchor.Add((periods + 1) * schedule.Every), nil
}

// calculateCronSchedule calculates next run for "cron" schedule
func calculateCronSchedule(schedule Schedule, now time.Time) (time.Time, error) {
	if schedule.Expr == "" {
		return time.Time{}, fmt.Errorf("'cron' schedule requires 'expr' field")
	}

	// Parse cron expression
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(schedule.Expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}

	if schedule.TZ != "" {
		loc, err := time.LoadLocation(schedule.TZ)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone: %w", err)
		}
		now = now.In(loc)
	}

	return sched.Next(now), nil
}
