package cron

import "time"

// ScheduleKind represents the type of schedule
type ScheduleKind string

const (
	ScheduleKindAt    ScheduleKind = "at"
	ScheduleKindEvery ScheduleKind = "every"
	ScheduleKindCron  ScheduleKind = "cron"
)

// Schedule is a time specification for a recurring batch.
type Schedule struct {
	Kind ScheduleKind `json:"kind"`

	// For "at" schedule
	At string `json:"at,omitempty"` // ISO 8601 timestamp

	// For "every" schedule
	Every  time.Duration `json:"every,omitempty"`
	Anchor *time.Time    `json:"anchor,omitempty"` // Optional alignment point

	// For "cron" schedule
	Expr string `json:"expr,omitempty"` // Cron expression (5-field format)
	TZ   string `json:"tz,omitempty"`   // Optional timezone
}

// String describes the schedule for logs.
func (s Schedule) String() string {
	switch s.Kind {
	case ScheduleKindAt:
		return "at " + s.At
	case ScheduleKindEvery:
		return "every " + s.Every.String()
	case ScheduleKindCron:
		if s.TZ != "" {
			return s.Expr + " (" + s.TZ + ")"
		}
		return s.Expr
	default:
		return string(s.Kind)
	}
}

// JobState tracks the runtime state of a scheduled job.
type JobState struct {
	NextRunAt         time.Time
	LastRunAt         time.Time
	LastStatus        string // "ok" or "error"
	LastError         string
	LastDuration      time.Duration
	Runs              int
	ConsecutiveErrors int
}
