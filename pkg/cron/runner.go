package cron

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Job is one scheduled execution.
type Job func(ctx context.Context) error

// Runner executes a Job on a Schedule. Executions never overlap; a tick
// that falls while the job is still running is skipped.
type Runner struct {
	name     string
	schedule Schedule
	job      Job
	now      func() time.Time

	mu    sync.Mutex
	state JobState
}

// NewRunner creates a runner for job.
func NewRunner(name string, schedule Schedule, job Job) (*Runner, error) {
	if err := Validate(schedule); err != nil {
		return nil, err
	}
	return &Runner{
		name:     name,
		schedule: schedule,
		job:      job,
		now:      time.Now,
	}, nil
}

// State returns a snapshot of the job state.
func (r *Runner) State() JobState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Run blocks until ctx is cancelled or the schedule has no further runs.
// When immediate is set the job also runs once before the first tick.
func (r *Runner) Run(ctx context.Context, immediate bool) error {
	log.Info().Str("job", r.name).Stringer("schedule", r.schedule).Msg("Scheduler started")

	if immediate {
		r.execute(ctx)
	}

	for {
		next, err := NextRun(r.schedule, r.now())
		if err != nil {
			return err
		}
		if next.IsZero() {
			log.Info().Str("job", r.name).Msg("Schedule has no further runs")
			return nil
		}

		r.mu.Lock()
		r.state.NextRunAt = next
		r.mu.Unlock()

		delay := next.Sub(r.now())
		if delay < 0 {
			delay = 0
		}
		log.Debug().Str("job", r.name).Dur("delay", delay).Time("next_run", next).Msg("Job scheduled")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Str("job", r.name).Msg("Scheduler stopped")
			return nil
		case <-timer.C:
		}

		r.execute(ctx)
	}
}

func (r *Runner) execute(ctx context.Context) {
	start := r.now()
	err := r.job(ctx)
	duration := r.now().Sub(start)

	r.mu.Lock()
	r.state.Runs++
	r.state.LastRunAt = start
	r.state.LastDuration = duration
	if err != nil {
		r.state.LastStatus = "error"
		r.state.LastError = err.Error()
		r.state.ConsecutiveErrors++
	} else {
		r.state.LastStatus = "ok"
		r.state.LastError = ""
		r.state.ConsecutiveErrors = 0
	}
	state := r.state
	r.mu.Unlock()

	if err != nil {
		log.Error().Err(err).
			Str("job", r.name).
			Int("consecutive_errors", state.ConsecutiveErrors).
			Dur("duration", duration).
			Msg("Scheduled job failed")
		return
	}
	log.Info().Str("job", r.name).Int("runs", state.Runs).Dur("duration", duration).Msg("Scheduled job finished")
}
