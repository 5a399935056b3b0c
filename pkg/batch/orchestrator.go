package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/portalcheck/internal/metrics"
	"github.com/harun/portalcheck/internal/tracing"
	"github.com/harun/portalcheck/pkg/gate"
	"github.com/rs/zerolog/log"
)

// Options configures an Orchestrator.
type Options struct {
	MaxConcurrency int
	MaxAttempts    int
	RetryDelay     time.Duration
	StepTimeout    time.Duration
	CapturePolicy  CapturePolicy
	Fields         FieldMap
	Metrics        *metrics.Metrics
}

// DefaultOptions returns the stock settings: 5 sessions, 3 attempts, 500ms
// between attempts, 60s per step, capture on every terminal outcome.
func DefaultOptions() Options {
	return Options{
		MaxConcurrency: 5,
		MaxAttempts:    3,
		RetryDelay:     500 * time.Millisecond,
		StepTimeout:    60 * time.Second,
		CapturePolicy:  CaptureAlways,
		Fields:         DefaultFieldMap(),
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxConcurrency < 1 {
		o.MaxConcurrency = def.MaxConcurrency
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = def.StepTimeout
	}
	if o.CapturePolicy == "" {
		o.CapturePolicy = def.CapturePolicy
	}
	if o.Fields == (FieldMap{}) {
		o.Fields = def.Fields
	}
	return o
}

// Orchestrator processes batches of queries. The concurrency gate is shared
// by every batch started from the same Orchestrator.
type Orchestrator struct {
	launcher Launcher
	opts     Options
	gate     *gate.Gate
}

// New creates an orchestrator that launches one engine per batch through l.
func New(l Launcher, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	g := gate.New(opts.MaxConcurrency)
	if opts.Metrics != nil {
		m := opts.Metrics
		g.SetObserver(func(_, waiting int) { m.SetGateWaiting(waiting) })
	}
	return &Orchestrator{
		launcher: l,
		opts:     opts,
		gate:     g,
	}
}

// Options returns the effective options.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Gate returns the shared concurrency gate.
func (o *Orchestrator) Gate() *gate.Gate {
	return o.gate
}

// Process starts every query and returns immediately. Queries with an empty
// Identifier get a generated one.
func (o *Orchestrator) Process(ctx context.Context, queries []Query) *Run {
	ctx, runID := tracing.NewRunContext(ctx)
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	sessions := NewSessionManager(o.launcher, o.opts.Metrics)
	run := &Run{
		ID:       runID,
		queries:  len(queries),
		mux:      NewMultiplexer(len(queries)),
		sessions: sessions,
		done:     make(chan struct{}),
		started:  time.Now(),
	}

	o.opts.Metrics.BatchStarted()
	logger.Info().Int("queries", len(queries)).Int("max_concurrency", o.opts.MaxConcurrency).Msg("Starting batch")

	exec := NewExecutor(sessions, o.gate, o.opts)
	for _, q := range queries {
		if q.Identifier == "" {
			q.Identifier = uuid.NewString()
		}
		go run.execute(ctx, exec, q)
	}

	go run.mux.Stream(run.finish)

	return run
}

// RunStats summarizes a batch.
type RunStats struct {
	Queries  int
	Emitted  int
	Sessions SessionStats
}

// Run is one in-flight batch.
type Run struct {
	ID string

	queries  int
	mux      *Multiplexer
	sessions *SessionManager
	started  time.Time

	done chan struct{}
	mu   sync.Mutex
	err  error
}

func (r *Run) execute(ctx context.Context, exec *Executor, q Query) {
	var res Result
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("run_id", r.ID).Str("query_id", q.Identifier).Interface("panic", p).Msg("Query execution panicked")
			res = failedResult(q, &Error{Kind: KindTransient, Message: fmt.Sprintf("panic: %v", p)})
		}
		if err := r.mux.Submit(res); err != nil {
			log.Error().Err(err).Str("run_id", r.ID).Msg("Result dropped")
		}
	}()
	res = exec.Execute(ctx, q)
}

func (r *Run) finish() {
	err := r.sessions.StartErr()
	if cerr := r.sessions.Shutdown(); cerr != nil {
		log.Warn().Err(cerr).Str("run_id", r.ID).Msg("Engine shutdown failed")
	}

	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	close(r.done)

	stats := r.sessions.Stats()
	log.Info().
		Str("run_id", r.ID).
		Int("queries", r.queries).
		Int("sessions_opened", stats.Opened).
		Int("peak_sessions", stats.Peak).
		Dur("duration", time.Since(r.started)).
		Msg("Batch finished")
}

// Results yields one Result per query in completion order. It is closed
// after the last Result and the engine shutdown. Callers must drain it.
func (r *Run) Results() <-chan Result {
	return r.mux.Results()
}

// Wait blocks until every Result has been emitted and returns Err.
func (r *Run) Wait() error {
	<-r.done
	return r.Err()
}

// Err returns the batch-level engine failure, if any. It is final once
// Results is closed.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Stats returns a snapshot of the batch counters.
func (r *Run) Stats() RunStats {
	return RunStats{
		Queries:  r.queries,
		Emitted:  r.mux.Emitted(),
		Sessions: r.sessions.Stats(),
	}
}

// Collect drains run and returns its results in completion order.
func Collect(run *Run) ([]Result, error) {
	results := make([]Result, 0, run.queries)
	for res := range run.Results() {
		results = append(results, res)
	}
	return results, run.Err()
}
